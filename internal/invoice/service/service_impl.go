package service

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/authorization"
	billingservice "github.com/smallbiznis/rukun/internal/billing/service"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/rukun/internal/invoice/format"
	"github.com/smallbiznis/rukun/internal/locking"
	"github.com/smallbiznis/rukun/internal/observability/metrics"
	"github.com/smallbiznis/rukun/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
	plandomain "github.com/smallbiznis/rukun/internal/plan/domain"
	"github.com/smallbiznis/rukun/internal/providers/pdf"
	settingsdomain "github.com/smallbiznis/rukun/internal/settings/domain"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"github.com/smallbiznis/rukun/pkg/db"
	"github.com/smallbiznis/rukun/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultDueDays = 7

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        invoicedomain.Repository
	Gate        authorization.Gate
	TenantSvc   tenantdomain.Service
	PlanSvc     plandomain.Service
	SubSvc      subscriptiondomain.Service
	Billing     *billingservice.Service
	SettingsSvc settingsdomain.Service
	Registry    *adapters.Registry
	PaymentRepo paymentdomain.Repository
	Locker      locking.Locker
	PDF         pdf.Provider
	Metrics     *metrics.Metrics    `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	dueDays         int
	providerTimeout time.Duration
	bankName        string
	bankAccount     string
	bankHolder      string

	repo        invoicedomain.Repository
	gate        authorization.Gate
	tenantSvc   tenantdomain.Service
	planSvc     plandomain.Service
	subSvc      subscriptiondomain.Service
	billing     *billingservice.Service
	settingsSvc settingsdomain.Service
	registry    *adapters.Registry
	paymentRepo paymentdomain.Repository
	locker      locking.Locker
	pdf         pdf.Provider
	metrics     *metrics.Metrics
	auditSvc    auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	dueDays := p.Config.Billing.InvoiceDueDays
	if dueDays <= 0 {
		dueDays = defaultDueDays
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		dueDays:         dueDays,
		providerTimeout: p.Config.Payment.ProviderTimeout,
		bankName:        strings.TrimSpace(p.Config.Payment.ManualBankName),
		bankAccount:     strings.TrimSpace(p.Config.Payment.ManualAccountNumber),
		bankHolder:      strings.TrimSpace(p.Config.Payment.ManualAccountHolder),

		repo:        p.Repo,
		gate:        p.Gate,
		tenantSvc:   p.TenantSvc,
		planSvc:     p.PlanSvc,
		subSvc:      p.SubSvc,
		billing:     p.Billing,
		settingsSvc: p.SettingsSvc,
		registry:    p.Registry,
		paymentRepo: p.PaymentRepo,
		locker:      p.Locker,
		pdf:         p.PDF,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
	}
}

// Subscribe issues an UNPAID invoice for a plan. The invoice is billed to
// the caller's tenant and may pay for one of its child RTs.
func (s *Service) Subscribe(ctx context.Context, principal tenancy.Principal, req invoicedomain.SubscribeRequest) (*invoicedomain.Invoice, error) {
	if err := s.gate.Can(ctx, principal, authorization.PermissionBillingSubscribe); err != nil {
		return nil, err
	}
	ownerID, err := tenancy.OwnerForCreate(principal, req.TenantID)
	if err != nil {
		return nil, err
	}
	owner, err := s.tenantSvc.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	beneficiary := owner
	if req.BeneficiaryTenantID != nil && *req.BeneficiaryTenantID != 0 && *req.BeneficiaryTenantID != owner.ID {
		child, err := s.tenantSvc.Get(ctx, *req.BeneficiaryTenantID)
		if err != nil {
			if errors.Is(err, tenantdomain.ErrNotFound) {
				return nil, invoicedomain.ErrInvalidBeneficiary
			}
			return nil, err
		}
		if child.ParentTenantID == nil || *child.ParentTenantID != owner.ID {
			return nil, tenancy.ErrCrossTenantModification
		}
		beneficiary = child
	}

	plan, err := s.planSvc.Get(ctx, strings.TrimSpace(req.PlanID))
	if err != nil {
		return nil, err
	}
	if plan.Level != beneficiary.Level {
		return nil, invoicedomain.ErrPlanLevelMismatch
	}

	unlock, err := s.lockTenants(ctx, owner.ID, beneficiary.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	elig, err := s.billing.Eligibility(ctx, beneficiary.ID)
	if err != nil {
		return nil, err
	}
	if elig.OpenInvoice != nil {
		return nil, invoicedomain.ErrOpenInvoiceExists
	}
	if !elig.CanSubscribe {
		return nil, invoicedomain.ErrSubscriptionNotAllowed
	}
	if owner.ID != beneficiary.ID {
		open, err := s.repo.FindOpenByTenant(ctx, s.db, owner.ID)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return nil, invoicedomain.ErrOpenInvoiceExists
		}
	}

	now := s.clock.Now()
	number, err := invoiceformat.FormatInvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, now, ulid.Make())
	if err != nil {
		return nil, err
	}
	openKey := owner.ID.String()
	invoice := &invoicedomain.Invoice{
		ID:                  s.genID.Generate(),
		Number:              number,
		TenantID:            owner.ID,
		BeneficiaryTenantID: beneficiary.ID,
		PlanID:              plan.ID,
		PlanName:            plan.Name,
		PlanType:            string(plan.Type),
		CoversChildren:      plan.CoversChildren,
		Status:              invoicedomain.InvoiceStatusDraft,
		Currency:            plan.Currency,
		Subtotal:            plan.Price,
		Discount:            plan.Price - plan.Amount(),
		Amount:              plan.Amount(),
		DueDate:             now.AddDate(0, 0, s.dueDays),
		OpenKey:             &openKey,
		Metadata:            datatypes.JSONMap{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, principal, invoice); err != nil {
			return err
		}
		ok, err := s.repo.Transition(ctx, tx, principal, invoice.ID, invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusUnpaid, map[string]any{
			"issued_at":  now,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, invoicedomain.ErrOpenInvoiceExists
		}
		return nil, err
	}
	invoice.Status = invoicedomain.InvoiceStatusUnpaid
	invoice.IssuedAt = &now

	s.metrics.RecordInvoiceIssued(invoice.PlanType)
	s.metrics.RecordInvoiceTransition(string(invoicedomain.InvoiceStatusDraft), string(invoicedomain.InvoiceStatusUnpaid))
	s.audit(ctx, principal, invoice, "invoice.issued", map[string]any{
		"plan_id":               invoice.PlanID,
		"amount":                invoice.Amount,
		"beneficiary_tenant_id": invoice.BeneficiaryTenantID.String(),
	})
	s.log.Info("invoice issued",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("tenant_id", invoice.TenantID.String()),
		zap.String("plan_id", invoice.PlanID),
	)
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeInvoice(ctx, principal, authorization.InvoiceView, invoice.TenantID); err != nil {
		return nil, err
	}
	return invoice, nil
}

// Pay starts a payment through a channel. Manual transfers only return an
// instruction. Automated channels move the invoice to PAYMENT_RECEIVED on a
// confirmed charge and leave it UNPAID on any other outcome.
func (s *Service) Pay(ctx context.Context, principal tenancy.Principal, id snowflake.ID, req invoicedomain.PayRequest) (invoicedomain.PayResult, error) {
	if err := s.gate.Can(ctx, principal, authorization.PermissionInvoicePay); err != nil {
		return invoicedomain.PayResult{}, err
	}
	invoice, err := s.load(ctx, id)
	if err != nil {
		return invoicedomain.PayResult{}, err
	}
	if err := tenancy.CheckMutation(principal, invoice.TenantID, tenancy.OpUpdate); err != nil {
		return invoicedomain.PayResult{}, err
	}

	switch {
	case invoice.Status.IsTerminal():
		return invoicedomain.PayResult{}, invoicedomain.ErrTerminalInvoice
	case invoice.Status != invoicedomain.InvoiceStatusUnpaid:
		return invoicedomain.PayResult{}, invoicedomain.ErrInvalidTransition
	}

	adapter, err := s.adapterFor(ctx, req.Channel)
	if err != nil {
		return invoicedomain.PayResult{}, err
	}
	channel := adapter.Channel()

	chargeCtx := ctx
	if s.providerTimeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, s.providerTimeout)
		defer cancel()
	}
	result, err := adapter.Charge(chargeCtx, paymentdomain.ChargeRequest{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		TenantID:      invoice.TenantID,
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		Description:   invoice.PlanName,
		DueDate:       invoice.DueDate,
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.RecordProviderTimeout(string(channel))
			s.log.Warn("payment provider timed out",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("channel", string(channel)),
			)
			return invoicedomain.PayResult{}, paymentdomain.ErrProviderTimeout
		}
		s.log.Warn("payment provider call failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return invoicedomain.PayResult{}, err
	}

	now := s.clock.Now()
	fields := map[string]any{
		"payment_channel": string(channel),
		"updated_at":      now,
	}
	if ref := strings.TrimSpace(result.ProviderReference); ref != "" {
		fields["provider_reference"] = ref
	}

	status := invoicedomain.InvoiceStatusUnpaid
	if result.Outcome == paymentdomain.OutcomeSuccess {
		fields["payment_received_at"] = now
		ok, err := s.repo.Transition(ctx, s.db, principal, invoice.ID, invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusPaymentReceived, fields)
		if err != nil {
			return invoicedomain.PayResult{}, err
		}
		if !ok {
			return invoicedomain.PayResult{}, invoicedomain.ErrInvalidTransition
		}
		status = invoicedomain.InvoiceStatusPaymentReceived
		s.metrics.RecordInvoiceTransition(string(invoicedomain.InvoiceStatusUnpaid), string(status))
	} else if err := s.repo.UpdateFields(ctx, s.db, principal, invoice.ID, fields); err != nil {
		return invoicedomain.PayResult{}, err
	}

	s.audit(ctx, principal, invoice, "invoice.payment_started", map[string]any{
		"channel": string(channel),
		"outcome": string(result.Outcome),
	})
	return invoicedomain.PayResult{
		InvoiceID:   invoice.ID,
		Status:      status,
		PaymentMode: result.Mode,
		Provider:    channel,
		Outcome:     result.Outcome,
		Instruction: result.Instruction,
	}, nil
}

// ConfirmManual marks an invoice PAID and activates the subscription it
// pays for. Confirming a PAID invoice again succeeds without side effects.
func (s *Service) ConfirmManual(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeInvoice(ctx, principal, authorization.InvoiceUpdate, invoice.TenantID); err != nil {
		return nil, err
	}

	unlock, err := s.lockTenants(ctx, invoice.TenantID, invoice.BeneficiaryTenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	invoice, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case invoicedomain.InvoiceStatusPaid:
		return invoice, nil
	case invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusPaymentReceived:
	default:
		if invoice.Status.IsTerminal() {
			return nil, invoicedomain.ErrTerminalInvoice
		}
		return nil, invoicedomain.ErrInvalidTransition
	}

	from := invoice.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.settle(ctx, tx, principal, invoice, paymentdomain.ChannelManual)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceTransition(string(from), string(invoicedomain.InvoiceStatusPaid))
	s.metrics.RecordPaymentConfirmed(string(paymentdomain.ChannelManual))
	s.audit(ctx, principal, invoice, "invoice.paid", map[string]any{
		"channel": string(paymentdomain.ChannelManual),
		"from":    string(from),
	})
	s.log.Info("invoice confirmed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("tenant_id", invoice.TenantID.String()),
	)
	return s.load(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeInvoice(ctx, principal, authorization.InvoiceUpdate, invoice.TenantID); err != nil {
		return nil, err
	}

	switch {
	case invoice.Status.IsTerminal():
		return nil, invoicedomain.ErrTerminalInvoice
	case !invoicedomain.CanTransition(invoice.Status, invoicedomain.InvoiceStatusCanceled):
		return nil, invoicedomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	ok, err := s.repo.Transition(ctx, s.db, principal, invoice.ID, invoice.Status, invoicedomain.InvoiceStatusCanceled, map[string]any{
		"canceled_at": now,
		"updated_at":  now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invoicedomain.ErrInvalidTransition
	}

	s.metrics.RecordInvoiceTransition(string(invoice.Status), string(invoicedomain.InvoiceStatusCanceled))
	s.audit(ctx, principal, invoice, "invoice.canceled", nil)
	return s.load(ctx, id)
}

// HandleGatewayCallback applies a verified provider notification. Replayed
// events and events that no longer match the invoice state are ignored.
// errAmountMismatch rejects a gateway event whose amount differs from the invoice.
var errAmountMismatch = errors.New("payment event amount mismatch")

func (s *Service) HandleGatewayCallback(ctx context.Context, channel string, headers http.Header, body []byte) error {
	parsed, ok := paymentdomain.ParseChannel(channel)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	adapter, err := s.registry.Adapter(parsed)
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, body, headers); err != nil {
		return err
	}
	event, err := adapter.Parse(ctx, body)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	invoice, err := s.repo.FindByNumber(ctx, s.db, event.InvoiceNumber)
	if err != nil {
		return err
	}
	if invoice == nil {
		s.log.Warn("payment event for unknown invoice",
			zap.String("channel", string(parsed)),
			zap.String("invoice_number", event.InvoiceNumber),
		)
		return invoicedomain.ErrInvoiceNotFound
	}

	unlock, err := s.lockTenants(ctx, invoice.TenantID, invoice.BeneficiaryTenantID)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.clock.Now()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Channel:         parsed,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		InvoiceID:       &invoice.ID,
		Payload:         datatypes.JSON(body),
		ReceivedAt:      now,
	}

	var applied *invoicedomain.InvoiceStatus
	var from invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.paymentRepo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Debug("duplicate payment event",
				zap.String("channel", string(parsed)),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return nil
		}

		current, err := s.repo.FindByID(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		from = current.Status
		to, err := s.applyEvent(ctx, tx, current, event)
		if err != nil {
			return err
		}
		applied = to
		return s.paymentRepo.MarkProcessed(ctx, tx, record.ID, &current.ID, now)
	})
	if errors.Is(err, errAmountMismatch) {
		// The event row rolled back with the transaction, so a corrected
		// delivery under the same provider event id is still applied.
		return nil
	}
	if err != nil {
		return err
	}
	if applied == nil {
		return nil
	}

	s.metrics.RecordInvoiceTransition(string(from), string(*applied))
	if *applied == invoicedomain.InvoiceStatusPaid {
		s.metrics.RecordPaymentConfirmed(string(parsed))
	}
	s.audit(ctx, tenancy.System(), invoice, "invoice."+strings.ToLower(string(*applied)), map[string]any{
		"channel":           string(parsed),
		"provider_event_id": event.ProviderEventID,
		"from":              string(from),
	})
	return nil
}

func (s *Service) applyEvent(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, event *paymentdomain.Event) (*invoicedomain.InvoiceStatus, error) {
	var to invoicedomain.InvoiceStatus
	switch event.Type {
	case paymentdomain.EventTypePaymentReceived:
		to = invoicedomain.InvoiceStatusPaymentReceived
	case paymentdomain.EventTypeSettled:
		to = invoicedomain.InvoiceStatusPaid
	case paymentdomain.EventTypeFailed:
		to = invoicedomain.InvoiceStatusFailed
	case paymentdomain.EventTypeRefunded:
		to = invoicedomain.InvoiceStatusRefunded
	default:
		return nil, paymentdomain.ErrInvalidEvent
	}

	if !invoicedomain.CanTransition(invoice.Status, to) {
		s.log.Warn("payment event does not apply to invoice state",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("status", string(invoice.Status)),
			zap.String("event_type", event.Type),
		)
		return nil, nil
	}
	if event.Amount > 0 && event.Amount != invoice.Amount && to != invoicedomain.InvoiceStatusFailed {
		s.log.Warn("payment event amount mismatch",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int64("expected", invoice.Amount),
			zap.Int64("received", event.Amount),
		)
		return nil, errAmountMismatch
	}

	if to == invoicedomain.InvoiceStatusPaid {
		if err := s.settle(ctx, tx, tenancy.System(), invoice, event.Channel); err != nil {
			return nil, err
		}
		return &to, nil
	}

	now := s.clock.Now()
	fields := map[string]any{"updated_at": now}
	switch to {
	case invoicedomain.InvoiceStatusPaymentReceived:
		fields["payment_received_at"] = now
		fields["payment_channel"] = string(event.Channel)
		if ref := strings.TrimSpace(event.ProviderReference); ref != "" {
			fields["provider_reference"] = ref
		}
	case invoicedomain.InvoiceStatusFailed:
		fields["failed_at"] = now
	case invoicedomain.InvoiceStatusRefunded:
		fields["refunded_at"] = now
	}
	ok, err := s.repo.Transition(ctx, tx, tenancy.System(), invoice.ID, invoice.Status, to, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invoicedomain.ErrInvalidTransition
	}
	return &to, nil
}

// settle moves an open invoice to PAID and activates the beneficiary's
// subscription in the same transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, principal tenancy.Principal, invoice *invoicedomain.Invoice, channel paymentdomain.Channel) error {
	now := s.clock.Now()
	fields := map[string]any{
		"paid_at":    now,
		"updated_at": now,
	}
	if invoice.PaymentChannel == nil {
		fields["payment_channel"] = string(channel)
	}
	ok, err := s.repo.Transition(ctx, tx, principal, invoice.ID, invoice.Status, invoicedomain.InvoiceStatusPaid, fields)
	if err != nil {
		return err
	}
	if !ok {
		return invoicedomain.ErrInvalidTransition
	}

	_, err = s.subSvc.Activate(ctx, tx, subscriptiondomain.ActivateRequest{
		TenantID:       invoice.BeneficiaryTenantID,
		PlanID:         invoice.PlanID,
		Type:           subscriptiondomain.Type(invoice.PlanType),
		CoversChildren: invoice.CoversChildren,
		InvoiceID:      invoice.ID,
		At:             now,
	})
	return err
}

// List returns invoices billed to tenants visible in scope, newest first.
func (s *Service) List(ctx context.Context, scope tenancy.Scope, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := invoicedomain.ListFilter{
		PlanID:      req.PlanID,
		TenantID:    req.TenantID,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
		DueFrom:     req.DueFrom,
		DueTo:       req.DueTo,
	}
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		status, ok := invoicedomain.ParseStatus(raw)
		if !ok {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = &status
	}
	if req.CreatedFrom != nil && req.CreatedTo != nil && req.CreatedFrom.After(*req.CreatedTo) {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidTimeRange
	}
	if req.DueFrom != nil && req.DueTo != nil && req.DueFrom.After(*req.DueTo) {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidTimeRange
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		if _, err := pagination.DecodeCursor(token); err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
	}

	if scope.IsNone() {
		return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{}}, nil
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, scope, filter, req.Pagination)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(item *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) adapterFor(ctx context.Context, requested string) (paymentdomain.Adapter, error) {
	raw := strings.TrimSpace(requested)
	if raw == "" {
		gateway, err := s.settingsSvc.GatewayFor(ctx, settingsdomain.PurposeSubscription)
		if err != nil {
			return nil, err
		}
		raw = string(gateway)
	}
	channel, ok := paymentdomain.ParseChannel(raw)
	if !ok {
		return nil, invoicedomain.ErrInvalidChannel
	}
	adapter, err := s.registry.Adapter(channel)
	if err != nil {
		return nil, invoicedomain.ErrInvalidChannel
	}
	return adapter, nil
}

// lockTenants takes the billing lock of every distinct tenant in ascending
// id order and returns a func releasing them in reverse.
func (s *Service) lockTenants(ctx context.Context, ids ...snowflake.ID) (func(), error) {
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	unlocks := make([]func(), 0, len(unique))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, id := range unique {
		unlock, err := s.locker.Lock(ctx, locking.BillingKey(id))
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (s *Service) audit(ctx context.Context, principal tenancy.Principal, invoice *invoicedomain.Invoice, action string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["number"] = invoice.Number
	tenantID := invoice.TenantID
	auditdomain.Record(ctx, s.auditSvc, principal, &tenantID, action, "invoice", invoice.ID.String(), metadata)
}
