package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/rukun/internal/billing/domain"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	messageFundedByRW   = "billing for this RT is covered by its RW"
	messageOpenInvoice  = "an unpaid invoice is waiting for payment"
	messageLifetime     = "tenant holds a lifetime subscription"
	messageTrialEnding  = "trial is ending soon, subscribe to keep access"
	messageSubscription = "subscription has expired, subscribe to restore access"
)

// Summary is the billing page of one tenant.
type Summary struct {
	TenantID       snowflake.ID                     `json:"tenant_id"`
	TenantStatus   billingdomain.Status             `json:"tenant_status"`
	BillingMode    tenantdomain.BillingMode         `json:"billing_mode"`
	BillingSource  billingdomain.Source             `json:"billing_source,omitempty"`
	Subscription   *subscriptiondomain.Subscription `json:"subscription"`
	PendingInvoice *invoicedomain.Invoice           `json:"pending_invoice"`
	CanSubscribe   bool                             `json:"can_subscribe"`
	Message        *string                          `json:"message"`
	View           billingdomain.View               `json:"view"`
}

// Eligibility tells whether a tenant may open a new subscription invoice.
type Eligibility struct {
	Tenant       *tenantdomain.Tenant
	View         billingdomain.View
	Subscription *subscriptiondomain.Subscription
	OpenInvoice  *invoicedomain.Invoice
	Funding      *billingdomain.Funding
	CanSubscribe bool
	Reason       string
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	TenantSvc   tenantdomain.Service
	SubSvc      subscriptiondomain.Service
	InvoiceRepo invoicedomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      billingdomain.Policy
	tenantSvc   tenantdomain.Service
	subSvc      subscriptiondomain.Service
	invoiceRepo invoicedomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		clock:       p.Clock,
		policy:      billingdomain.Policy{LowWaterDays: p.Config.Billing.TrialLowWaterDays},
		tenantSvc:   p.TenantSvc,
		subSvc:      p.SubSvc,
		invoiceRepo: p.InvoiceRepo,
	}
}

// Status reports the caller's own tenant. Callers without a tenant get DEMO.
func (s *Service) Status(ctx context.Context, principal tenancy.Principal) (billingdomain.View, error) {
	if !principal.Authenticated() || !principal.HasTenant() {
		return billingdomain.Demo(), nil
	}
	tenant, err := s.tenantSvc.Get(ctx, principal.Tenant())
	if err != nil {
		if errors.Is(err, tenantdomain.ErrNotFound) {
			return billingdomain.Demo(), nil
		}
		return billingdomain.View{}, err
	}
	view, _, _, err := s.resolve(ctx, tenant, s.clock.Now())
	return view, err
}

// RequireUsable fails with billingdomain.ErrBillingRequired when the caller's tenant is EXPIRED.
func (s *Service) RequireUsable(ctx context.Context, principal tenancy.Principal) error {
	if principal.Unrestricted() {
		return nil
	}
	if !principal.HasTenant() {
		return tenancy.ErrTenantRequired
	}
	view, err := s.Status(ctx, principal)
	if err != nil {
		return err
	}
	return billingdomain.RequireUsable(view)
}

// Summary reports billing for tenantID, or the caller's tenant when zero.
// The tenant must be visible in scope.
func (s *Service) Summary(ctx context.Context, principal tenancy.Principal, scope tenancy.Scope, tenantID snowflake.ID) (Summary, error) {
	tenant, err := s.visibleTenant(ctx, principal, scope, tenantID)
	if err != nil {
		return Summary{}, err
	}
	elig, err := s.eligibility(ctx, tenant)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		TenantID:       tenant.ID,
		TenantStatus:   elig.View.Status,
		BillingMode:    tenant.BillingMode,
		Subscription:   elig.Subscription,
		PendingInvoice: elig.OpenInvoice,
		CanSubscribe:   elig.CanSubscribe,
		View:           elig.View,
	}
	if elig.Funding != nil {
		summary.BillingSource = elig.Funding.Source
		if elig.Funding.Covered {
			summary.BillingMode = tenantdomain.BillingModeRW
		}
	}
	if msg := summaryMessage(elig); msg != "" {
		summary.Message = &msg
	}
	return summary, nil
}

// Hierarchy reports every RT of an RW. tenantID defaults to the caller's tenant.
func (s *Service) Hierarchy(ctx context.Context, principal tenancy.Principal, scope tenancy.Scope, tenantID snowflake.ID) (billingdomain.Hierarchy, error) {
	rw, err := s.visibleTenant(ctx, principal, scope, tenantID)
	if err != nil {
		return billingdomain.Hierarchy{}, err
	}
	if rw.Level != tenancy.LevelRW {
		return billingdomain.Hierarchy{}, tenantdomain.ErrInvalidHierarchy
	}
	children, err := s.tenantSvc.ListChildren(ctx, rw.ID)
	if err != nil {
		return billingdomain.Hierarchy{}, err
	}

	ids := make([]snowflake.ID, 0, len(children)+1)
	ids = append(ids, rw.ID)
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	subs, err := s.subSvc.ActiveByTenants(ctx, ids)
	if err != nil {
		return billingdomain.Hierarchy{}, err
	}
	return billingdomain.ResolveHierarchy(rw, children, subs, s.clock.Now(), s.policy)
}

// Eligibility decides whether tenant may subscribe now.
func (s *Service) Eligibility(ctx context.Context, tenantID snowflake.ID) (Eligibility, error) {
	tenant, err := s.tenantSvc.Get(ctx, tenantID)
	if err != nil {
		return Eligibility{}, err
	}
	return s.eligibility(ctx, tenant)
}

func (s *Service) eligibility(ctx context.Context, tenant *tenantdomain.Tenant) (Eligibility, error) {
	now := s.clock.Now()
	view, sub, funding, err := s.resolve(ctx, tenant, now)
	if err != nil {
		return Eligibility{}, err
	}
	open, err := s.invoiceRepo.FindOpenByTenant(ctx, s.db, tenant.ID)
	if err != nil {
		return Eligibility{}, err
	}

	out := Eligibility{
		Tenant:       tenant,
		View:         view,
		Subscription: sub,
		OpenInvoice:  open,
		Funding:      funding,
		CanSubscribe: true,
	}
	switch {
	case funding != nil && funding.Covered:
		out.CanSubscribe, out.Reason = false, messageFundedByRW
	case sub.IsLifetime():
		out.CanSubscribe, out.Reason = false, messageLifetime
	case open != nil:
		out.CanSubscribe, out.Reason = false, messageOpenInvoice
	}
	return out, nil
}

// resolve derives the effective view of tenant. An RT with a parent goes
// through the cascade so RW funding is reflected.
func (s *Service) resolve(ctx context.Context, tenant *tenantdomain.Tenant, now time.Time) (billingdomain.View, *subscriptiondomain.Subscription, *billingdomain.Funding, error) {
	sub, err := s.subSvc.Active(ctx, tenant.ID)
	if err != nil {
		return billingdomain.View{}, nil, nil, err
	}
	if tenant.Level != tenancy.LevelRT || tenant.ParentTenantID == nil {
		return billingdomain.Evaluate(tenant, sub, now, s.policy), sub, nil, nil
	}

	parent, err := s.tenantSvc.Get(ctx, *tenant.ParentTenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrNotFound) {
			return billingdomain.View{}, nil, nil, tenantdomain.ErrInvalidHierarchy
		}
		return billingdomain.View{}, nil, nil, err
	}
	parentSub, err := s.subSvc.Active(ctx, parent.ID)
	if err != nil {
		return billingdomain.View{}, nil, nil, err
	}
	funding, err := billingdomain.ResolveChild(tenant, sub, parent, parentSub, now, s.policy)
	if err != nil {
		s.log.Warn("invalid tenant hierarchy",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("parent_tenant_id", parent.ID.String()),
		)
		return billingdomain.View{}, nil, nil, err
	}
	return funding.View, sub, &funding, nil
}

func (s *Service) visibleTenant(ctx context.Context, principal tenancy.Principal, scope tenancy.Scope, tenantID snowflake.ID) (*tenantdomain.Tenant, error) {
	if !principal.Authenticated() {
		return nil, tenancy.ErrUnauthenticated
	}
	if tenantID == 0 {
		if !principal.HasTenant() {
			return nil, tenancy.ErrTenantRequired
		}
		tenantID = principal.Tenant()
	}
	if !scope.Contains(tenantID) {
		return nil, tenantdomain.ErrNotFound
	}
	return s.tenantSvc.Get(ctx, tenantID)
}

func summaryMessage(elig Eligibility) string {
	if elig.Reason != "" {
		return elig.Reason
	}
	if elig.View.ActionRequired == nil {
		return ""
	}
	switch *elig.View.ActionRequired {
	case billingdomain.ActionTrialEnding:
		return messageTrialEnding
	default:
		return messageSubscription
	}
}
