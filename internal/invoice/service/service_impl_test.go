package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rukun/internal/authorization"
	billingservice "github.com/smallbiznis/rukun/internal/billing/service"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/rukun/internal/invoice/repository"
	"github.com/smallbiznis/rukun/internal/locking"
	"github.com/smallbiznis/rukun/internal/observability/metrics"
	"github.com/smallbiznis/rukun/internal/payment/adapters"
	"github.com/smallbiznis/rukun/internal/payment/adapters/manual"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/rukun/internal/payment/repository"
	planservice "github.com/smallbiznis/rukun/internal/plan/service"
	"github.com/smallbiznis/rukun/internal/providers/pdf"
	settingsdomain "github.com/smallbiznis/rukun/internal/settings/domain"
	settingsrepository "github.com/smallbiznis/rukun/internal/settings/repository"
	settingsservice "github.com/smallbiznis/rukun/internal/settings/service"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/rukun/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/rukun/internal/subscription/service"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	tenantrepository "github.com/smallbiznis/rukun/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/rukun/internal/tenant/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var superAdmin = tenancy.Principal{UserID: 1, RoleCode: tenancy.RoleSuperAdmin}

// fakeGateway stands in for an automated channel.
type fakeGateway struct {
	charge func(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error)
}

func (g *fakeGateway) Channel() paymentdomain.Channel { return paymentdomain.ChannelDana }

func (g *fakeGateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	return g.charge(ctx, req)
}

func (g *fakeGateway) Verify(_ context.Context, _ []byte, headers http.Header) error {
	if headers.Get("X-Test-Signature") != "ok" {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) Parse(_ context.Context, payload []byte) (*paymentdomain.Event, error) {
	var body struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Number string `json:"invoice_number"`
		Amount int64  `json:"amount"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if body.Type == "" {
		return nil, paymentdomain.ErrEventIgnored
	}
	return &paymentdomain.Event{
		Channel:         paymentdomain.ChannelDana,
		ProviderEventID: body.ID,
		InvoiceNumber:   body.Number,
		Type:            body.Type,
		Amount:          body.Amount,
		RawPayload:      payload,
	}, nil
}

type fixture struct {
	svc     invoicedomain.Service
	db      *gorm.DB
	clock   *clock.FakeClock
	tenants *tenantservice.Service
	subs    subscriptiondomain.Service
	gateway *fakeGateway
	locker  *locking.MemoryLocker
}

func setupInvoiceService(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&paymentdomain.EventRecord{},
		&settingsdomain.Setting{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(t0)
	cfg := config.Config{
		Billing: config.BillingConfig{TrialDays: 14, TrialLowWaterDays: 3, InvoiceDueDays: 7, LockWaitTimeout: time.Second},
		Payment: config.PaymentConfig{
			ProviderTimeout:     50 * time.Millisecond,
			ManualBankName:      "BCA",
			ManualAccountNumber: "1234567890",
			ManualAccountHolder: "PT Rukun Digital",
		},
	}
	m, err := metrics.New(metrics.NewRegistry())
	require.NoError(t, err)

	gate, err := authorization.NewService(authorization.Params{DB: db, Log: log, Metrics: m})
	require.NoError(t, err)
	require.NoError(t, gate.SeedDefaults(context.Background()))

	tenants := tenantservice.NewService(tenantservice.Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Repo:   tenantrepository.NewRepository(db),
		Clock:  clk,
		Config: cfg,
	})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepository.Provide(),
	})
	catalog, err := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	require.NoError(t, err)
	plans := planservice.NewService(planservice.Params{Log: log, Catalog: catalog})
	repo := invoicerepository.Provide()
	billing := billingservice.NewService(billingservice.Params{
		DB:          db,
		Log:         log,
		Clock:       clk,
		Config:      cfg,
		TenantSvc:   tenants,
		SubSvc:      subs,
		InvoiceRepo: repo,
	})
	settings := settingsservice.NewService(settingsservice.Params{
		DB:    db,
		Log:   log,
		Clock: clk,
		Repo:  settingsrepository.Provide(),
		Gate:  gate,
	})

	gateway := &fakeGateway{charge: func(context.Context, paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
		return paymentdomain.ChargeResult{Channel: paymentdomain.ChannelDana, Mode: paymentdomain.ModeRedirect, Outcome: paymentdomain.OutcomePending}, nil
	}}

	locker := locking.NewMemoryLocker(locking.WithWait(cfg.Billing.LockWaitTimeout))
	svc := NewService(ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Config:      cfg,
		Repo:        repo,
		Gate:        gate,
		TenantSvc:   tenants,
		PlanSvc:     plans,
		SubSvc:      subs,
		Billing:     billing,
		SettingsSvc: settings,
		Registry:    adapters.NewRegistry(manual.New(cfg), gateway),
		PaymentRepo: paymentrepository.Provide(),
		Locker:      locker,
		PDF:         pdf.New(),
		Metrics:     m,
	})
	return &fixture{svc: svc, db: db, clock: clk, tenants: tenants, subs: subs, gateway: gateway, locker: locker}
}

func (f *fixture) tenant(t *testing.T, name, level, mode string, parent *snowflake.ID) *tenantdomain.Tenant {
	t.Helper()
	tenant, err := f.tenants.Create(context.Background(), superAdmin, tenantdomain.CreateTenantRequest{
		Name:           name,
		Level:          level,
		ParentTenantID: parent,
		BillingMode:    mode,
	})
	require.NoError(t, err)
	return tenant
}

func adminOf(tenant *tenantdomain.Tenant) tenancy.Principal {
	id := tenant.ID
	role := tenancy.RoleAdminRT
	if tenant.Level == tenancy.LevelRW {
		role = tenancy.RoleAdminRW
	}
	return tenancy.Principal{UserID: snowflake.ID(100 + int64(id%1000)), TenantID: &id, RoleCode: role}
}

func TestSubscribeIssuesUnpaidInvoice(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)

	invoice, err := f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-yearly"})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, invoice.Status)
	assert.Equal(t, rt.ID, invoice.TenantID)
	assert.Equal(t, rt.ID, invoice.BeneficiaryTenantID)
	assert.Equal(t, int64(500_000), invoice.Amount)
	assert.Equal(t, int64(100_000), invoice.Discount)
	assert.Equal(t, t0.AddDate(0, 0, 7), invoice.DueDate)
	assert.True(t, strings.HasPrefix(invoice.Number, "INV-20260301-"))

	stored, err := f.svc.Get(ctx, adminOf(rt), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	require.NotNil(t, stored.IssuedAt)
	require.NotNil(t, stored.OpenKey)
	assert.Equal(t, rt.ID.String(), *stored.OpenKey)
}

func TestSubscribeRejectsSecondOpenInvoice(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)

	_, err := f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-yearly"})
	assert.ErrorIs(t, err, invoicedomain.ErrOpenInvoiceExists)
}

func TestConcurrentSubscribeYieldsOneOpenInvoice(t *testing.T) {
	f := setupInvoiceService(t)
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	principal := adminOf(rt)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Subscribe(context.Background(), principal, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, invoicedomain.ErrOpenInvoiceExists)
	}
	assert.Equal(t, 1, succeeded)

	var open int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("tenant_id = ? AND open_key IS NOT NULL", rt.ID).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestSubscribeGivesUpOnHeldLock(t *testing.T) {
	f := setupInvoiceService(t)
	rt := f.tenant(t, "RT 01", "RT", "", nil)

	unlock, err := f.locker.Lock(context.Background(), locking.BillingKey(rt.ID))
	require.NoError(t, err)

	_, err = f.svc.Subscribe(context.Background(), adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.ErrorIs(t, err, locking.ErrLockTimeout)

	unlock()
	_, err = f.svc.Subscribe(context.Background(), adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)
}

func TestSubscribeValidation(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)
	other := f.tenant(t, "RT 09", "RT", "", nil)

	_, err := f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rw-yearly"})
	assert.ErrorIs(t, err, invoicedomain.ErrPlanLevelMismatch)

	_, err = f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "unknown"})
	assert.Error(t, err)

	_, err = f.svc.Subscribe(ctx, adminOf(rw), invoicedomain.SubscribeRequest{PlanID: "rt-monthly", BeneficiaryTenantID: &other.ID})
	assert.ErrorIs(t, err, tenancy.ErrCrossTenantModification)

	id := rt.ID
	secretary := tenancy.Principal{UserID: 9, TenantID: &id, RoleCode: tenancy.RoleSecretary}
	_, err = f.svc.Subscribe(ctx, secretary, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Subscribe(ctx, superAdmin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.ErrorIs(t, err, tenancy.ErrTenantRequired)
}

func TestConfirmManualActivatesSubscriptionOnce(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	paid, err := f.svc.ConfirmManual(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Nil(t, paid.OpenKey)
	require.NotNil(t, paid.PaymentChannel)
	assert.Equal(t, "MANUAL", *paid.PaymentChannel)

	again, err := f.svc.ConfirmManual(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, again.Status)
	require.NotNil(t, again.PaidAt)
	assert.True(t, again.PaidAt.Equal(*paid.PaidAt))

	var count int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).Where("tenant_id = ?", rt.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	sub, err := f.subs.Active(ctx, rt.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "rt-monthly", sub.PlanID)
	require.NotNil(t, sub.EndDate)
	assert.True(t, sub.EndDate.Equal(t0.AddDate(0, 1, 0)))

	_, err = f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-yearly"})
	assert.NoError(t, err)
}

func TestConfirmManualRequiresBillingOwner(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)

	invoice, err := f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	_, err = f.svc.ConfirmManual(ctx, adminOf(rw), invoice.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Get(ctx, adminOf(rw), invoice.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	id := rt.ID
	treasurer := tenancy.Principal{UserID: 8, TenantID: &id, RoleCode: tenancy.RoleTreasurer}
	_, err = f.svc.ConfirmManual(ctx, treasurer, invoice.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.ConfirmManual(ctx, superAdmin, invoice.ID)
	assert.NoError(t, err)
}

func TestTerminalInvoicesRejectTransitions(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCanceled, canceled.Status)
	assert.Nil(t, canceled.OpenKey)

	_, err = f.svc.ConfirmManual(ctx, admin, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrTerminalInvoice)

	_, err = f.svc.Pay(ctx, admin, invoice.ID, invoicedomain.PayRequest{Channel: "MANUAL"})
	assert.ErrorIs(t, err, invoicedomain.ErrTerminalInvoice)

	_, err = f.svc.Cancel(ctx, admin, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrTerminalInvoice)

	_, err = f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.NoError(t, err)
}

func TestPayManualReturnsInstruction(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	result, err := f.svc.Pay(ctx, admin, invoice.ID, invoicedomain.PayRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, result.Status)
	assert.Equal(t, paymentdomain.ModeManual, result.PaymentMode)
	assert.Equal(t, paymentdomain.ChannelManual, result.Provider)
	assert.Equal(t, "BCA", result.Instruction.BankName)
	assert.Equal(t, invoice.Number, result.Instruction.Reference)
	assert.Equal(t, int64(50_000), result.Instruction.Amount)

	_, err = f.svc.Pay(ctx, admin, invoice.ID, invoicedomain.PayRequest{Channel: "OVO"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidChannel)
}

func TestPayGatewayTimeoutKeepsInvoiceUnpaid(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)
	f.gateway.charge = func(ctx context.Context, _ paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
		<-ctx.Done()
		return paymentdomain.ChargeResult{}, ctx.Err()
	}

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, admin, invoice.ID, invoicedomain.PayRequest{Channel: "dana"})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderTimeout)

	stored, err := f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
	assert.Nil(t, stored.PaymentReceivedAt)
}

func TestPayGatewaySuccessMarksPaymentReceived(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)
	f.gateway.charge = func(_ context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
		return paymentdomain.ChargeResult{
			Channel:           paymentdomain.ChannelDana,
			Mode:              paymentdomain.ModeRedirect,
			Outcome:           paymentdomain.OutcomeSuccess,
			ProviderReference: "dana-ref-1",
			Instruction:       paymentdomain.Instruction{Reference: req.InvoiceNumber, CheckoutURL: "https://pay.example/1"},
		}, nil
	}

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	result, err := f.svc.Pay(ctx, admin, invoice.ID, invoicedomain.PayRequest{Channel: "DANA"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaymentReceived, result.Status)
	assert.Equal(t, "https://pay.example/1", result.Instruction.CheckoutURL)

	stored, err := f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaymentReceived, stored.Status)
	require.NotNil(t, stored.ProviderReference)
	assert.Equal(t, "dana-ref-1", *stored.ProviderReference)
	assert.NotNil(t, stored.OpenKey)

	_, err = f.svc.Cancel(ctx, admin, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	paid, err := f.svc.ConfirmManual(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaymentChannel)
	assert.Equal(t, "DANA", *paid.PaymentChannel)
}

func callback(id, eventType, number string, amount int64) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":             id,
		"type":           eventType,
		"invoice_number": number,
		"amount":         amount,
	})
	return body
}

func TestGatewayCallbackSettlesOnceAndIgnoresReplays(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)
	headers := http.Header{}
	headers.Set("X-Test-Signature", "ok")

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	err = f.svc.HandleGatewayCallback(ctx, "dana", http.Header{}, callback("evt-0", paymentdomain.EventTypeSettled, invoice.Number, invoice.Amount))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-1", paymentdomain.EventTypePaymentReceived, invoice.Number, invoice.Amount)))
	stored, err := f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaymentReceived, stored.Status)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-2", paymentdomain.EventTypeSettled, invoice.Number, invoice.Amount)))
	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-2", paymentdomain.EventTypeSettled, invoice.Number, invoice.Amount)))

	stored, err = f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	var subs int64
	require.NoError(t, f.db.Model(&subscriptiondomain.Subscription{}).Where("tenant_id = ?", rt.ID).Count(&subs).Error)
	assert.Equal(t, int64(1), subs)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	// PAID is terminal, a late refund notification changes nothing.
	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-3", paymentdomain.EventTypeRefunded, invoice.Number, invoice.Amount)))
	stored, err = f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, []byte(`{"id":"evt-4"}`)))
	assert.ErrorIs(t, f.svc.HandleGatewayCallback(ctx, "manual", headers, []byte(`{}`)), paymentdomain.ErrCallbackNotAllowed)
	assert.ErrorIs(t, f.svc.HandleGatewayCallback(ctx, "ovo", headers, []byte(`{}`)), paymentdomain.ErrProviderNotFound)
}

func TestGatewayCallbackAmountMismatchAllowsCorrectedRedelivery(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)
	headers := http.Header{}
	headers.Set("X-Test-Signature", "ok")

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-1", paymentdomain.EventTypeSettled, invoice.Number, invoice.Amount-1)))
	stored, err := f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)

	var events int64
	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Zero(t, events)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "dana", headers, callback("evt-1", paymentdomain.EventTypeSettled, invoice.Number, invoice.Amount)))
	stored, err = f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	require.NoError(t, f.db.Model(&paymentdomain.EventRecord{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestGatewayCallbackRefundsReceivedPayment(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)
	headers := http.Header{}
	headers.Set("X-Test-Signature", "ok")

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "DANA", headers, callback("evt-1", paymentdomain.EventTypePaymentReceived, invoice.Number, invoice.Amount)))
	require.NoError(t, f.svc.HandleGatewayCallback(ctx, "DANA", headers, callback("evt-2", paymentdomain.EventTypeRefunded, invoice.Number, invoice.Amount)))

	stored, err := f.svc.Get(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusRefunded, stored.Status)
	assert.NotNil(t, stored.RefundedAt)
	assert.Nil(t, stored.OpenKey)

	sub, err := f.subs.Active(ctx, rt.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestRWPaysForChildRT(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)

	invoice, err := f.svc.Subscribe(ctx, adminOf(rw), invoicedomain.SubscribeRequest{PlanID: "rt-monthly", BeneficiaryTenantID: &rt.ID})
	require.NoError(t, err)
	assert.Equal(t, rw.ID, invoice.TenantID)
	assert.Equal(t, rt.ID, invoice.BeneficiaryTenantID)

	_, err = f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.ErrorIs(t, err, invoicedomain.ErrOpenInvoiceExists)

	_, err = f.svc.ConfirmManual(ctx, adminOf(rt), invoice.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.ConfirmManual(ctx, adminOf(rw), invoice.ID)
	require.NoError(t, err)

	sub, err := f.subs.Active(ctx, rt.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	rwSub, err := f.subs.Active(ctx, rw.ID)
	require.NoError(t, err)
	assert.Nil(t, rwSub)
}

func TestCoveredRTCannotSubscribe(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)

	invoice, err := f.svc.Subscribe(ctx, adminOf(rw), invoicedomain.SubscribeRequest{PlanID: "rw-yearly"})
	require.NoError(t, err)
	_, err = f.svc.ConfirmManual(ctx, adminOf(rw), invoice.ID)
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, adminOf(rt), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	assert.ErrorIs(t, err, invoicedomain.ErrSubscriptionNotAllowed)
}

func TestListUsesScope(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RT", nil)
	rt1 := f.tenant(t, "RT 01", "RT", "", &rw.ID)
	rt2 := f.tenant(t, "RT 02", "RT", "", &rw.ID)
	outsider := f.tenant(t, "RT 09", "RT", "", nil)

	for _, tenant := range []*tenantdomain.Tenant{rt1, rt2, outsider} {
		_, err := f.svc.Subscribe(ctx, adminOf(tenant), invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.List(ctx, tenancy.Tenants(rw.ID, rt1.ID, rt2.ID), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)

	resp, err = f.svc.List(ctx, tenancy.Tenants(rt1.ID), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, rt1.ID, resp.Invoices[0].TenantID)

	resp, err = f.svc.List(ctx, tenancy.NoTenants(), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Invoices)

	req := invoicedomain.ListInvoiceRequest{}
	req.PageSize = 2
	resp, err = f.svc.List(ctx, tenancy.AllTenants(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)
	assert.True(t, resp.HasMore)

	req.PageToken = resp.NextPageToken
	resp, err = f.svc.List(ctx, tenancy.AllTenants(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 1)
	assert.False(t, resp.HasMore)

	_, err = f.svc.List(ctx, tenancy.AllTenants(), invoicedomain.ListInvoiceRequest{Status: "SETTLED"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	resp, err = f.svc.List(ctx, tenancy.AllTenants(), invoicedomain.ListInvoiceRequest{Status: "unpaid"})
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 3)
}

func TestDownloadRendersPDF(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	admin := adminOf(rt)

	invoice, err := f.svc.Subscribe(ctx, admin, invoicedomain.SubscribeRequest{PlanID: "rt-monthly"})
	require.NoError(t, err)

	doc, err := f.svc.Download(ctx, admin, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.Number+".pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)

	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))

	_, err = f.svc.Download(ctx, tenancy.Anonymous(), invoice.ID)
	assert.ErrorIs(t, err, tenancy.ErrUnauthenticated)
}
