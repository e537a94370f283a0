package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/smallbiznis/rukun/internal/billing/domain"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/rukun/internal/invoice/repository"
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

var root = tenancy.Principal{UserID: 1, RoleCode: tenancy.RoleSuperAdmin}

type billingFixture struct {
	svc     *Service
	clock   *clock.FakeClock
	tenants *tenantservice.Service
	subs    subscriptiondomain.Service
	nextInv snowflake.ID
}

func setupBillingService(t *testing.T) *billingFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(t0)
	cfg := config.Config{Billing: config.BillingConfig{TrialDays: 14, TrialLowWaterDays: 3, InvoiceDueDays: 7}}

	tenants := tenantservice.NewService(tenantservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   tenantrepository.NewRepository(db),
		Clock:  clk,
		Config: cfg,
	})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepository.Provide(),
	})
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Config:      cfg,
		TenantSvc:   tenants,
		SubSvc:      subs,
		InvoiceRepo: invoicerepository.Provide(),
	})
	return &billingFixture{svc: svc, clock: clk, tenants: tenants, subs: subs, nextInv: 9000}
}

func (f *billingFixture) tenant(t *testing.T, name, level, mode string, parent *snowflake.ID) *tenantdomain.Tenant {
	t.Helper()
	tenant, err := f.tenants.Create(context.Background(), root, tenantdomain.CreateTenantRequest{
		Name:           name,
		Level:          level,
		ParentTenantID: parent,
		BillingMode:    mode,
	})
	require.NoError(t, err)
	return tenant
}

func (f *billingFixture) subscribe(t *testing.T, tenantID snowflake.ID, typ subscriptiondomain.Type, covers bool) {
	t.Helper()
	f.nextInv++
	_, err := f.subs.Activate(context.Background(), nil, subscriptiondomain.ActivateRequest{
		TenantID:       tenantID,
		PlanID:         strings.ToLower(string(typ)),
		Type:           typ,
		CoversChildren: covers,
		InvoiceID:      f.nextInv,
		At:             f.clock.Now(),
	})
	require.NoError(t, err)
}

func adminOf(role string, tenantID snowflake.ID) tenancy.Principal {
	return tenancy.Principal{UserID: 77, TenantID: &tenantID, RoleCode: role}
}

func TestStatusFollowsTrialWindow(t *testing.T) {
	f := setupBillingService(t)
	ctx := context.Background()
	rt := f.tenant(t, "RT 01", "RT", "", nil)
	p := adminOf(tenancy.RoleAdminRT, rt.ID)

	view, err := f.svc.Status(ctx, tenancy.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusDemo, view.Status)

	view, err = f.svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusTrial, view.Status)
	assert.Equal(t, 14, view.RemainingTrialDays)
	assert.Nil(t, view.ActionRequired)
	require.NoError(t, f.svc.RequireUsable(ctx, p))

	f.clock.Advance(13 * 24 * time.Hour)
	view, err = f.svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusTrial, view.Status)
	assert.Equal(t, 1, view.RemainingTrialDays)
	require.NotNil(t, view.ActionRequired)
	assert.Equal(t, billingdomain.ActionTrialEnding, *view.ActionRequired)

	f.clock.Advance(2 * 24 * time.Hour)
	view, err = f.svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusExpired, view.Status)
	assert.ErrorIs(t, f.svc.RequireUsable(ctx, p), billingdomain.ErrBillingRequired)
	assert.NoError(t, f.svc.RequireUsable(ctx, root))

	f.subscribe(t, rt.ID, subscriptiondomain.TypeMonthly, false)
	view, err = f.svc.Status(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusActive, view.Status)
}

func TestSummaryForCoveredRT(t *testing.T) {
	f := setupBillingService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RW", nil)
	rt := f.tenant(t, "RT 01", "RT", "", &rw.ID)
	f.subscribe(t, rw.ID, subscriptiondomain.TypeYearly, true)

	p := adminOf(tenancy.RoleAdminRT, rt.ID)
	summary, err := f.svc.Summary(ctx, p, tenancy.Tenants(rt.ID), 0)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, summary.TenantID)
	assert.Equal(t, billingdomain.StatusActive, summary.TenantStatus)
	assert.Equal(t, tenantdomain.BillingModeRW, summary.BillingMode)
	assert.Equal(t, billingdomain.SourceRWFunded, summary.BillingSource)
	assert.False(t, summary.CanSubscribe)
	require.NotNil(t, summary.Message)
	assert.Equal(t, messageFundedByRW, *summary.Message)

	elig, err := f.svc.Eligibility(ctx, rw.ID)
	require.NoError(t, err)
	assert.True(t, elig.CanSubscribe)
}

func TestSummaryRespectsScope(t *testing.T) {
	f := setupBillingService(t)
	ctx := context.Background()
	rt1 := f.tenant(t, "RT 01", "RT", "", nil)
	rt2 := f.tenant(t, "RT 02", "RT", "", nil)
	p := adminOf(tenancy.RoleAdminRT, rt1.ID)

	_, err := f.svc.Summary(ctx, p, tenancy.Tenants(rt1.ID), rt2.ID)
	assert.ErrorIs(t, err, tenantdomain.ErrNotFound)

	_, err = f.svc.Summary(ctx, tenancy.Anonymous(), tenancy.NoTenants(), 0)
	assert.ErrorIs(t, err, tenancy.ErrUnauthenticated)

	_, err = f.svc.Summary(ctx, root, tenancy.AllTenants(), 0)
	assert.ErrorIs(t, err, tenancy.ErrTenantRequired)

	summary, err := f.svc.Summary(ctx, root, tenancy.AllTenants(), rt2.ID)
	require.NoError(t, err)
	assert.True(t, summary.CanSubscribe)
	assert.Equal(t, billingdomain.StatusTrial, summary.TenantStatus)
}

func TestHierarchyResolvesEachChild(t *testing.T) {
	f := setupBillingService(t)
	ctx := context.Background()
	rw := f.tenant(t, "RW 05", "RW", "RW", nil)
	funded := f.tenant(t, "RT 13", "RT", "", &rw.ID)
	lifetime := f.tenant(t, "RT 12", "RT", "", &rw.ID)
	self := f.tenant(t, "RT 14", "RT", "", &rw.ID)

	f.subscribe(t, rw.ID, subscriptiondomain.TypeMonthly, true)
	f.subscribe(t, lifetime.ID, subscriptiondomain.TypeLifetime, false)
	f.subscribe(t, self.ID, subscriptiondomain.TypeYearly, false)

	p := adminOf(tenancy.RoleAdminRW, rw.ID)
	scope := tenancy.Tenants(rw.ID, funded.ID, lifetime.ID, self.ID)

	report, err := f.svc.Hierarchy(ctx, p, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, "RW 05", report.RWName)
	assert.Equal(t, billingdomain.StatusActive, report.Status)

	byID := make(map[snowflake.ID]billingdomain.ChildStatus, len(report.RTs))
	for _, child := range report.RTs {
		byID[child.ID] = child
	}
	require.Len(t, byID, 3)
	assert.Equal(t, billingdomain.SourceRWFunded, byID[funded.ID].BillingSource)
	assert.Equal(t, billingdomain.SourceLifetime, byID[lifetime.ID].BillingSource)
	assert.Equal(t, billingdomain.SourceSelfFunded, byID[self.ID].BillingSource)

	// The RW monthly plan lapses; only the funded child follows it.
	f.clock.Advance(40 * 24 * time.Hour)
	report, err = f.svc.Hierarchy(ctx, p, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.StatusExpired, report.Status)
	for _, child := range report.RTs {
		switch child.ID {
		case funded.ID:
			assert.Equal(t, billingdomain.StatusExpired, child.Status)
		case lifetime.ID:
			assert.Equal(t, billingdomain.StatusActive, child.Status)
			assert.Equal(t, billingdomain.SourceLifetime, child.BillingSource)
		case self.ID:
			assert.Equal(t, billingdomain.StatusActive, child.Status)
			assert.Equal(t, billingdomain.SourceSelfFunded, child.BillingSource)
		}
	}

	_, err = f.svc.Hierarchy(ctx, adminOf(tenancy.RoleAdminRT, self.ID), tenancy.Tenants(self.ID), 0)
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidHierarchy)
}
