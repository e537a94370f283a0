package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/internal/tenant/domain"
	"github.com/smallbiznis/rukun/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func setupTenantService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Tenant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{Billing: config.BillingConfig{TrialDays: 14}}
	return NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.NewRepository(db),
		Clock:  clock.NewFakeClock(t0),
		Config: cfg,
	})
}

var superAdmin = tenancy.Principal{UserID: 1, RoleCode: tenancy.RoleSuperAdmin}

func adminOf(tenant *domain.Tenant, role string) tenancy.Principal {
	id := tenant.ID
	return tenancy.Principal{UserID: 50, TenantID: &id, RoleCode: role}
}

func TestCreateOpensTrialWindow(t *testing.T) {
	svc := setupTenantService(t)
	rw, err := svc.Create(context.Background(), superAdmin, domain.CreateTenantRequest{Name: "RW 05 Sukamaju", Level: "rw", BillingMode: "RW"})
	require.NoError(t, err)

	assert.Equal(t, tenancy.LevelRW, rw.Level)
	assert.Equal(t, "rw-05-sukamaju", rw.Slug)
	assert.Equal(t, t0, rw.TrialStartedAt)
	assert.Equal(t, t0.Add(14*24*time.Hour), rw.TrialEndsAt)
	assert.True(t, rw.CoversChildren())
	assert.Nil(t, rw.ParentTenantID)
}

func TestCreateHierarchyRules(t *testing.T) {
	svc := setupTenantService(t)
	ctx := context.Background()

	rw, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	rt, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 01", Level: "RT", ParentTenantID: &rw.ID})
	require.NoError(t, err)

	_, err = svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 02", Level: "RT", ParentTenantID: &rt.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidHierarchy)

	_, err = svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 06", Level: "RW", ParentTenantID: &rw.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidHierarchy)

	missing := snowflake.ID(404)
	_, err = svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 03", Level: "RT", ParentTenantID: &missing})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)

	_, err = svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 04", Level: "RT", BillingMode: "RW"})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingMode)

	_, err = svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "X", Level: "RK"})
	assert.ErrorIs(t, err, domain.ErrInvalidLevel)
}

func TestRWAdminCreatesOnlyOwnChildren(t *testing.T) {
	svc := setupTenantService(t)
	ctx := context.Background()

	rw, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	other, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 07", Level: "RW"})
	require.NoError(t, err)

	admin := adminOf(rw, tenancy.RoleAdminRW)
	child, err := svc.Create(ctx, admin, domain.CreateTenantRequest{Name: "RT 01", Level: "RT"})
	require.NoError(t, err)
	require.NotNil(t, child.ParentTenantID)
	assert.Equal(t, rw.ID, *child.ParentTenantID)

	_, err = svc.Create(ctx, admin, domain.CreateTenantRequest{Name: "RT 02", Level: "RT", ParentTenantID: &other.ID})
	assert.ErrorIs(t, err, tenancy.ErrCrossTenantModification)

	_, err = svc.Create(ctx, admin, domain.CreateTenantRequest{Name: "RW 08", Level: "RW"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(ctx, adminOf(child, tenancy.RoleAdminRT), domain.CreateTenantRequest{Name: "RT 09", Level: "RT"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(ctx, tenancy.Anonymous(), domain.CreateTenantRequest{Name: "RT 10", Level: "RT"})
	assert.ErrorIs(t, err, tenancy.ErrUnauthenticated)
}

func TestDuplicateNamesGetDistinctSlugs(t *testing.T) {
	svc := setupTenantService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Slug, b.Slug)
}

func TestGraphFeedsScopeFilter(t *testing.T) {
	svc := setupTenantService(t)
	ctx := context.Background()

	rw, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	rt1, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 01", Level: "RT", ParentTenantID: &rw.ID})
	require.NoError(t, err)
	rt2, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 02", Level: "RT", ParentTenantID: &rw.ID})
	require.NoError(t, err)
	other, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 09", Level: "RW"})
	require.NoError(t, err)

	filter := tenancy.NewScopeFilter(svc)
	scope, err := filter.Resolve(ctx, adminOf(rw, tenancy.RoleAdminRW))
	require.NoError(t, err)
	for _, id := range []snowflake.ID{rw.ID, rt1.ID, rt2.ID} {
		assert.True(t, scope.Contains(id))
	}
	assert.False(t, scope.Contains(other.ID))

	scope, err = filter.Resolve(ctx, adminOf(rt1, tenancy.RoleAdminRT))
	require.NoError(t, err)
	assert.True(t, scope.Contains(rt1.ID))
	assert.False(t, scope.Contains(rw.ID))
	assert.False(t, scope.Contains(rt2.ID))

	_, err = svc.Node(ctx, 404)
	assert.ErrorIs(t, err, tenancy.ErrUnknownTenant)
}

func TestUpdateBillingModeIsStrictEquality(t *testing.T) {
	svc := setupTenantService(t)
	ctx := context.Background()

	rw, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RW 05", Level: "RW"})
	require.NoError(t, err)
	rt, err := svc.Create(ctx, superAdmin, domain.CreateTenantRequest{Name: "RT 01", Level: "RT", ParentTenantID: &rw.ID})
	require.NoError(t, err)

	_, err = svc.UpdateBillingMode(ctx, adminOf(rw, tenancy.RoleAdminRW), rt.ID, domain.BillingModeRT)
	assert.ErrorIs(t, err, tenancy.ErrCrossTenantModification)

	updated, err := svc.UpdateBillingMode(ctx, adminOf(rw, tenancy.RoleAdminRW), rw.ID, domain.BillingModeRW)
	require.NoError(t, err)
	assert.True(t, updated.CoversChildren())

	stored, err := svc.Get(ctx, rw.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillingModeRW, stored.BillingMode)

	_, err = svc.UpdateBillingMode(ctx, superAdmin, rt.ID, domain.BillingModeRW)
	assert.ErrorIs(t, err, domain.ErrInvalidBillingMode)
}
