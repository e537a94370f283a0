package authorization

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/observability/metrics"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) AuditLog(_ context.Context, _ *snowflake.ID, _ string, _ *string, action string, _ string, _ *string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *recordingAudit) List(context.Context, tenancy.Scope, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func (r *recordingAudit) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a == action {
			n++
		}
	}
	return n
}

func setupGate(t *testing.T) (*ServiceImpl, *gorm.DB, *recordingAudit) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	m, err := metrics.New(metrics.NewRegistry())
	require.NoError(t, err)
	audit := &recordingAudit{}

	svc, err := NewService(Params{DB: db, Log: zap.NewNop(), Metrics: m, AuditSvc: audit})
	require.NoError(t, err)
	require.NoError(t, svc.SeedDefaults(context.Background()))
	return svc, db, audit
}

func principal(role string, tenantID snowflake.ID) tenancy.Principal {
	return tenancy.Principal{UserID: 77, TenantID: &tenantID, RoleCode: role}
}

var super = tenancy.Principal{UserID: 1, RoleCode: tenancy.RoleSuperAdmin}

func TestSuperAdminBypassesEveryCheck(t *testing.T) {
	gate, _, _ := setupGate(t)
	ctx := context.Background()

	assert.NoError(t, gate.Can(ctx, super, "anything.at_all"))
	for _, action := range []InvoiceAction{InvoiceView, InvoiceUpdate, InvoiceCreate, InvoiceDelete} {
		assert.NoError(t, gate.AuthorizeInvoice(ctx, super, action, 12345))
	}
	assert.NoError(t, gate.RequireSuperAdmin(ctx, super))
}

func TestDynamicPermissionsFromDefaults(t *testing.T) {
	gate, _, audit := setupGate(t)
	ctx := context.Background()

	assert.NoError(t, gate.Can(ctx, principal(tenancy.RoleAdminRT, 12), PermissionBillingSubscribe))
	assert.NoError(t, gate.Can(ctx, principal(tenancy.RoleAdminRW, 5), PermissionHierarchyView))
	assert.ErrorIs(t, gate.Can(ctx, principal(tenancy.RoleAdminRT, 12), PermissionHierarchyView), ErrForbidden)
	assert.ErrorIs(t, gate.Can(ctx, principal(tenancy.RoleMember, 12), PermissionBillingSubscribe), ErrForbidden)
	assert.ErrorIs(t, gate.Can(ctx, tenancy.Anonymous(), PermissionBillingView), tenancy.ErrUnauthenticated)
	assert.Equal(t, 2, audit.count("authorization.denied"))
}

func TestInvoicePolicyIsStrictEquality(t *testing.T) {
	gate, _, _ := setupGate(t)
	ctx := context.Background()
	rwAdmin := principal(tenancy.RoleAdminRW, 5)
	rtAdmin := principal(tenancy.RoleAdminRT, 12)
	member := principal(tenancy.RoleMember, 12)

	tests := []struct {
		name   string
		p      tenancy.Principal
		action InvoiceAction
		owner  snowflake.ID
		err    error
	}{
		{"rt admin views own", rtAdmin, InvoiceView, 12, nil},
		{"rt admin updates own", rtAdmin, InvoiceUpdate, 12, nil},
		{"rw admin views own", rwAdmin, InvoiceView, 5, nil},
		{"rw admin cannot view child invoice", rwAdmin, InvoiceView, 12, ErrForbidden},
		{"rt admin cannot view parent invoice", rtAdmin, InvoiceView, 5, ErrForbidden},
		{"member cannot view own tenant invoice", member, InvoiceView, 12, ErrForbidden},
		{"create always denied", rtAdmin, InvoiceCreate, 12, ErrForbidden},
		{"delete always denied", rtAdmin, InvoiceDelete, 12, ErrForbidden},
		{"tenantless principal denied", tenancy.Principal{UserID: 9, RoleCode: tenancy.RoleAdminRT}, InvoiceView, 12, ErrForbidden},
		{"anonymous", tenancy.Anonymous(), InvoiceView, 12, tenancy.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.AuthorizeInvoice(ctx, tt.p, tt.action, tt.owner)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGrantAndRevokeSwapTheCache(t *testing.T) {
	gate, _, audit := setupGate(t)
	ctx := context.Background()
	member := principal(tenancy.RoleMember, 12)

	require.ErrorIs(t, gate.Can(ctx, member, PermissionInvoiceList), ErrForbidden)
	before := gate.cache.current.Load()

	require.NoError(t, gate.Grant(ctx, super, "warga", PermissionInvoiceList))
	assert.NotSame(t, before, gate.cache.current.Load())
	assert.NoError(t, gate.Can(ctx, member, PermissionInvoiceList))

	perms, err := gate.Permissions(ctx, tenancy.RoleMember)
	require.NoError(t, err)
	assert.Contains(t, perms, PermissionInvoiceList)

	require.NoError(t, gate.Grant(ctx, super, tenancy.RoleMember, PermissionInvoiceList), "granting twice is a no-op")

	require.NoError(t, gate.Revoke(ctx, super, tenancy.RoleMember, PermissionInvoiceList))
	assert.ErrorIs(t, gate.Can(ctx, member, PermissionInvoiceList), ErrForbidden)
	require.NoError(t, gate.Revoke(ctx, super, tenancy.RoleMember, PermissionInvoiceList))

	assert.Equal(t, 1, audit.count("permission.granted"))
	assert.Equal(t, 1, audit.count("permission.revoked"))
}

func TestPermissionAdministrationRequiresSuperAdmin(t *testing.T) {
	gate, _, _ := setupGate(t)
	ctx := context.Background()

	err := gate.Grant(ctx, principal(tenancy.RoleAdminRW, 5), tenancy.RoleMember, PermissionAuditView)
	assert.ErrorIs(t, err, ErrForbidden)
	err = gate.Grant(ctx, super, tenancy.RoleSuperAdmin, PermissionAuditView)
	assert.ErrorIs(t, err, ErrInvalidRole)
	err = gate.Grant(ctx, super, tenancy.RoleMember, "bad permission")
	assert.ErrorIs(t, err, ErrInvalidPermission)
}

func TestChecksDoNotReadStorage(t *testing.T) {
	gate, db, _ := setupGate(t)
	ctx := context.Background()
	rtAdmin := principal(tenancy.RoleAdminRT, 12)

	require.NoError(t, gate.Can(ctx, rtAdmin, PermissionBillingView))
	require.NoError(t, db.Exec("DELETE FROM casbin_rule").Error)
	assert.NoError(t, gate.Can(ctx, rtAdmin, PermissionBillingView), "served from the cached mapping")

	require.NoError(t, gate.Reload(ctx))
	assert.ErrorIs(t, gate.Can(ctx, rtAdmin, PermissionBillingView), ErrForbidden)
}

func TestSeedDefaultsKeepsExistingMapping(t *testing.T) {
	gate, _, _ := setupGate(t)
	ctx := context.Background()

	require.NoError(t, gate.Revoke(ctx, super, tenancy.RoleMember, PermissionBillingView))
	require.NoError(t, gate.SeedDefaults(ctx))
	assert.ErrorIs(t, gate.Can(ctx, principal(tenancy.RoleMember, 12), PermissionBillingView), ErrForbidden)
}

func TestConcurrentChecksDuringGrant(t *testing.T) {
	gate, _, _ := setupGate(t)
	ctx := context.Background()
	rtAdmin := principal(tenancy.RoleAdminRT, 12)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Can(ctx, rtAdmin, PermissionBillingView))
		}()
	}
	require.NoError(t, gate.Grant(ctx, super, tenancy.RoleAdminRT, PermissionHierarchyView))
	wg.Wait()
	assert.NoError(t, gate.Can(ctx, rtAdmin, PermissionHierarchyView))
}
