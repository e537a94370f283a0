package authorization

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/observability/metrics"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Metrics  *metrics.Metrics    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	auditSvc auditdomain.Service
	adapter  *gormadapter.Adapter
	cache    *permissionCache
	writeMu  sync.Mutex
}

func NewService(p Params) (*ServiceImpl, error) {
	adapter, err := gormadapter.NewAdapterByDB(p.DB)
	if err != nil {
		return nil, err
	}
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
		adapter:  adapter,
		cache:    newPermissionCache(adapter, p.Metrics),
	}, nil
}

func (s *ServiceImpl) Can(ctx context.Context, principal tenancy.Principal, permission string) error {
	if principal.IsSuperAdmin() {
		s.metrics.RecordAuthorization(true, "super_admin")
		return nil
	}
	if !principal.Authenticated() {
		s.metrics.RecordAuthorization(false, "unauthenticated")
		return tenancy.ErrUnauthenticated
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return ErrInvalidPermission
	}

	enforcer, err := s.cache.enforcer()
	if err != nil {
		return err
	}
	allowed, err := enforcer.Enforce(principal.RoleCode, permission)
	if err != nil {
		return err
	}
	if !allowed {
		s.deny(ctx, principal, "missing_permission", map[string]any{"permission": permission})
		return ErrForbidden
	}
	s.metrics.RecordAuthorization(true, "permission")
	return nil
}

// AuthorizeInvoice allows view and update only to billing admins of the
// exact billing-owner tenant. The RW hierarchy does not widen it. Invoices
// are never created or deleted through this gate.
func (s *ServiceImpl) AuthorizeInvoice(ctx context.Context, principal tenancy.Principal, action InvoiceAction, ownerTenantID snowflake.ID) error {
	if principal.IsSuperAdmin() {
		s.metrics.RecordAuthorization(true, "super_admin")
		return nil
	}
	if !principal.Authenticated() {
		s.metrics.RecordAuthorization(false, "unauthenticated")
		return tenancy.ErrUnauthenticated
	}

	meta := map[string]any{"action": string(action), "invoice_tenant_id": ownerTenantID.String()}
	switch action {
	case InvoiceView, InvoiceUpdate:
	default:
		s.deny(ctx, principal, "invoice_policy", meta)
		return ErrForbidden
	}
	if !principal.HasTenant() || principal.Tenant() != ownerTenantID || !principal.IsBillingAdmin() {
		s.deny(ctx, principal, "invoice_policy", meta)
		return ErrForbidden
	}
	s.metrics.RecordAuthorization(true, "invoice_policy")
	return nil
}

func (s *ServiceImpl) RequireSuperAdmin(ctx context.Context, principal tenancy.Principal) error {
	if principal.IsSuperAdmin() {
		return nil
	}
	if !principal.Authenticated() {
		return tenancy.ErrUnauthenticated
	}
	s.deny(ctx, principal, "super_admin_required", nil)
	return ErrForbidden
}

func (s *ServiceImpl) Grant(ctx context.Context, principal tenancy.Principal, role string, permission string) error {
	return s.mutate(ctx, principal, role, permission, true)
}

func (s *ServiceImpl) Revoke(ctx context.Context, principal tenancy.Principal, role string, permission string) error {
	return s.mutate(ctx, principal, role, permission, false)
}

func (s *ServiceImpl) Permissions(ctx context.Context, role string) ([]string, error) {
	role = normalizeRole(role)
	if role == "" {
		return nil, ErrInvalidRole
	}
	enforcer, err := s.cache.enforcer()
	if err != nil {
		return nil, err
	}
	rules, err := enforcer.GetFilteredPolicy(0, role)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		out = append(out, rule[1])
	}
	sort.Strings(out)
	return out, nil
}

// Reload swaps in a freshly loaded mapping.
func (s *ServiceImpl) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.cache.reload()
	return err
}

// SeedDefaults fills an empty permission table with the default role mapping.
func (s *ServiceImpl) SeedDefaults(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enforcer, err := s.cache.reload()
	if err != nil {
		return err
	}
	existing, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := DefaultPolicies()
	roles := make([]string, 0, len(defaults))
	for role := range defaults {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		for _, permission := range defaults[role] {
			if err := s.adapter.AddPolicy("p", "p", []string{role, permission}); err != nil {
				return err
			}
		}
	}
	if _, err := s.cache.reload(); err != nil {
		return err
	}
	s.log.Info("seeded default permissions", zap.Int("roles", len(roles)))
	return nil
}

func (s *ServiceImpl) mutate(ctx context.Context, principal tenancy.Principal, role string, permission string, grant bool) error {
	if err := s.RequireSuperAdmin(ctx, principal); err != nil {
		return err
	}
	role = normalizeRole(role)
	if role == "" || role == tenancy.RoleSuperAdmin || role == tenancy.RoleSystem {
		return ErrInvalidRole
	}
	permission = normalizePermission(permission)
	if permission == "" {
		return ErrInvalidPermission
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enforcer, err := s.cache.enforcer()
	if err != nil {
		return err
	}
	has, err := enforcer.HasPolicy(role, permission)
	if err != nil {
		return err
	}

	if grant == has {
		return nil
	}

	action := "permission.granted"
	if grant {
		err = s.adapter.AddPolicy("p", "p", []string{role, permission})
	} else {
		action = "permission.revoked"
		err = s.adapter.RemovePolicy("p", "p", []string{role, permission})
	}
	if err != nil {
		return err
	}
	if _, err := s.cache.reload(); err != nil {
		return err
	}

	s.log.Info("permission mapping changed",
		zap.String("action", action),
		zap.String("role", role),
		zap.String("permission", permission),
	)
	auditdomain.Record(ctx, s.auditSvc, principal, nil, action, "permission", permission, map[string]any{
		"role": role,
	})
	return nil
}

func (s *ServiceImpl) deny(ctx context.Context, principal tenancy.Principal, reason string, meta map[string]any) {
	s.metrics.RecordAuthorization(false, reason)
	payload := map[string]any{"reason": reason, "role": principal.RoleCode}
	for key, value := range meta {
		payload[key] = value
	}
	var tenantID *snowflake.ID
	if principal.HasTenant() {
		id := principal.Tenant()
		tenantID = &id
	}
	auditdomain.Record(ctx, s.auditSvc, principal, tenantID, "authorization.denied", "authorization", "capability", payload)
}

func normalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

func normalizePermission(permission string) string {
	permission = strings.ToLower(strings.TrimSpace(permission))
	if strings.ContainsAny(permission, " \t\n") {
		return ""
	}
	return permission
}
