package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Config   config.Config
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	trialDays int
	auditSvc  auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("tenant.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		trialDays: p.Config.Billing.TrialDays,
		auditSvc:  p.AuditSvc,
	}
}

// Create onboards a tenant and opens its trial window. Super admins may
// create any tenant; an RW admin may only add RTs under its own RW.
func (s *Service) Create(ctx context.Context, principal tenancy.Principal, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	if !principal.Authenticated() {
		return nil, tenancy.ErrUnauthenticated
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	level, ok := tenancy.ParseLevel(req.Level)
	if !ok {
		return nil, domain.ErrInvalidLevel
	}

	mode := domain.BillingModeRT
	if raw := strings.ToUpper(strings.TrimSpace(req.BillingMode)); raw != "" {
		parsed, ok := domain.ParseBillingMode(raw)
		if !ok {
			return nil, domain.ErrInvalidBillingMode
		}
		mode = parsed
	}
	if level == tenancy.LevelRT && mode == domain.BillingModeRW {
		return nil, domain.ErrInvalidBillingMode
	}

	parentID := req.ParentTenantID
	if !principal.IsSuperAdmin() {
		if principal.RoleCode != tenancy.RoleAdminRW || !principal.HasTenant() || level != tenancy.LevelRT {
			return nil, domain.ErrForbidden
		}
		own := principal.Tenant()
		if parentID != nil && *parentID != own {
			return nil, tenancy.ErrCrossTenantModification
		}
		parentID = &own
	}
	if parentID != nil && *parentID == 0 {
		parentID = nil
	}

	var parent *domain.Tenant
	if parentID != nil {
		found, err := s.repo.FindByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, domain.ErrParentNotFound
		}
		parent = found
	}
	if err := domain.ValidateLink(parent, level); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:             s.genID.Generate(),
		Name:           name,
		Level:          level,
		ParentTenantID: parentID,
		BillingMode:    mode,
		TrialStartedAt: now,
		TrialEndsAt:    now.Add(time.Duration(s.trialDays) * 24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tenantSlug, err := uniqueSlug(ctx, repo, name, tenant.ID)
		if err != nil {
			return err
		}
		tenant.Slug = tenantSlug
		return repo.Insert(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("level", string(level)),
	)
	auditdomain.Record(ctx, s.auditSvc, principal, &tenant.ID, "tenant.created", "tenant", tenant.ID.String(), map[string]any{
		"level":        string(level),
		"billing_mode": string(mode),
		"parent_id":    parentString(parentID),
	})
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

func (s *Service) ListChildren(ctx context.Context, rwID snowflake.ID) ([]*domain.Tenant, error) {
	return s.repo.ListChildren(ctx, rwID)
}

// UpdateBillingMode switches who pays for the RTs of an RW. Only the RW's
// own admins (or a super admin) may change it.
func (s *Service) UpdateBillingMode(ctx context.Context, principal tenancy.Principal, id snowflake.ID, mode domain.BillingMode) (*domain.Tenant, error) {
	if _, ok := domain.ParseBillingMode(string(mode)); !ok {
		return nil, domain.ErrInvalidBillingMode
	}
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenancy.CheckMutation(principal, tenant.ID, tenancy.OpUpdate); err != nil {
		return nil, err
	}
	if !principal.Unrestricted() && principal.RoleCode != tenancy.RoleAdminRW {
		return nil, domain.ErrForbidden
	}
	if tenant.Level != tenancy.LevelRW && mode == domain.BillingModeRW {
		return nil, domain.ErrInvalidBillingMode
	}

	now := s.clock.Now()
	if err := s.repo.UpdateBillingMode(ctx, tenant.ID, mode, now); err != nil {
		return nil, err
	}
	tenant.BillingMode = mode
	tenant.UpdatedAt = now

	auditdomain.Record(ctx, s.auditSvc, principal, &tenant.ID, "tenant.billing_mode_updated", "tenant", tenant.ID.String(), map[string]any{
		"billing_mode": string(mode),
	})
	return tenant, nil
}

// Node and ChildIDs let the scope filter walk the hierarchy.
func (s *Service) Node(ctx context.Context, id snowflake.ID) (tenancy.Node, error) {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return tenancy.Node{}, err
	}
	if tenant == nil {
		return tenancy.Node{}, tenancy.ErrUnknownTenant
	}
	return tenant.Node(), nil
}

func (s *Service) ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error) {
	return s.repo.ChildIDs(ctx, parentID)
}

func uniqueSlug(ctx context.Context, repo domain.Repository, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "tenant"
	}
	exists, err := repo.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !exists {
		return base, nil
	}
	return fmt.Sprintf("%s-%s", base, id.Base36()), nil
}

func parentString(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
