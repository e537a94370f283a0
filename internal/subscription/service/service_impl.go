package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/clock"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Active(ctx context.Context, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	return s.repo.FindActive(ctx, s.db, tenantID)
}

func (s *Service) ActiveByTenants(ctx context.Context, tenantIDs []snowflake.ID) (map[snowflake.ID]*subscriptiondomain.Subscription, error) {
	subs, err := s.repo.FindActiveByTenants(ctx, s.db, tenantIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]*subscriptiondomain.Subscription, len(subs))
	for _, sub := range subs {
		out[sub.TenantID] = sub
	}
	return out, nil
}

// Activate applies a paid invoice to the tenant's subscription. Paying again
// for the plan already running extends it from its current end; any other
// plan supersedes the running subscription. Replaying the same invoice
// returns the subscription it already produced. Activation is a system effect
// of a paid invoice, so writes run as the system principal.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, req subscriptiondomain.ActivateRequest) (*subscriptiondomain.Subscription, error) {
	if req.TenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	if req.PlanID == "" {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if req.InvoiceID == 0 {
		return nil, subscriptiondomain.ErrInvalidInvoice
	}
	if _, ok := subscriptiondomain.ParseType(string(req.Type)); !ok {
		return nil, subscriptiondomain.ErrInvalidType
	}
	if tx == nil {
		tx = s.db
	}
	now := req.At
	if now.IsZero() {
		now = s.clock.Now()
	}

	applied, err := s.repo.FindByInvoiceID(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if applied != nil {
		return applied, nil
	}

	current, err := s.repo.FindActive(ctx, tx, req.TenantID)
	if err != nil {
		return nil, err
	}

	if current != nil && current.PlanID == req.PlanID && current.Type == req.Type &&
		req.Type != subscriptiondomain.TypeLifetime && current.ActiveAt(now) {
		from := *current.EndDate
		end := req.Type.PeriodEnd(from)
		if err := s.repo.Extend(ctx, tx, tenancy.System(), current.ID, *end, req.InvoiceID, now); err != nil {
			return nil, err
		}
		current.EndDate = end
		current.InvoiceID = &req.InvoiceID
		current.UpdatedAt = now
		s.log.Info("subscription extended",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("plan_id", req.PlanID),
			zap.Time("end_date", *end),
		)
		return current, nil
	}

	if current != nil {
		if err := s.repo.Supersede(ctx, tx, tenancy.System(), current.ID, now); err != nil {
			return nil, err
		}
	}

	activeKey := req.TenantID.String()
	invoiceID := req.InvoiceID
	sub := &subscriptiondomain.Subscription{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		PlanID:         req.PlanID,
		Type:           req.Type,
		Status:         subscriptiondomain.StatusActive,
		CoversChildren: req.CoversChildren,
		StartDate:      now,
		EndDate:        req.Type.PeriodEnd(now),
		InvoiceID:      &invoiceID,
		ActiveKey:      &activeKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, tenancy.System(), sub); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_id", req.PlanID),
	}
	if current != nil {
		fields = append(fields, zap.String("superseded_id", current.ID.String()))
	}
	s.log.Info("subscription activated", fields...)
	return sub, nil
}
