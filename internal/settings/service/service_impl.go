package service

import (
	"context"

	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	"github.com/smallbiznis/rukun/internal/authorization"
	"github.com/smallbiznis/rukun/internal/clock"
	"github.com/smallbiznis/rukun/internal/settings/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Gate     authorization.Gate
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	gate     authorization.Gate
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settings.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		gate:     p.Gate,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) PaymentSettings(ctx context.Context) (domain.PaymentSettings, error) {
	setting, err := s.repo.Get(ctx, s.db, domain.PaymentSettingsKey)
	if err != nil {
		return domain.PaymentSettings{}, err
	}
	if setting == nil {
		return domain.DefaultPaymentSettings(), nil
	}
	return domain.ParsePaymentSettings(setting.Value), nil
}

// UpdatePaymentSettings stores the normalised document. Invalid values are
// replaced with defaults rather than rejected.
func (s *Service) UpdatePaymentSettings(ctx context.Context, principal tenancy.Principal, doc map[string]any) (domain.PaymentSettings, error) {
	if err := s.gate.RequireSuperAdmin(ctx, principal); err != nil {
		return domain.PaymentSettings{}, err
	}

	settings := domain.ParsePaymentSettings(doc)
	actor := principal.ActorID()
	setting := &domain.Setting{
		Key:       domain.PaymentSettingsKey,
		Value:     datatypes.JSONMap(settings.Document()),
		UpdatedBy: &actor,
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, setting); err != nil {
		return domain.PaymentSettings{}, err
	}

	s.log.Info("payment settings updated",
		zap.String("umkm_scope", string(settings.UMKMScope)),
		zap.String("subscription_gateway", string(settings.Gateways.Subscription)),
	)
	auditdomain.Record(ctx, s.auditSvc, principal, nil, "settings.payment_updated", "settings", domain.PaymentSettingsKey, settings.Document())
	return settings, nil
}

func (s *Service) GatewayFor(ctx context.Context, purpose domain.Purpose) (domain.Gateway, error) {
	settings, err := s.PaymentSettings(ctx)
	if err != nil {
		return "", err
	}
	return settings.For(purpose), nil
}
