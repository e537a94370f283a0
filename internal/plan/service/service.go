package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Catalog *config.PlanCatalogHolder
}

type Service struct {
	log     *zap.Logger
	catalog *config.PlanCatalogHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("plan.service"),
		catalog: p.Catalog,
	}
}

func (s *Service) List(ctx context.Context, level tenancy.Level) ([]domain.Plan, error) {
	catalog := s.catalog.Get()
	plans := make([]domain.Plan, 0, len(catalog.Plans))
	for _, cfg := range catalog.Plans {
		plan := toPlan(catalog.Currency, cfg)
		if level != "" && plan.Level != level {
			continue
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Plan{}, domain.ErrInvalidPlan
	}
	catalog := s.catalog.Get()
	for _, cfg := range catalog.Plans {
		if cfg.ID == id {
			return toPlan(catalog.Currency, cfg), nil
		}
	}
	return domain.Plan{}, domain.ErrInvalidPlan
}

func toPlan(currency string, cfg config.PlanConfig) domain.Plan {
	level, _ := tenancy.ParseLevel(cfg.Level)
	planType, _ := subscriptiondomain.ParseType(strings.ToUpper(cfg.Type))
	features := make([]string, len(cfg.Features))
	copy(features, cfg.Features)
	return domain.Plan{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Price:          cfg.Price,
		Discount:       cfg.Discount,
		Currency:       currency,
		Type:           planType,
		Level:          level,
		CoversChildren: cfg.CoversChildren,
		Description:    cfg.Description,
		Features:       features,
	}
}
