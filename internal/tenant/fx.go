package tenant

import (
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/internal/tenant/domain"
	"github.com/smallbiznis/rukun/internal/tenant/repository"
	"github.com/smallbiznis/rukun/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(s *service.Service) tenancy.Graph { return s }),
	fx.Provide(tenancy.NewScopeFilter),
)
