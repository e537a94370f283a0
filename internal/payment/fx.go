package payment

import (
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/payment/adapters"
	"github.com/smallbiznis/rukun/internal/payment/adapters/dana"
	"github.com/smallbiznis/rukun/internal/payment/adapters/manual"
	"github.com/smallbiznis/rukun/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			manual.New(cfg),
			dana.New(cfg),
		)
	}),
)
