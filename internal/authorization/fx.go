package authorization

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(NewService),
	fx.Provide(func(s *ServiceImpl) Gate { return s }),
	fx.Invoke(registerHooks),
)

// registerHooks loads the permission mapping before the server starts accepting requests.
func registerHooks(lc fx.Lifecycle, s *ServiceImpl) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.SeedDefaults(ctx)
		},
	})
}
