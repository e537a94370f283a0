package settings

import (
	"github.com/smallbiznis/rukun/internal/settings/repository"
	"github.com/smallbiznis/rukun/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
