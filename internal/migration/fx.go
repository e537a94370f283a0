package migration

import (
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}

		created, err := seed.EnsureSuperAdmin(conn, cfg.Bootstrap)
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap super admin created", zap.String("email", cfg.Bootstrap.SuperAdminEmail))
		}
		return nil
	}),
)
