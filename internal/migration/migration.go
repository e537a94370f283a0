package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/rukun/internal/audit/domain"
	authdomain "github.com/smallbiznis/rukun/internal/auth/domain"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
	settingsdomain "github.com/smallbiznis/rukun/internal/settings/domain"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded SQL migrations against a postgres handle.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&authdomain.User{},
		&authdomain.Session{},
		&invoicedomain.Invoice{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.EventRecord{},
		&settingsdomain.Setting{},
		&auditdomain.AuditLog{},
	}
}

// Apply migrates the schema. Postgres uses the versioned SQL files; mysql and
// sqlite fall back to gorm AutoMigrate for local development.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
