package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/rukun/internal/auth/domain"
	"github.com/smallbiznis/rukun/internal/auth/password"
	"github.com/smallbiznis/rukun/internal/config"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Platform Admin"

// EnsureSuperAdmin creates the platform super admin from the bootstrap config
// when no account with that email exists. It reports whether a user was created.
func EnsureSuperAdmin(db *gorm.DB, cfg config.BootstrapConfig) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}

	email := strings.ToLower(strings.TrimSpace(cfg.SuperAdminEmail))
	if email == "" {
		return false, nil
	}
	if strings.TrimSpace(cfg.SuperAdminPassword) == "" {
		return false, errors.New("bootstrap super admin password is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return false, err
	}

	created := false
	ctx := context.Background()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(cfg.SuperAdminPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user = authdomain.User{
			ID:                  node.Generate(),
			RoleCode:            tenancy.RoleSuperAdmin,
			Email:               email,
			DisplayName:         defaultAdminDisplay,
			PasswordHash:        &hashed,
			LastPasswordChanged: &now,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
