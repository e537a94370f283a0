package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, tenant *Tenant) error
	FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error)
	ListChildren(ctx context.Context, parentID snowflake.ID) ([]*Tenant, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateBillingMode(ctx context.Context, id snowflake.ID, mode BillingMode, updatedAt time.Time) error
}
