package repository

import (
	"context"

	"github.com/smallbiznis/rukun/pkg/db/option"
	"gorm.io/gorm"
)

// Repository is a generic gorm-backed store for one model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// Update reports how many rows matched the id and every condition.
	Update(ctx context.Context, resourceID any, resource any, opts ...option.QueryOption) (int64, error)
}
