package tenancy

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/pkg/db/option"
	"github.com/smallbiznis/rukun/pkg/repository"
	"github.com/smallbiznis/rukun/pkg/rls"
	"gorm.io/gorm"
)

// Owned is implemented by models carrying a tenant_id.
type Owned interface {
	OwnerTenantID() snowflake.ID
	SetOwnerTenantID(id snowflake.ID)
}

// Store wraps a generic repository so that every read takes a Scope and
// every write goes through OwnerForCreate or CheckMutation. Repositories of
// tenant-owned tables write through it.
type Store[T any, PT interface {
	*T
	Owned
}] struct {
	db   *gorm.DB
	repo repository.Repository[T]
}

func NewStore[T any, PT interface {
	*T
	Owned
}](db *gorm.DB) *Store[T, PT] {
	return &Store[T, PT]{db: db, repo: repository.ProvideStore[T](db)}
}

func (s *Store[T, PT]) WithTrx(tx *gorm.DB) *Store[T, PT] {
	return &Store[T, PT]{db: tx, repo: s.repo.WithTrx(tx)}
}

func (s *Store[T, PT]) Find(ctx context.Context, scope Scope, filter *T, opts ...option.QueryOption) ([]*T, error) {
	return s.repo.Find(ctx, filter, append([]option.QueryOption{scope}, opts...)...)
}

// Create assigns the owning tenant and inserts the entity.
func (s *Store[T, PT]) Create(ctx context.Context, p Principal, entity PT) error {
	owner, err := OwnerForCreate(p, entity.OwnerTenantID())
	if err != nil {
		return err
	}
	entity.SetOwnerTenantID(owner)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, int64(owner)); err != nil {
			return err
		}
		return s.repo.WithTrx(tx).Create(ctx, (*T)(entity))
	})
}

// Update applies changes after checking p may mutate the row and reports
// whether the row still matched conds. The owning tenant cannot be changed
// through updates.
func (s *Store[T, PT]) Update(ctx context.Context, p Principal, id snowflake.ID, updates map[string]any, conds ...option.QueryOption) (bool, error) {
	var applied bool
	err := s.mutate(ctx, p, id, OpUpdate, func(repo repository.Repository[T]) error {
		clean := make(map[string]any, len(updates))
		for key, value := range updates {
			if key == DefaultTenantColumn {
				continue
			}
			clean[key] = value
		}
		if len(clean) == 0 {
			return nil
		}
		rows, err := repo.Update(ctx, id, clean, conds...)
		if err != nil {
			return err
		}
		applied = rows == 1
		return nil
	})
	return applied, err
}

func (s *Store[T, PT]) mutate(ctx context.Context, p Principal, id snowflake.ID, op Operation, apply func(repository.Repository[T]) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		current, err := repo.FindOne(ctx, nil, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.EQ,
			Value:    id,
		}))
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}

		owner := PT(current).OwnerTenantID()
		if err := CheckMutation(p, owner, op); err != nil {
			return err
		}
		if err := rls.WithTenant(tx, int64(owner)); err != nil {
			return err
		}
		return apply(repo)
	})
}
