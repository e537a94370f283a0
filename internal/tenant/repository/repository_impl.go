package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenant/domain"
	"github.com/smallbiznis/rukun/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, tenant *domain.Tenant) error {
	err := r.db.WithContext(ctx).Create(tenant).Error
	if db.IsCheckViolation(err) {
		return domain.ErrInvalidHierarchy
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// ChildIDs runs a single query so callers can build one set-membership predicate.
func (r *repository) ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("parent_tenant_id = ?", parentID).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListChildren(ctx context.Context, parentID snowflake.ID) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	err := r.db.WithContext(ctx).
		Where("parent_tenant_id = ?", parentID).
		Order("name asc, id asc").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Tenant{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repository) UpdateBillingMode(ctx context.Context, id snowflake.ID, mode domain.BillingMode, updatedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{"billing_mode": mode, "updated_at": updatedAt}).Error
}
