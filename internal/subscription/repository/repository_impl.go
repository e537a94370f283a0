package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) store(db *gorm.DB) *tenancy.Store[subscriptiondomain.Subscription, *subscriptiondomain.Subscription] {
	return tenancy.NewStore[subscriptiondomain.Subscription, *subscriptiondomain.Subscription](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, principal tenancy.Principal, subscription *subscriptiondomain.Subscription) error {
	return r.store(db).Create(ctx, principal, subscription)
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, subscriptiondomain.StatusActive).
		Order("id desc").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindActiveByTenants(ctx context.Context, db *gorm.DB, tenantIDs []snowflake.ID) ([]*subscriptiondomain.Subscription, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var subs []*subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("tenant_id IN ? AND status = ?", tenantIDs, subscriptiondomain.StatusActive).
		Find(&subs).Error
	return subs, err
}

func (r *repo) FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) Supersede(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, at time.Time) error {
	_, err := r.store(db).Update(ctx, principal, id, map[string]any{
		"status":        subscriptiondomain.StatusSuperseded,
		"active_key":    nil,
		"superseded_at": at,
		"updated_at":    at,
	}, option.ApplyOperator(option.Condition{
		Field:    "status",
		Operator: option.EQ,
		Value:    subscriptiondomain.StatusActive,
	}))
	return err
}

func (r *repo) Extend(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, endDate time.Time, invoiceID snowflake.ID, at time.Time) error {
	_, err := r.store(db).Update(ctx, principal, id, map[string]any{
		"end_date":   endDate,
		"invoice_id": invoiceID,
		"updated_at": at,
	})
	return err
}
