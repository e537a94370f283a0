package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/pkg/db/option"
	"github.com/smallbiznis/rukun/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*invoicedomain.Invoice, error) {
	return r.first(db.WithContext(ctx).Where("number = ?", strings.TrimSpace(number)))
}

func (r *repo) FindOpenByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.first(db.WithContext(ctx).
		Where("open_key IS NOT NULL").
		Where("(tenant_id = ? OR beneficiary_tenant_id = ?)", tenantID, tenantID).
		Order("id desc"))
}

// store routes every write and listing through the tenancy guard.
func (r *repo) store(db *gorm.DB) *tenancy.Store[invoicedomain.Invoice, *invoicedomain.Invoice] {
	return tenancy.NewStore[invoicedomain.Invoice, *invoicedomain.Invoice](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, principal tenancy.Principal, invoice *invoicedomain.Invoice) error {
	return r.store(db).Create(ctx, principal, invoice)
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, from, to invoicedomain.InvoiceStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		updates[key] = value
	}
	updates["status"] = to
	if !to.IsOpen() {
		updates["open_key"] = nil
	}

	return r.store(db).Update(ctx, principal, id, updates, option.ApplyOperator(option.Condition{
		Field:    "status",
		Operator: option.EQ,
		Value:    from,
	}))
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.store(db).Update(ctx, principal, id, fields)
	return err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter invoicedomain.ListFilter, page pagination.Pagination) ([]*invoicedomain.Invoice, error) {
	filters := option.QueryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return applyListFilter(stmt, filter)
	})
	return r.store(db).Find(ctx, scope, nil, filters, option.ApplyPagination(page))
}

func applyListFilter(stmt *gorm.DB, filter invoicedomain.ListFilter) *gorm.DB {
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if planID := strings.TrimSpace(filter.PlanID); planID != "" {
		stmt = stmt.Where("plan_id = ?", planID)
	}
	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", filter.CreatedTo.UTC())
	}
	if filter.DueFrom != nil {
		stmt = stmt.Where("due_date >= ?", filter.DueFrom.UTC())
	}
	if filter.DueTo != nil {
		stmt = stmt.Where("due_date <= ?", filter.DueTo.UTC())
	}
	return stmt
}

func (r *repo) first(stmt *gorm.DB) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := stmt.First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}
