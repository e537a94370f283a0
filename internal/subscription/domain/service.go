package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"gorm.io/gorm"
)

type ActivateRequest struct {
	TenantID       snowflake.ID
	PlanID         string
	Type           Type
	CoversChildren bool
	InvoiceID      snowflake.ID
	At             time.Time
}

type Service interface {
	// Active returns the stored ACTIVE subscription of a tenant. It may already be past its end date.
	Active(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	ActiveByTenants(ctx context.Context, tenantIDs []snowflake.ID) (map[snowflake.ID]*Subscription, error)
	// Activate creates or extends the subscription paid by an invoice inside tx.
	Activate(ctx context.Context, tx *gorm.DB, req ActivateRequest) (*Subscription, error)
}

type Repository interface {
	// Writes go through the tenancy guard on behalf of principal.
	Insert(ctx context.Context, db *gorm.DB, principal tenancy.Principal, subscription *Subscription) error
	FindActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	FindActiveByTenants(ctx context.Context, db *gorm.DB, tenantIDs []snowflake.ID) ([]*Subscription, error)
	FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*Subscription, error)
	Supersede(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, at time.Time) error
	Extend(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, endDate time.Time, invoiceID snowflake.ID, at time.Time) error
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidType    = errors.New("invalid_subscription_type")
	ErrInvalidPlan    = errors.New("invalid_plan")
	ErrInvalidInvoice = errors.New("invalid_invoice")
)
