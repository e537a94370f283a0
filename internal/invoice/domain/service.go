package domain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/pkg/db/pagination"
	"gorm.io/gorm"
)

type SubscribeRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
	// TenantID is honoured for super admins only.
	TenantID snowflake.ID `json:"tenant_id,omitempty"`
	// BeneficiaryTenantID lets an RW pay for one of its RTs.
	BeneficiaryTenantID *snowflake.ID `json:"beneficiary_tenant_id,omitempty"`
}

type PayRequest struct {
	Channel string `json:"channel"`
}

type PayResult struct {
	InvoiceID   snowflake.ID              `json:"invoice_id"`
	Status      InvoiceStatus             `json:"status"`
	PaymentMode string                    `json:"payment_mode"`
	Provider    paymentdomain.Channel     `json:"provider"`
	Outcome     paymentdomain.Outcome     `json:"outcome"`
	Instruction paymentdomain.Instruction `json:"instruction"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status      string        `form:"status"`
	PlanID      string        `form:"plan_id"`
	TenantID    *snowflake.ID `form:"-"`
	CreatedFrom *time.Time    `form:"created_from" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo   *time.Time    `form:"created_to" time_format:"2006-01-02T15:04:05Z07:00"`
	DueFrom     *time.Time    `form:"due_from" time_format:"2006-01-02T15:04:05Z07:00"`
	DueTo       *time.Time    `form:"due_to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type ListFilter struct {
	Status      *InvoiceStatus
	PlanID      string
	TenantID    *snowflake.ID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	DueFrom     *time.Time
	DueTo       *time.Time
}

// Document is a rendered invoice file.
type Document struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type Service interface {
	Subscribe(ctx context.Context, principal tenancy.Principal, req SubscribeRequest) (*Invoice, error)
	Get(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*Invoice, error)
	Pay(ctx context.Context, principal tenancy.Principal, id snowflake.ID, req PayRequest) (PayResult, error)
	ConfirmManual(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (*Invoice, error)
	HandleGatewayCallback(ctx context.Context, channel string, headers http.Header, body []byte) error
	List(ctx context.Context, scope tenancy.Scope, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Download(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (Document, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	// FindOpenByTenant returns the open invoice billed to or paying for tenantID.
	FindOpenByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Invoice, error)
	// Insert stores a new invoice owned by the principal's tenant.
	Insert(ctx context.Context, db *gorm.DB, principal tenancy.Principal, invoice *Invoice) error
	// Transition moves an invoice from one status to another and reports
	// false when the invoice was no longer in from. The principal must be
	// allowed to mutate the invoice.
	Transition(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, from, to InvoiceStatus, fields map[string]any) (bool, error)
	UpdateFields(ctx context.Context, db *gorm.DB, principal tenancy.Principal, id snowflake.ID, fields map[string]any) error
	List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter ListFilter, page pagination.Pagination) ([]*Invoice, error)
}

var (
	ErrInvalidInvoiceID       = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrOpenInvoiceExists      = errors.New("open_invoice_exists")
	ErrTerminalInvoice        = errors.New("invoice_terminal")
	ErrInvalidTransition      = errors.New("invalid_invoice_transition")
	ErrInvalidChannel         = errors.New("invalid_payment_channel")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrInvalidTimeRange       = errors.New("invalid_time_range")
	ErrPlanLevelMismatch      = errors.New("plan_level_mismatch")
	ErrInvalidBeneficiary     = errors.New("invalid_beneficiary")
	ErrSubscriptionNotAllowed = errors.New("subscription_not_allowed")
)
