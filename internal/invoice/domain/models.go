// Package domain contains persistence models for subscription invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft           InvoiceStatus = "DRAFT"
	InvoiceStatusUnpaid          InvoiceStatus = "UNPAID"
	InvoiceStatusPaymentReceived InvoiceStatus = "PAYMENT_RECEIVED"
	InvoiceStatusPaid            InvoiceStatus = "PAID"
	InvoiceStatusCanceled        InvoiceStatus = "CANCELED"
	InvoiceStatusRefunded        InvoiceStatus = "REFUNDED"
	InvoiceStatusFailed          InvoiceStatus = "FAILED"
)

var transitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:           {InvoiceStatusUnpaid, InvoiceStatusCanceled},
	InvoiceStatusUnpaid:          {InvoiceStatusPaymentReceived, InvoiceStatusPaid, InvoiceStatusCanceled, InvoiceStatusFailed},
	InvoiceStatusPaymentReceived: {InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusRefunded},
}

func ParseStatus(value string) (InvoiceStatus, bool) {
	status := InvoiceStatus(value)
	switch status {
	case InvoiceStatusDraft, InvoiceStatusUnpaid, InvoiceStatusPaymentReceived, InvoiceStatusPaid,
		InvoiceStatusCanceled, InvoiceStatusRefunded, InvoiceStatusFailed:
		return status, true
	default:
		return "", false
	}
}

// IsOpen reports whether the invoice still blocks a new one for its tenant.
func (s InvoiceStatus) IsOpen() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusUnpaid, InvoiceStatusPaymentReceived:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s InvoiceStatus) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Invoice is issued against its billing owner (TenantID). The subscription
// it pays for belongs to BeneficiaryTenantID, which is a child RT when an RW
// pays on its behalf. OpenKey holds the owner id while the invoice is open.
type Invoice struct {
	ID                  snowflake.ID      `gorm:"primaryKey" json:"id"`
	Number              string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_number" json:"number"`
	TenantID            snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	BeneficiaryTenantID snowflake.ID      `gorm:"not null;index" json:"beneficiary_tenant_id"`
	PlanID              string            `gorm:"type:text;not null" json:"plan_id"`
	PlanName            string            `gorm:"type:text;not null" json:"plan_name"`
	PlanType            string            `gorm:"type:text;not null" json:"plan_type"`
	CoversChildren      bool              `gorm:"not null;default:false" json:"covers_children"`
	Status              InvoiceStatus     `gorm:"type:varchar(32);not null;index" json:"status"`
	PaymentChannel      *string           `gorm:"type:varchar(16)" json:"payment_channel,omitempty"`
	Currency            string            `gorm:"type:varchar(8);not null" json:"currency"`
	Subtotal            int64             `gorm:"not null" json:"subtotal"`
	Discount            int64             `gorm:"not null;default:0" json:"discount"`
	Amount              int64             `gorm:"not null" json:"amount"`
	DueDate             time.Time         `gorm:"not null" json:"due_date"`
	IssuedAt            *time.Time        `json:"issued_at,omitempty"`
	PaymentReceivedAt   *time.Time        `json:"payment_received_at,omitempty"`
	PaidAt              *time.Time        `json:"paid_at,omitempty"`
	CanceledAt          *time.Time        `json:"canceled_at,omitempty"`
	FailedAt            *time.Time        `json:"failed_at,omitempty"`
	RefundedAt          *time.Time        `json:"refunded_at,omitempty"`
	ProviderReference   *string           `gorm:"type:text" json:"provider_reference,omitempty"`
	OpenKey             *string           `gorm:"type:varchar(32);uniqueIndex:ux_invoices_open_key" json:"-"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt           time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) OwnerTenantID() snowflake.ID      { return i.TenantID }
func (i *Invoice) SetOwnerTenantID(id snowflake.ID) { i.TenantID = id }
