// Package domain contains persistence models for tenant subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type is the billing period of a subscription.
type Type string

const (
	TypeMonthly  Type = "MONTHLY"
	TypeYearly   Type = "YEARLY"
	TypeLifetime Type = "LIFETIME"
)

func ParseType(value string) (Type, bool) {
	switch Type(value) {
	case TypeMonthly, TypeYearly, TypeLifetime:
		return Type(value), true
	default:
		return "", false
	}
}

// PeriodEnd returns the end of a period of this type starting at start.
// LIFETIME has no end.
func (t Type) PeriodEnd(start time.Time) *time.Time {
	var end time.Time
	switch t {
	case TypeMonthly:
		end = start.AddDate(0, 1, 0)
	case TypeYearly:
		end = start.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &end
}

// Status is the stored status. Expiry is derived from EndDate on read.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSuperseded Status = "SUPERSEDED"
	StatusCanceled   Status = "CANCELED"
)

// Subscription is the paid access of one tenant. ActiveKey holds the tenant
// id while the row is ACTIVE so storage rejects a second active row.
type Subscription struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	PlanID         string            `gorm:"type:text;not null" json:"plan_id"`
	Type           Type              `gorm:"type:text;not null" json:"type"`
	Status         Status            `gorm:"type:text;not null" json:"status"`
	CoversChildren bool              `gorm:"not null;default:false" json:"covers_children"`
	StartDate      time.Time         `gorm:"not null" json:"start_date"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	InvoiceID      *snowflake.ID     `gorm:"index" json:"invoice_id,omitempty"`
	ActiveKey      *string           `gorm:"type:text;uniqueIndex:ux_subscriptions_active_key" json:"-"`
	SupersededAt   *time.Time        `json:"superseded_at,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) OwnerTenantID() snowflake.ID      { return s.TenantID }
func (s *Subscription) SetOwnerTenantID(id snowflake.ID) { s.TenantID = id }

// ActiveAt reports whether the subscription grants access at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	if s == nil || s.Status != StatusActive {
		return false
	}
	if s.Type == TypeLifetime {
		return true
	}
	return s.EndDate != nil && s.EndDate.After(now)
}

func (s *Subscription) IsLifetime() bool {
	return s != nil && s.Status == StatusActive && s.Type == TypeLifetime
}
