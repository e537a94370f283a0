// Package domain contains the tenant hierarchy models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
)

// BillingMode tells who pays for an RT: the RT itself or its parent RW.
type BillingMode string

const (
	BillingModeRT BillingMode = "RT"
	BillingModeRW BillingMode = "RW"
)

// Tenant is an RT or RW. An RT may point at its parent RW; the link never changes.
type Tenant struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	Slug           string        `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	Level          tenancy.Level `gorm:"type:text;not null" json:"level"`
	ParentTenantID *snowflake.ID `gorm:"column:parent_tenant_id;index" json:"parent_tenant_id,omitempty"`
	BillingMode    BillingMode   `gorm:"type:text;not null" json:"billing_mode"`
	TrialStartedAt time.Time     `gorm:"not null" json:"trial_started_at"`
	TrialEndsAt    time.Time     `gorm:"not null" json:"trial_ends_at"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

func (t Tenant) Node() tenancy.Node {
	return tenancy.Node{ID: t.ID, Level: t.Level, ParentTenantID: t.ParentTenantID}
}

// CoversChildren reports whether the RW funds its child RTs by configuration.
func (t Tenant) CoversChildren() bool {
	return t.Level == tenancy.LevelRW && t.BillingMode == BillingModeRW
}
