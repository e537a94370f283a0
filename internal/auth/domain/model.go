// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"gorm.io/datatypes"
)

// User is a platform account. Super admins have no tenant; everyone else
// belongs to exactly one RT or RW.
type User struct {
	ID                  snowflake.ID      `gorm:"primaryKey"`
	TenantID            *snowflake.ID     `gorm:"column:tenant_id;index"`
	RoleCode            string            `gorm:"column:role_code;type:varchar(32);not null"`
	Email               string            `gorm:"column:email;type:varchar(255);not null;uniqueIndex:ux_users_email"`
	DisplayName         string            `gorm:"column:display_name;type:text"`
	PasswordHash        *string           `gorm:"type:text"`
	LastPasswordChanged *time.Time        `gorm:"column:last_password_changed"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt           time.Time         `gorm:"not null"`
	UpdatedAt           time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Principal is the caller identity carried by this user's sessions.
func (u User) Principal() tenancy.Principal {
	p := tenancy.Principal{UserID: u.ID, RoleCode: u.RoleCode}
	if u.TenantID != nil && *u.TenantID != 0 {
		id := *u.TenantID
		p.TenantID = &id
	}
	return p
}

// Session represents a persisted login session. Only the token hash is stored.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:varchar(64);not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// SessionView is returned to clients without exposing token values.
type SessionView struct {
	UserID      string  `json:"user_id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"display_name"`
	RoleCode    string  `json:"role"`
	TenantID    *string `json:"tenant_id"`
}
