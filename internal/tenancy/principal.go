// Package tenancy holds the tenant isolation primitives: the authenticated
// principal, the read scope computed for it and the write guard.
package tenancy

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdminRW    = "ADMIN_RW"
	RoleAdminRT    = "ADMIN_RT"
	RoleSecretary  = "SEKRETARIS"
	RoleTreasurer  = "BENDAHARA"
	RoleMember     = "WARGA"

	// RoleSystem is used by internal callers such as payment callbacks. It is never
	// assigned to a user.
	RoleSystem = "SYSTEM"
)

// Level is the position of a tenant in the two-level hierarchy.
type Level string

const (
	LevelRW Level = "RW"
	LevelRT Level = "RT"
)

func ParseLevel(value string) (Level, bool) {
	switch Level(strings.ToUpper(strings.TrimSpace(value))) {
	case LevelRW:
		return LevelRW, true
	case LevelRT:
		return LevelRT, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller. It is passed explicitly to every
// operation that reads or writes tenant data.
type Principal struct {
	UserID   snowflake.ID
	TenantID *snowflake.ID
	RoleCode string
}

// Anonymous returns the principal used for unauthenticated callers.
func Anonymous() Principal {
	return Principal{}
}

// System returns the principal used by internal, non user-initiated writes.
func System() Principal {
	return Principal{RoleCode: RoleSystem}
}

func (p Principal) Authenticated() bool {
	return p.UserID != 0 || p.RoleCode == RoleSystem
}

func (p Principal) IsSuperAdmin() bool {
	return p.UserID != 0 && p.RoleCode == RoleSuperAdmin
}

func (p Principal) IsSystem() bool {
	return p.UserID == 0 && p.RoleCode == RoleSystem
}

// Unrestricted reports whether tenancy checks are bypassed for this principal.
func (p Principal) Unrestricted() bool {
	return p.IsSuperAdmin() || p.IsSystem()
}

func (p Principal) HasTenant() bool {
	return p.TenantID != nil && *p.TenantID != 0
}

// Tenant returns the principal tenant id or zero.
func (p Principal) Tenant() snowflake.ID {
	if !p.HasTenant() {
		return 0
	}
	return *p.TenantID
}

func (p Principal) IsBillingAdmin() bool {
	return p.RoleCode == RoleAdminRW || p.RoleCode == RoleAdminRT
}

// ActorType and ActorID identify the principal in audit entries.
func (p Principal) ActorType() string {
	switch {
	case p.IsSystem():
		return "system"
	case p.Authenticated():
		return "user"
	default:
		return "anonymous"
	}
}

func (p Principal) ActorID() string {
	if p.UserID == 0 {
		return ""
	}
	return p.UserID.String()
}
