package tenancy

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type Operation string

const (
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// OwnerForCreate returns the tenant that owns a new entity. Tenant-bound
// principals always own what they create; the requested tenant is only
// honored for unrestricted principals.
func OwnerForCreate(p Principal, requested snowflake.ID) (snowflake.ID, error) {
	if p.Unrestricted() {
		if requested == 0 {
			return 0, ErrTenantRequired
		}
		return requested, nil
	}
	if !p.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if !p.HasTenant() {
		return 0, ErrTenantRequired
	}
	return p.Tenant(), nil
}

// CheckMutation decides whether p may update or delete an entity owned by
// entityTenantID. Write authority is strict equality, RW principals cannot
// modify rows owned by their child RTs even though they can read them.
func CheckMutation(p Principal, entityTenantID snowflake.ID, op Operation) error {
	if p.Unrestricted() {
		return nil
	}
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if !p.HasTenant() || p.Tenant() != entityTenantID {
		return fmt.Errorf("%s: %w", op, ErrCrossTenantModification)
	}
	return nil
}
