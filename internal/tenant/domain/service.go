package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
)

type Service interface {
	Create(ctx context.Context, principal tenancy.Principal, req CreateTenantRequest) (*Tenant, error)
	Get(ctx context.Context, id snowflake.ID) (*Tenant, error)
	ListChildren(ctx context.Context, rwID snowflake.ID) ([]*Tenant, error)
	UpdateBillingMode(ctx context.Context, principal tenancy.Principal, id snowflake.ID, mode BillingMode) (*Tenant, error)
}

type CreateTenantRequest struct {
	Name           string
	Level          string
	ParentTenantID *snowflake.ID
	BillingMode    string
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidLevel       = errors.New("invalid_level")
	ErrInvalidBillingMode = errors.New("invalid_billing_mode")
	ErrInvalidHierarchy   = errors.New("invalid_hierarchy")
	ErrParentNotFound     = errors.New("parent_not_found")
	ErrNotFound           = errors.New("tenant_not_found")
	ErrForbidden          = errors.New("forbidden")
)

// ValidateLink checks the two-level hierarchy rules for a tenant of the
// given level placed under parent. An RW never has a parent and an RT can
// only hang under an RW.
func ValidateLink(parent *Tenant, level tenancy.Level) error {
	switch level {
	case tenancy.LevelRW:
		if parent != nil {
			return ErrInvalidHierarchy
		}
		return nil
	case tenancy.LevelRT:
		if parent == nil {
			return nil
		}
		if parent.Level != tenancy.LevelRW {
			return ErrInvalidHierarchy
		}
		return nil
	default:
		return ErrInvalidLevel
	}
}

func ParseBillingMode(value string) (BillingMode, bool) {
	switch BillingMode(value) {
	case BillingModeRT:
		return BillingModeRT, true
	case BillingModeRW:
		return BillingModeRW, true
	default:
		return "", false
	}
}
