package tenancy

import "errors"

var (
	ErrUnauthenticated         = errors.New("authentication_required")
	ErrTenantRequired          = errors.New("tenant_required")
	ErrCrossTenantModification = errors.New("cross_tenant_modification")
	ErrUnknownTenant           = errors.New("unknown_tenant")
	ErrNotFound                = errors.New("not_found")
)
