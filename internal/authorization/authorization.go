// Package authorization decides what a principal may do: super admins pass
// every check, named resource policies come next and every other capability
// is looked up in the role to permission mapping.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
)

const (
	PermissionBillingView      = "billing.view"
	PermissionBillingSubscribe = "billing.subscribe"
	PermissionInvoiceList      = "invoice.list"
	PermissionInvoicePay       = "invoice.pay"
	PermissionHierarchyView    = "hierarchy.view"
	PermissionAuditView        = "audit.view"
	PermissionTenantCreate     = "tenant.create"
	PermissionSettingsView     = "settings.view"
)

// InvoiceAction is an action covered by the invoice policy.
type InvoiceAction string

const (
	InvoiceView   InvoiceAction = "view"
	InvoiceUpdate InvoiceAction = "update"
	InvoiceCreate InvoiceAction = "create"
	InvoiceDelete InvoiceAction = "delete"
)

type Gate interface {
	// Can checks a dynamic permission code against the cached role mapping.
	Can(ctx context.Context, principal tenancy.Principal, permission string) error
	// AuthorizeInvoice applies the invoice policy for an invoice billed to ownerTenantID.
	AuthorizeInvoice(ctx context.Context, principal tenancy.Principal, action InvoiceAction, ownerTenantID snowflake.ID) error
	RequireSuperAdmin(ctx context.Context, principal tenancy.Principal) error

	Grant(ctx context.Context, principal tenancy.Principal, role string, permission string) error
	Revoke(ctx context.Context, principal tenancy.Principal, role string, permission string) error
	Permissions(ctx context.Context, role string) ([]string, error)
	Reload(ctx context.Context) error
}

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidPermission = errors.New("invalid_permission")
)

// DefaultPolicies are seeded when the permission table is empty.
func DefaultPolicies() map[string][]string {
	return map[string][]string{
		tenancy.RoleAdminRW: {
			PermissionBillingView,
			PermissionBillingSubscribe,
			PermissionInvoiceList,
			PermissionInvoicePay,
			PermissionHierarchyView,
			PermissionAuditView,
			PermissionTenantCreate,
			PermissionSettingsView,
		},
		tenancy.RoleAdminRT: {
			PermissionBillingView,
			PermissionBillingSubscribe,
			PermissionInvoiceList,
			PermissionInvoicePay,
			PermissionAuditView,
			PermissionSettingsView,
		},
		tenancy.RoleSecretary: {
			PermissionBillingView,
			PermissionInvoiceList,
		},
		tenancy.RoleTreasurer: {
			PermissionBillingView,
			PermissionInvoiceList,
			PermissionInvoicePay,
		},
		tenancy.RoleMember: {
			PermissionBillingView,
		},
	}
}
