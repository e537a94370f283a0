package tenancy

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const DefaultTenantColumn = "tenant_id"

// Scope is the set of tenants whose rows a principal may read.
// The zero value matches no rows.
type Scope struct {
	all bool
	ids []snowflake.ID
}

func AllTenants() Scope {
	return Scope{all: true}
}

func NoTenants() Scope {
	return Scope{}
}

func Tenants(ids ...snowflake.ID) Scope {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Scope{ids: out}
}

func (s Scope) IsAll() bool {
	return s.all
}

// IsNone reports whether the scope matches no rows at all.
func (s Scope) IsNone() bool {
	return !s.all && len(s.ids) == 0
}

func (s Scope) Contains(tenantID snowflake.ID) bool {
	if s.all {
		return true
	}
	for _, id := range s.ids {
		if id == tenantID {
			return true
		}
	}
	return false
}

// Apply restricts the statement on tenant_id. It satisfies option.QueryOption.
func (s Scope) Apply(db *gorm.DB) *gorm.DB {
	return s.ApplyColumn(db, DefaultTenantColumn)
}

func (s Scope) ApplyColumn(db *gorm.DB, column string) *gorm.DB {
	switch {
	case s.all:
		return db
	case len(s.ids) == 0:
		return db.Where("1 = 0")
	case len(s.ids) == 1:
		return db.Where(column+" = ?", s.ids[0])
	default:
		return db.Where(column+" IN ?", s.ids)
	}
}
