package option

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/rukun/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a statement before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single comparison. Unknown operators and empty fields are ignored.
func ApplyOperator(cond Condition) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		switch cond.Operator {
		case EQ, NEQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", field), cond.Value)
		default:
			return db
		}
	})
}

type QuerySortBy struct {
	SortBy string
	Order  string
	Allow  map[string]bool
}

// WithSortBy orders by an allow-listed column, falling back to newest first.
func WithSortBy(sort QuerySortBy) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.SortBy)
		if column == "" || !sort.Allow[column] {
			return db.Order("id desc")
		}
		order := "desc"
		if strings.EqualFold(strings.TrimSpace(sort.Order), "asc") {
			order = "asc"
		}
		return db.Order(fmt.Sprintf("%s %s", column, order)).Order("id " + order)
	})
}

// ApplyPagination applies keyset pagination over snowflake ids, newest first.
// One extra row is fetched so callers can tell whether another page exists.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := pagination.NormalizePageSize(page.PageSize)
		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil && id > 0 {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Order("id desc").Limit(size + 1)
	})
}
