package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
)

// Plan is one purchasable offer from the catalog.
type Plan struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Price          int64                   `json:"price"`
	Discount       int64                   `json:"discount"`
	Currency       string                  `json:"currency"`
	Type           subscriptiondomain.Type `json:"type"`
	Level          tenancy.Level           `json:"level"`
	CoversChildren bool                    `json:"covers_children"`
	Description    string                  `json:"description"`
	Features       []string                `json:"features"`
}

// Amount is the price charged after discount, never negative.
func (p Plan) Amount() int64 {
	amount := p.Price - p.Discount
	if amount < 0 {
		return 0
	}
	return amount
}

type Service interface {
	// List returns the catalog. A non-empty level restricts it to plans for that tenant level.
	List(ctx context.Context, level tenancy.Level) ([]Plan, error)
	Get(ctx context.Context, id string) (Plan, error)
}

var ErrInvalidPlan = errors.New("invalid_plan")
