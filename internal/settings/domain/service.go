package domain

import (
	"context"

	"github.com/smallbiznis/rukun/internal/tenancy"
	"gorm.io/gorm"
)

type Service interface {
	// PaymentSettings always returns a complete document, falling back to defaults.
	PaymentSettings(ctx context.Context) (PaymentSettings, error)
	UpdatePaymentSettings(ctx context.Context, principal tenancy.Principal, doc map[string]any) (PaymentSettings, error)
	GatewayFor(ctx context.Context, purpose Purpose) (Gateway, error)
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, key string) (*Setting, error)
	Upsert(ctx context.Context, db *gorm.DB, setting *Setting) error
}
