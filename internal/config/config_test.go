package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFallsBackOnInvalidValues(t *testing.T) {
	t.Setenv("BILLING_TRIAL_DAYS", "abc")
	t.Setenv("BILLING_TRIAL_LOW_WATER_DAYS", "-4")
	t.Setenv("PAYMENT_PROVIDER_TIMEOUT", "soon")
	t.Setenv("AUTH_COOKIE_SECURE", "maybe")

	cfg := Load()

	assert.Equal(t, 14, cfg.Billing.TrialDays)
	assert.Equal(t, 3, cfg.Billing.TrialLowWaterDays)
	assert.Equal(t, 10*time.Second, cfg.Payment.ProviderTimeout)
	assert.False(t, cfg.AuthCookieSecure)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("BILLING_TRIAL_DAYS", "30")
	t.Setenv("PAYMENT_PROVIDER_TIMEOUT", "2s")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()

	assert.Equal(t, 30, cfg.Billing.TrialDays)
	assert.Equal(t, 2*time.Second, cfg.Payment.ProviderTimeout)
	assert.True(t, cfg.AuthCookieSecure)
	assert.True(t, cfg.IsProduction())
}
