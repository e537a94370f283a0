// Package domain derives tenant billing state from the trial window and
// subscriptions. Nothing here is persisted; every view is computed on read.
package domain

import (
	"errors"
	"math"
	"time"

	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
)

type Status string

const (
	StatusDemo    Status = "DEMO"
	StatusTrial   Status = "TRIAL"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

const (
	ActionSubscribe   = "subscribe_required"
	ActionTrialEnding = "trial_ending"
)

const TenantTypeDemo = "DEMO"

// ErrBillingRequired is returned when an operation needs a paid or trial tenant and the tenant is EXPIRED.
var ErrBillingRequired = errors.New("billing_required")

// Policy holds the lifecycle thresholds.
type Policy struct {
	// LowWaterDays is the remaining trial length at which the tenant is asked to subscribe.
	LowWaterDays int
}

// View is the derived billing state of one tenant.
type View struct {
	TenantType         string     `json:"tenant_type"`
	Status             Status     `json:"tenant_status"`
	IsTrial            bool       `json:"is_trial"`
	RemainingTrialDays int        `json:"remaining_trial_days"`
	ActionRequired     *string    `json:"action_required"`
	TrialEndAt         *time.Time `json:"trial_end_at,omitempty"`
}

// Demo is the view reported to callers without a tenant.
func Demo() View {
	return View{TenantType: TenantTypeDemo, Status: StatusDemo}
}

// Evaluate derives the state of tenant at now from its own subscription.
// sub may be nil or no longer current.
func Evaluate(tenant *tenantdomain.Tenant, sub *subscriptiondomain.Subscription, now time.Time, policy Policy) View {
	if tenant == nil {
		return Demo()
	}
	trialEnd := tenant.TrialEndsAt
	view := View{
		TenantType: string(tenant.Level),
		TrialEndAt: &trialEnd,
	}

	switch {
	case sub.ActiveAt(now):
		view.Status = StatusActive
	case now.Before(trialEnd):
		view.Status = StatusTrial
		view.IsTrial = true
		view.RemainingTrialDays = RemainingDays(trialEnd, now)
	default:
		view.Status = StatusExpired
	}
	view.ActionRequired = actionFor(view, policy)
	return view
}

// RemainingDays counts the whole or partial days left until end, never negative.
func RemainingDays(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

func actionFor(view View, policy Policy) *string {
	var action string
	switch {
	case view.Status == StatusExpired:
		action = ActionSubscribe
	case view.Status == StatusTrial && view.RemainingTrialDays <= policy.LowWaterDays:
		action = ActionTrialEnding
	default:
		return nil
	}
	return &action
}

// RequireUsable fails with ErrBillingRequired when the view is EXPIRED.
func RequireUsable(view View) error {
	if view.Status == StatusExpired {
		return ErrBillingRequired
	}
	return nil
}
