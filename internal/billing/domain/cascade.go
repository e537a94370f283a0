package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/rukun/internal/subscription/domain"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
)

// Source is where an RT's access is paid from.
type Source string

const (
	SourceSelfFunded Source = "SELF_FUNDED"
	SourceRWFunded   Source = "RW_FUNDED"
	SourceLifetime   Source = "LIFETIME"
)

// Funding is the resolved billing state of an RT inside its RW.
type Funding struct {
	View   View
	Source Source
	// EndDate is the end of the subscription that pays for the RT, nil for lifetime or none.
	EndDate *time.Time
	// Covered is true when the parent RW currently pays for the RT.
	Covered bool
}

// Covers reports whether the RW pays for its RTs at now: it must hold a
// current subscription and either that subscription's plan or the RW's
// billing mode must designate the children.
func Covers(rw *tenantdomain.Tenant, rwSub *subscriptiondomain.Subscription, now time.Time) bool {
	if rw == nil || rw.Level != tenancy.LevelRW || !rwSub.ActiveAt(now) {
		return false
	}
	return rwSub.CoversChildren || rw.CoversChildren()
}

// ResolveChild applies the funding precedence for one RT: its own lifetime
// subscription, then its own current subscription, then a covering parent.
// Without any of these nothing pays for the RT: it is reported SELF_FUNDED
// and falls back to its own trial window.
func ResolveChild(child *tenantdomain.Tenant, childSub *subscriptiondomain.Subscription, rw *tenantdomain.Tenant, rwSub *subscriptiondomain.Subscription, now time.Time, policy Policy) (Funding, error) {
	if err := validateChild(child, rw); err != nil {
		return Funding{}, err
	}

	if childSub.IsLifetime() {
		return Funding{
			View:   Evaluate(child, childSub, now, policy),
			Source: SourceLifetime,
		}, nil
	}

	if childSub.ActiveAt(now) {
		return Funding{
			View:    Evaluate(child, childSub, now, policy),
			Source:  SourceSelfFunded,
			EndDate: childSub.EndDate,
		}, nil
	}

	if Covers(rw, rwSub, now) {
		parentView := Evaluate(rw, rwSub, now, policy)
		view := Evaluate(child, nil, now, policy)
		view.Status = parentView.Status
		view.IsTrial = false
		view.RemainingTrialDays = 0
		view.ActionRequired = nil
		return Funding{
			View:    view,
			Source:  SourceRWFunded,
			EndDate: rwSub.EndDate,
			Covered: true,
		}, nil
	}

	return Funding{
		View:   Evaluate(child, childSub, now, policy),
		Source: SourceSelfFunded,
	}, nil
}

func validateChild(child, rw *tenantdomain.Tenant) error {
	if child == nil || rw == nil {
		return tenantdomain.ErrInvalidHierarchy
	}
	if child.Level != tenancy.LevelRT || rw.Level != tenancy.LevelRW {
		return tenantdomain.ErrInvalidHierarchy
	}
	if child.ParentTenantID == nil || *child.ParentTenantID != rw.ID {
		return tenantdomain.ErrInvalidHierarchy
	}
	return nil
}

// ChildStatus is one RT row of the hierarchy report.
type ChildStatus struct {
	ID                  snowflake.ID `json:"id"`
	Name                string       `json:"name"`
	Status              Status       `json:"status"`
	BillingSource       Source       `json:"billing_source"`
	SubscriptionEndDate *time.Time   `json:"subscription_end_date"`
}

// Hierarchy is the RW view over its RTs.
type Hierarchy struct {
	RWID   snowflake.ID  `json:"rw_id"`
	RWName string        `json:"rw_name"`
	Status Status        `json:"status"`
	RTs    []ChildStatus `json:"rts"`
}

// ResolveHierarchy computes the report for rw and its children. subs holds
// the stored active subscription per tenant id.
func ResolveHierarchy(rw *tenantdomain.Tenant, children []*tenantdomain.Tenant, subs map[snowflake.ID]*subscriptiondomain.Subscription, now time.Time, policy Policy) (Hierarchy, error) {
	if rw == nil || rw.Level != tenancy.LevelRW || rw.ParentTenantID != nil {
		return Hierarchy{}, tenantdomain.ErrInvalidHierarchy
	}
	rwSub := subs[rw.ID]
	out := Hierarchy{
		RWID:   rw.ID,
		RWName: rw.Name,
		Status: Evaluate(rw, rwSub, now, policy).Status,
		RTs:    make([]ChildStatus, 0, len(children)),
	}
	for _, child := range children {
		funding, err := ResolveChild(child, subs[child.ID], rw, rwSub, now, policy)
		if err != nil {
			return Hierarchy{}, err
		}
		out.RTs = append(out.RTs, ChildStatus{
			ID:                  child.ID,
			Name:                child.Name,
			Status:              funding.View.Status,
			BillingSource:       funding.Source,
			SubscriptionEndDate: funding.EndDate,
		})
	}
	return out, nil
}
