package plan

import "time"

// SubscriptionType distinguishes recurring access from a one-time purchase.
type SubscriptionType string

const (
	TypeSubscription SubscriptionType = "subscription"
	TypeOnetime      SubscriptionType = "onetime"
)

// lifetimeYears is the entitlement window granted for one-time perpetual
// purchases. A century outlives any realistic account.
const lifetimeYears = 100

// Plan is an entitlement SKU. Plans are seeded once and read-only afterwards:
// a plan must never change after it has been sold against.
type Plan struct {
	ID           string
	Name         string
	Description  string
	Price        int64 // minor units (tiyin)
	DurationDays int
	Type         SubscriptionType
	TrialDays    int
}

// IsLifetime reports whether the plan grants a perpetual window instead of a
// rolling subscription period.
func (p Plan) IsLifetime() bool {
	return p.Type == TypeOnetime
}

// ExpiryFrom computes the subscription end for a purchase made at the given
// time. Lifetime plans get a 100-year grant regardless of DurationDays.
func (p Plan) ExpiryFrom(now time.Time) time.Time {
	if p.IsLifetime() {
		return now.AddDate(lifetimeYears, 0, 0)
	}
	return now.AddDate(0, 0, p.DurationDays)
}
