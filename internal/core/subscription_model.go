package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanType selects the billing period length.
type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// SubscriptionState literals are part of the wire contract.
type SubscriptionState string

const (
	SubscriptionPending   SubscriptionState = "pending"
	SubscriptionActive    SubscriptionState = "active"
	SubscriptionExpired   SubscriptionState = "expired"
	SubscriptionCancelled SubscriptionState = "cancelled"
	SubscriptionSuspended SubscriptionState = "suspended"
)

// defaultGracePeriodDays is the window after endDate during which an active
// subscription is still honored before expiry.
const defaultGracePeriodDays = 7

// Subscription is a time-boxed plan for one user.
//
// State machine: pending → active → {expired, cancelled, suspended};
// expired → active via renew. Cancelled and suspended are never auto-resurrected.
// Expiry is evaluated lazily on save, not by a clock-driven sweep; ExpireSweep
// exists for callers that want an explicit reconciliation pass.
type Subscription struct {
	ID                 int               `json:"id"`
	OwnerID            int               `json:"owner_id"`
	PlanType           PlanType          `json:"planType"`
	Amount             decimal.Decimal   `json:"amount"`
	StartDate          time.Time         `json:"startDate"`
	EndDate            time.Time         `json:"endDate"`
	Status             SubscriptionState `json:"status"`
	GracePeriodDays    int               `json:"gracePeriodDays"`
	AutoRenew          bool              `json:"autoRenew"`
	NextBillingDate    *time.Time        `json:"nextBillingDate,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	CancellationReason *string           `json:"cancellationReason,omitempty"`
	RenewalHistory     []Renewal         `json:"renewalHistory"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Renewal is one append-only renewal-history entry.
type Renewal struct {
	ID             int             `json:"id"`
	SubscriptionID int             `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentRef     string          `json:"paymentRef"`
	RenewedAt      time.Time       `json:"renewedAt"`
}

// periodEnd returns the end of a billing period starting at base: +365 days for
// yearly plans, +30 days otherwise.
func periodEnd(planType PlanType, base time.Time) time.Time {
	if planType == PlanYearly {
		return base.AddDate(0, 0, 365)
	}
	return base.AddDate(0, 0, 30)
}

// graceDeadline is the instant past which an active subscription counts as lapsed.
func (s *Subscription) graceDeadline() time.Time {
	return s.EndDate.AddDate(0, 0, s.GracePeriodDays)
}

// IsActive reports whether the subscription is active and inside its paid period.
// During the grace window this is false even though the status still reads
// "active": callers honoring grace access must check IsInGracePeriod explicitly.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionActive && !now.After(s.EndDate)
}

// IsInGracePeriod reports whether the subscription is past its end date but still
// within the grace window.
func (s *Subscription) IsInGracePeriod(now time.Time) bool {
	return s.Status == SubscriptionActive && now.After(s.EndDate) && !now.After(s.graceDeadline())
}

// IsExpired reports whether the subscription is expired, either explicitly or
// because an active one has outlived its grace window without being re-saved.
func (s *Subscription) IsExpired(now time.Time) bool {
	if s.Status == SubscriptionExpired {
		return true
	}
	return s.Status == SubscriptionActive && now.After(s.graceDeadline())
}

// RenewalBase returns the date a renewal period extends from: an unexpired
// subscription extends from its current end date, not from the renewal time.
func (s *Subscription) RenewalBase(now time.Time) time.Time {
	if s.EndDate.After(now) {
		return s.EndDate
	}
	return now
}

// expireIfLapsed applies the lazy pre-persist expiry rule: an active subscription
// past its grace deadline is forced to expired. Returns true when a transition
// happened.
func (s *Subscription) expireIfLapsed(now time.Time) bool {
	if s.Status == SubscriptionActive && now.After(s.graceDeadline()) {
		s.Status = SubscriptionExpired
		return true
	}
	return false
}
