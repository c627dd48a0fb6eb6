package core_test

import (
	"testing"
	"time"

	"backoffice/internal/core"
)

func subAt(status core.SubscriptionState, start, end time.Time, graceDays int) core.Subscription {
	return core.Subscription{
		Status:          status,
		StartDate:       start,
		EndDate:         end,
		GracePeriodDays: graceDays,
	}
}

func TestSubscriptionPredicates(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	tests := []struct {
		name        string
		sub         core.Subscription
		now         time.Time
		wantActive  bool
		wantGrace   bool
		wantExpired bool
	}{
		{
			"inside paid period",
			subAt(core.SubscriptionActive, start, end, 7),
			end.AddDate(0, 0, -1),
			true, false, false,
		},
		{
			"exactly at end date",
			subAt(core.SubscriptionActive, start, end, 7),
			end,
			true, false, false,
		},
		{
			"inside grace window",
			subAt(core.SubscriptionActive, start, end, 7),
			end.AddDate(0, 0, 3),
			false, true, false,
		},
		{
			"exactly at grace deadline",
			subAt(core.SubscriptionActive, start, end, 7),
			end.AddDate(0, 0, 7),
			false, true, false,
		},
		{
			"past grace deadline",
			subAt(core.SubscriptionActive, start, end, 7),
			end.AddDate(0, 0, 8),
			false, false, true,
		},
		{
			"explicitly expired",
			subAt(core.SubscriptionExpired, start, end, 7),
			end.AddDate(0, 0, 1),
			false, false, true,
		},
		{
			"cancelled is neither active nor expired",
			subAt(core.SubscriptionCancelled, start, end, 7),
			end.AddDate(0, 0, -1),
			false, false, false,
		},
		{
			"pending is not active",
			subAt(core.SubscriptionPending, start, start, 7),
			start,
			false, false, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.IsActive(tt.now); got != tt.wantActive {
				t.Errorf("IsActive = %v, want %v", got, tt.wantActive)
			}
			if got := tt.sub.IsInGracePeriod(tt.now); got != tt.wantGrace {
				t.Errorf("IsInGracePeriod = %v, want %v", got, tt.wantGrace)
			}
			if got := tt.sub.IsExpired(tt.now); got != tt.wantExpired {
				t.Errorf("IsExpired = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestRenewalBase(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)
	sub := subAt(core.SubscriptionActive, start, end, 7)

	// Renewing before expiry extends from the current end date.
	early := end.AddDate(0, 0, -10)
	if got := sub.RenewalBase(early); !got.Equal(end) {
		t.Errorf("RenewalBase before expiry = %v, want %v", got, end)
	}

	// Renewing after expiry extends from now.
	late := end.AddDate(0, 0, 10)
	if got := sub.RenewalBase(late); !got.Equal(late) {
		t.Errorf("RenewalBase after expiry = %v, want %v", got, late)
	}
}
