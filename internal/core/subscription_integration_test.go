package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/core"
)

func TestSubscription_FindOrCreateIsIdempotent(t *testing.T) {
	f := setupPaymentFixture(t)
	ctx := context.Background()

	first, err := f.subs.FindOrCreate(ctx, 1, core.PlanMonthly, d("29.99"))
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if first.Status != core.SubscriptionPending {
		t.Fatalf("new subscription status = %s, want pending", first.Status)
	}

	second, err := f.subs.FindOrCreate(ctx, 1, core.PlanMonthly, d("29.99"))
	if err != nil {
		t.Fatalf("second FindOrCreate failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("FindOrCreate created a duplicate: %d != %d", second.ID, first.ID)
	}
}

func TestSubscription_PaymentActivates(t *testing.T) {
	f := setupPaymentFixture(t)
	ctx := context.Background()

	sub, err := f.subs.FindOrCreate(ctx, 1, core.PlanMonthly, d("29.99"))
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	p, err := f.payments.CreatePayment(ctx, 1, core.PaymentInput{
		SubscriptionID: &sub.ID,
		Amount:         d("29.99"),
		Method:         core.MethodCash,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if p.Status != core.PaymentCompleted {
		t.Fatalf("cash payment not completed: %s", p.Status)
	}

	active, err := f.subs.GetForOwner(ctx, 1)
	if err != nil {
		t.Fatalf("GetForOwner failed: %v", err)
	}
	if active.Status != core.SubscriptionActive {
		t.Fatalf("status = %s, want active", active.Status)
	}

	// Monthly period is 30 calendar days.
	if got := active.EndDate.Sub(active.StartDate); got < 719*time.Hour || got > 721*time.Hour {
		t.Errorf("period length = %v, want ~720h", got)
	}
	if !active.IsActive(time.Now()) {
		t.Error("subscription not active inside its period")
	}

	// The activating payment opens the history.
	if len(active.RenewalHistory) != 1 {
		t.Fatalf("renewal history has %d entries, want 1", len(active.RenewalHistory))
	}
	if active.RenewalHistory[0].PaymentRef != p.TransactionRef {
		t.Errorf("activation paymentRef = %s, want %s", active.RenewalHistory[0].PaymentRef, p.TransactionRef)
	}
}

func TestSubscription_EarlyRenewalExtendsFromEndDate(t *testing.T) {
	f := setupPaymentFixture(t)
	ctx := context.Background()

	sub, err := f.subs.FindOrCreate(ctx, 1, core.PlanMonthly, d("29.99"))
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if _, err := f.subs.Activate(ctx, sub.ID, d("29.99"), "PAY-first"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	before, _ := f.subs.GetForOwner(ctx, 1)

	renewed, err := f.subs.Renew(ctx, sub.ID, d("29.99"), "PAY-second")
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}

	// Renewing 30 days early extends to ~60 days out, not 30.
	want := before.EndDate.AddDate(0, 0, 30)
	if !renewed.EndDate.Equal(want) {
		t.Errorf("endDate after early renewal = %v, want %v", renewed.EndDate, want)
	}
	if len(renewed.RenewalHistory) != 2 {
		t.Fatalf("renewal history has %d entries, want 2 (activation then renewal)", len(renewed.RenewalHistory))
	}
	if renewed.RenewalHistory[0].PaymentRef != "PAY-first" {
		t.Errorf("activation paymentRef = %s, want PAY-first", renewed.RenewalHistory[0].PaymentRef)
	}
	if renewed.RenewalHistory[1].PaymentRef != "PAY-second" {
		t.Errorf("renewal paymentRef = %s, want PAY-second", renewed.RenewalHistory[1].PaymentRef)
	}
}

func TestSubscription_CancelKeepsPaidPeriod(t *testing.T) {
	f := setupPaymentFixture(t)
	ctx := context.Background()

	sub, err := f.subs.FindOrCreate(ctx, 1, core.PlanYearly, d("199.00"))
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if _, err := f.subs.Activate(ctx, sub.ID, d("199.00"), "PAY-x"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	active, _ := f.subs.GetForOwner(ctx, 1)

	cancelled, err := f.subs.Cancel(ctx, 1, "switching providers")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != core.SubscriptionCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancel not recorded: status=%s", cancelled.Status)
	}
	if cancelled.AutoRenew {
		t.Error("autoRenew still set after cancel")
	}
	if !cancelled.EndDate.Equal(active.EndDate) {
		t.Errorf("cancel truncated the paid period: %v != %v", cancelled.EndDate, active.EndDate)
	}

	// A payment against a cancelled subscription is rejected, and the rejection
	// rolls back the payment completion itself.
	p, err := f.payments.CreatePayment(ctx, 1, core.PaymentInput{
		SubscriptionID: &sub.ID,
		Amount:         d("199.00"),
		Method:         core.MethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if _, err := f.payments.MarkAsCompleted(ctx, 1, p.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict completing payment for cancelled subscription, got %v", err)
	}
	after, _ := f.payments.GetPayment(ctx, 1, p.ID)
	if after.Status != core.PaymentPending {
		t.Errorf("payment status = %s, want pending (completion rolled back)", after.Status)
	}
}

func TestSubscription_ExpireSweep(t *testing.T) {
	f := setupPaymentFixture(t)
	ctx := context.Background()

	sub, err := f.subs.FindOrCreate(ctx, 1, core.PlanMonthly, d("29.99"))
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if _, err := f.subs.Activate(ctx, sub.ID, d("29.99"), "PAY-x"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	// Push the subscription past its grace deadline.
	if _, err := f.pool.Exec(ctx, `
		UPDATE subscriptions
		SET start_date = NOW() - INTERVAL '60 days', end_date = NOW() - INTERVAL '30 days'
		WHERE id = $1
	`, sub.ID); err != nil {
		t.Fatalf("failed to backdate subscription: %v", err)
	}

	n, err := f.subs.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep expired %d subscriptions, want 1", n)
	}

	expired, _ := f.subs.GetForOwner(ctx, 1)
	if expired.Status != core.SubscriptionExpired {
		t.Fatalf("status = %s, want expired", expired.Status)
	}

	// Idempotent second pass.
	if n, err = f.subs.ExpireSweep(ctx); err != nil || n != 0 {
		t.Errorf("second sweep: n=%d err=%v, want 0/nil", n, err)
	}

	// An expired subscription renews from now, restarting coverage.
	renewed, err := f.subs.Renew(ctx, sub.ID, d("29.99"), "PAY-late")
	if err != nil {
		t.Fatalf("Renew after expiry failed: %v", err)
	}
	if renewed.Status != core.SubscriptionActive {
		t.Errorf("status after late renewal = %s, want active", renewed.Status)
	}
	if !renewed.EndDate.After(time.Now().AddDate(0, 0, 29)) {
		t.Errorf("late renewal did not extend ~30 days from now: %v", renewed.EndDate)
	}
}
