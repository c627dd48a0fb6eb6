package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SubscriptionService owns the time-boxed plan lifecycle. Activation and renewal
// are driven by the payment reconciler on successful subscription payments;
// cancel and suspend are direct calls from the boundary.
type SubscriptionService interface {
	// FindOrCreate returns the user's existing active or pending subscription, or
	// creates a pending one with a zero-length placeholder period.
	FindOrCreate(ctx context.Context, ownerID int, planType PlanType, amount decimal.Decimal) (*Subscription, error)
	GetForOwner(ctx context.Context, ownerID int) (*Subscription, error)

	// Activate starts the first billing period: endDate = now + plan period.
	Activate(ctx context.Context, subscriptionID int, amount decimal.Decimal, paymentRef string) (*Subscription, error)
	// Renew extends from max(currentEndDate, now): an unexpired renewal extends the
	// existing period rather than restarting from today. Legal from active or
	// expired only.
	Renew(ctx context.Context, subscriptionID int, amount decimal.Decimal, paymentRef string) (*Subscription, error)
	// ApplyPaymentTx is the reconciler entry point: activates a pending
	// subscription, renews an active or expired one.
	ApplyPaymentTx(ctx context.Context, tx pgx.Tx, subscriptionID int, amount decimal.Decimal, paymentRef string) error

	// Cancel stops auto-renewal and marks the subscription cancelled without
	// truncating the current paid-for period.
	Cancel(ctx context.Context, ownerID int, reason string) (*Subscription, error)
	// Suspend parks the subscription for abuse or non-payment paths.
	Suspend(ctx context.Context, ownerID int, reason string) (*Subscription, error)

	// ExpireSweep is an idempotent reconciliation pass over active subscriptions
	// past their grace deadline, reusing the same lazy expiry rule as the save
	// path. Returns the number of subscriptions expired.
	ExpireSweep(ctx context.Context) (int, error)
}

type subscriptionService struct {
	pool *pgxpool.Pool
}

func NewSubscriptionService(pool *pgxpool.Pool) SubscriptionService {
	return &subscriptionService{pool: pool}
}

const subscriptionColumns = `
	id, owner_id, plan_type, amount, start_date, end_date, status, grace_period_days,
	auto_renew, next_billing_date, cancelled_at, cancellation_reason, created_at, updated_at`

func scanSubscription(row pgx.Row, sub *Subscription) error {
	return row.Scan(
		&sub.ID, &sub.OwnerID, &sub.PlanType, &sub.Amount, &sub.StartDate, &sub.EndDate,
		&sub.Status, &sub.GracePeriodDays, &sub.AutoRenew, &sub.NextBillingDate,
		&sub.CancelledAt, &sub.CancellationReason, &sub.CreatedAt, &sub.UpdatedAt,
	)
}

func (s *subscriptionService) FindOrCreate(ctx context.Context, ownerID int, planType PlanType, amount decimal.Decimal) (*Subscription, error) {
	if planType != PlanMonthly && planType != PlanYearly {
		return nil, Validationf("unknown plan type %q", planType)
	}

	var sub Subscription
	err := scanSubscription(s.pool.QueryRow(ctx, `
		SELECT`+subscriptionColumns+`
		FROM subscriptions
		WHERE owner_id = $1 AND status IN ('active', 'pending')
		ORDER BY id DESC
		LIMIT 1
	`, ownerID), &sub)
	if err == nil {
		return s.get(ctx, sub.ID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up subscription for owner %d: %w", ownerID, err)
	}

	// Zero-length placeholder period until the first payment activates it.
	now := time.Now()
	var id int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (owner_id, plan_type, amount, start_date, end_date, status, grace_period_days, auto_renew)
		VALUES ($1, $2, $3, $4, $4, 'pending', $5, true)
		RETURNING id
	`, ownerID, string(planType), amount, now, defaultGracePeriodDays).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending subscription: %w", err)
	}
	return s.get(ctx, id)
}

func (s *subscriptionService) get(ctx context.Context, subscriptionID int) (*Subscription, error) {
	var sub Subscription
	err := scanSubscription(s.pool.QueryRow(ctx,
		"SELECT"+subscriptionColumns+" FROM subscriptions WHERE id = $1", subscriptionID), &sub)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("subscription %d not found", subscriptionID)
		}
		return nil, fmt.Errorf("failed to fetch subscription %d: %w", subscriptionID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, amount, payment_ref, renewed_at
		FROM subscription_renewals
		WHERE subscription_id = $1
		ORDER BY id
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query renewal history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Renewal
		if err := rows.Scan(&r.ID, &r.SubscriptionID, &r.Amount, &r.PaymentRef, &r.RenewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan renewal: %w", err)
		}
		sub.RenewalHistory = append(sub.RenewalHistory, r)
	}
	return &sub, nil
}

func (s *subscriptionService) GetForOwner(ctx context.Context, ownerID int) (*Subscription, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM subscriptions WHERE owner_id = $1 ORDER BY id DESC LIMIT 1", ownerID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("no subscription for owner %d", ownerID)
		}
		return nil, fmt.Errorf("failed to look up subscription for owner %d: %w", ownerID, err)
	}
	return s.get(ctx, id)
}

// lockSubscriptionTx fetches a subscription under FOR UPDATE.
func lockSubscriptionTx(ctx context.Context, tx pgx.Tx, subscriptionID int) (*Subscription, error) {
	var sub Subscription
	err := scanSubscription(tx.QueryRow(ctx,
		"SELECT"+subscriptionColumns+" FROM subscriptions WHERE id = $1 FOR UPDATE", subscriptionID), &sub)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("subscription %d not found", subscriptionID)
		}
		return nil, fmt.Errorf("failed to lock subscription %d: %w", subscriptionID, err)
	}
	return &sub, nil
}

func saveSubscriptionTx(ctx context.Context, tx pgx.Tx, sub *Subscription) error {
	_, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET plan_type = $1, amount = $2, start_date = $3, end_date = $4, status = $5,
		    grace_period_days = $6, auto_renew = $7, next_billing_date = $8,
		    cancelled_at = $9, cancellation_reason = $10, updated_at = NOW()
		WHERE id = $11
	`, string(sub.PlanType), sub.Amount, sub.StartDate, sub.EndDate, string(sub.Status),
		sub.GracePeriodDays, sub.AutoRenew, sub.NextBillingDate,
		sub.CancelledAt, sub.CancellationReason, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to save subscription %d: %w", sub.ID, err)
	}
	return nil
}

func activateTx(ctx context.Context, tx pgx.Tx, sub *Subscription, amount decimal.Decimal, paymentRef string, now time.Time) error {
	sub.Status = SubscriptionActive
	sub.StartDate = now
	sub.EndDate = periodEnd(sub.PlanType, now)
	next := sub.EndDate
	sub.NextBillingDate = &next
	if !amount.IsZero() {
		sub.Amount = amount
	}

	// The activating payment opens the history: every paid period, the first one
	// included, is traceable to its payment reference.
	_, err := tx.Exec(ctx, `
		INSERT INTO subscription_renewals (subscription_id, amount, payment_ref, renewed_at)
		VALUES ($1, $2, $3, $4)
	`, sub.ID, amount, paymentRef, now)
	if err != nil {
		return fmt.Errorf("failed to record activation for subscription %d: %w", sub.ID, err)
	}
	return saveSubscriptionTx(ctx, tx, sub)
}

func renewTx(ctx context.Context, tx pgx.Tx, sub *Subscription, amount decimal.Decimal, paymentRef string, now time.Time) error {
	if sub.Status != SubscriptionActive && sub.Status != SubscriptionExpired {
		return Conflictf("subscription %d cannot be renewed: status is %s (must be active or expired)", sub.ID, sub.Status)
	}

	base := sub.RenewalBase(now)
	sub.Status = SubscriptionActive
	sub.EndDate = periodEnd(sub.PlanType, base)
	next := sub.EndDate
	sub.NextBillingDate = &next
	sub.CancelledAt = nil
	sub.CancellationReason = nil
	if !amount.IsZero() {
		sub.Amount = amount
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO subscription_renewals (subscription_id, amount, payment_ref, renewed_at)
		VALUES ($1, $2, $3, $4)
	`, sub.ID, amount, paymentRef, now)
	if err != nil {
		return fmt.Errorf("failed to record renewal for subscription %d: %w", sub.ID, err)
	}
	return saveSubscriptionTx(ctx, tx, sub)
}

func (s *subscriptionService) ApplyPaymentTx(ctx context.Context, tx pgx.Tx, subscriptionID int, amount decimal.Decimal, paymentRef string) error {
	sub, err := lockSubscriptionTx(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}

	now := time.Now()
	// A lapsed-but-unswept active subscription renews as expired would: the expiry
	// rule runs before the payment is applied.
	sub.expireIfLapsed(now)

	switch sub.Status {
	case SubscriptionPending:
		return activateTx(ctx, tx, sub, amount, paymentRef, now)
	case SubscriptionActive, SubscriptionExpired:
		return renewTx(ctx, tx, sub, amount, paymentRef, now)
	default:
		return Conflictf("subscription %d cannot accept payment: status is %s", subscriptionID, sub.Status)
	}
}

func (s *subscriptionService) Activate(ctx context.Context, subscriptionID int, amount decimal.Decimal, paymentRef string) (*Subscription, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := lockSubscriptionTx(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubscriptionPending {
		return nil, Conflictf("subscription %d cannot be activated: status is %s (must be pending)", subscriptionID, sub.Status)
	}
	if err := activateTx(ctx, tx, sub, amount, paymentRef, time.Now()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return s.get(ctx, subscriptionID)
}

func (s *subscriptionService) Renew(ctx context.Context, subscriptionID int, amount decimal.Decimal, paymentRef string) (*Subscription, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := lockSubscriptionTx(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sub.expireIfLapsed(now)
	if err := renewTx(ctx, tx, sub, amount, paymentRef, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit renewal: %w", err)
	}
	return s.get(ctx, subscriptionID)
}

func (s *subscriptionService) Cancel(ctx context.Context, ownerID int, reason string) (*Subscription, error) {
	return s.terminate(ctx, ownerID, SubscriptionCancelled, reason)
}

func (s *subscriptionService) Suspend(ctx context.Context, ownerID int, reason string) (*Subscription, error) {
	return s.terminate(ctx, ownerID, SubscriptionSuspended, reason)
}

func (s *subscriptionService) terminate(ctx context.Context, ownerID int, target SubscriptionState, reason string) (*Subscription, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int
	err = tx.QueryRow(ctx, `
		SELECT id FROM subscriptions
		WHERE owner_id = $1 AND status IN ('active', 'pending')
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`, ownerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("no active subscription for owner %d", ownerID)
		}
		return nil, fmt.Errorf("failed to look up subscription for owner %d: %w", ownerID, err)
	}

	sub, err := lockSubscriptionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Status = target
	if target == SubscriptionCancelled {
		sub.AutoRenew = false
		sub.CancelledAt = &now
	}
	sub.CancellationReason = &reason

	if err := saveSubscriptionTx(ctx, tx, sub); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit subscription %s: %w", target, err)
	}
	return s.get(ctx, id)
}

func (s *subscriptionService) ExpireSweep(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM subscriptions
		WHERE status = 'active'
		  AND end_date + make_interval(days => grace_period_days) < NOW()
		ORDER BY id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query expiry candidates: %w", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expiry candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating expiry candidates: %w", err)
	}

	expired := 0
	for _, id := range ids {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return expired, fmt.Errorf("failed to begin sweep transaction: %w", err)
		}
		sub, err := lockSubscriptionTx(ctx, tx, id)
		if err != nil {
			tx.Rollback(ctx)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return expired, err
		}
		if !sub.expireIfLapsed(time.Now()) {
			tx.Rollback(ctx)
			continue
		}
		if err := saveSubscriptionTx(ctx, tx, sub); err != nil {
			tx.Rollback(ctx)
			return expired, err
		}
		if err := tx.Commit(ctx); err != nil {
			return expired, fmt.Errorf("failed to commit sweep transaction: %w", err)
		}
		expired++
	}
	return expired, nil
}
