package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// GatewayInitRequest is the checkout-initialization payload sent to the external
// payment gateway.
type GatewayInitRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Reference string
	Customer  GatewayCustomer
}

// GatewayInitResult is what the gateway returns for a started checkout.
type GatewayInitResult struct {
	PaymentLink string
	ExternalRef string
}

// GatewayVerifyResult is the gateway's authoritative outcome for one transaction.
type GatewayVerifyResult struct {
	Status    string // "successful", "failed" or "pending"
	Amount    decimal.Decimal
	Currency  string
	CardType  string
	CardLast4 string
}

// GatewayStatusSuccessful is the only verify outcome that authorizes completion.
const GatewayStatusSuccessful = "successful"

// PaymentGateway is the black-box external collaborator. The reconciler never
// trusts client-supplied success signals — only a Verify result.
type PaymentGateway interface {
	Initialize(ctx context.Context, req GatewayInitRequest) (*GatewayInitResult, error)
	Verify(ctx context.Context, reference string) (*GatewayVerifyResult, error)
}

// PaymentService orchestrates payment state transitions and propagates completed
// and refunded payments into the invoice ledger, client aggregates and the
// subscription lifecycle via the dispatcher. Completion side effects apply exactly
// once per payment even when the completion path is invoked twice.
type PaymentService interface {
	CreatePayment(ctx context.Context, ownerID int, in PaymentInput) (*Payment, error)
	GetPayment(ctx context.Context, ownerID, paymentID int) (*Payment, error)
	GetPaymentByRef(ctx context.Context, ownerID int, transactionRef string) (*Payment, error)
	ListPayments(ctx context.Context, ownerID int, status *PaymentState) ([]Payment, error)

	MarkAsCompleted(ctx context.Context, ownerID, paymentID int) (*Payment, error)
	MarkAsFailed(ctx context.Context, ownerID, paymentID int, reason string) (*Payment, error)
	ProcessRefund(ctx context.Context, ownerID, paymentID int, amount decimal.Decimal, reason string, actorID *int) (*Payment, error)

	// InitializeGatewayPayment starts a gateway checkout for a pending payment and
	// stores the returned external reference on it.
	InitializeGatewayPayment(ctx context.Context, ownerID, paymentID int, customer GatewayCustomer) (string, error)
	// VerifyGatewayPayment fetches the gateway's authoritative outcome and completes
	// the payment only on a successful status with an exactly matching amount.
	VerifyGatewayPayment(ctx context.Context, ownerID int, transactionRef string) (*Payment, error)
}

type paymentService struct {
	pool       *pgxpool.Pool
	dispatcher *Dispatcher
	gateway    PaymentGateway
}

// NewPaymentService constructs the reconciler. gateway may be nil when no
// gateway-backed flow is configured; gateway operations then fail with ErrGateway.
func NewPaymentService(pool *pgxpool.Pool, dispatcher *Dispatcher, gateway PaymentGateway) PaymentService {
	return &paymentService{pool: pool, dispatcher: dispatcher, gateway: gateway}
}

const paymentColumns = `
	id, owner_id, invoice_id, client_id, subscription_id, amount, currency, method,
	gateway, transaction_ref, external_ref, status, fees, net_amount, failure_reason,
	refund_amount, refund_reason, refund_actor_id, refunded_at,
	completed_at, created_at, updated_at`

func scanPayment(row pgx.Row, p *Payment) error {
	var refundAmount *decimal.Decimal
	var refundReason *string
	var refundActorID *int
	var refundedAt *time.Time
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.InvoiceID, &p.ClientID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.Method,
		&p.Gateway, &p.TransactionRef, &p.ExternalRef, &p.Status, &p.Fees, &p.NetAmount, &p.FailureReason,
		&refundAmount, &refundReason, &refundActorID, &refundedAt,
		&p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if refundAmount != nil && refundedAt != nil {
		p.Refund = &Refund{Amount: *refundAmount, ActorID: refundActorID, RefundedAt: *refundedAt}
		if refundReason != nil {
			p.Refund.Reason = *refundReason
		}
	}
	return nil
}

func (s *paymentService) CreatePayment(ctx context.Context, ownerID int, in PaymentInput) (*Payment, error) {
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		return nil, Validationf("payment amount must be positive, got %s", in.Amount)
	}
	if in.Fees.IsNegative() {
		return nil, Validationf("payment fees cannot be negative, got %s", in.Fees)
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Overpayment guard: a payment linked to an invoice may not exceed what is due.
	if in.InvoiceID != nil {
		var amountDue decimal.Decimal
		err = tx.QueryRow(ctx,
			"SELECT amount_due FROM invoices WHERE id = $1 AND owner_id = $2",
			*in.InvoiceID, ownerID,
		).Scan(&amountDue)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, NotFoundf("invoice %d not found for owner %d", *in.InvoiceID, ownerID)
			}
			return nil, fmt.Errorf("failed to resolve invoice %d: %w", *in.InvoiceID, err)
		}
		if in.Amount.GreaterThan(amountDue) {
			return nil, fmt.Errorf("payment amount %s exceeds invoice amount due %s: %w",
				in.Amount, amountDue, ErrOverpayment)
		}
	}
	if in.ClientID != nil {
		var clientID int
		err = tx.QueryRow(ctx,
			"SELECT id FROM clients WHERE id = $1 AND owner_id = $2", *in.ClientID, ownerID,
		).Scan(&clientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, NotFoundf("client %d not found for owner %d", *in.ClientID, ownerID)
			}
			return nil, fmt.Errorf("failed to resolve client %d: %w", *in.ClientID, err)
		}
	}

	transactionRef := "PAY-" + uuid.NewString()
	netAmount := in.Amount.Sub(in.Fees)

	var paymentID int
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (owner_id, invoice_id, client_id, subscription_id, amount, currency,
		                      method, gateway, transaction_ref, status, fees, net_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11)
		RETURNING id
	`, ownerID, in.InvoiceID, in.ClientID, in.SubscriptionID, in.Amount, in.Currency,
		string(in.Method), in.Gateway, transactionRef, in.Fees, netAmount,
	).Scan(&paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment creation: %w", err)
	}

	// Cash needs no external verification: complete immediately.
	if in.Method == MethodCash {
		return s.MarkAsCompleted(ctx, ownerID, paymentID)
	}
	return s.GetPayment(ctx, ownerID, paymentID)
}

func (s *paymentService) GetPayment(ctx context.Context, ownerID, paymentID int) (*Payment, error) {
	var p Payment
	err := scanPayment(s.pool.QueryRow(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE id = $1 AND owner_id = $2",
		paymentID, ownerID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("payment %d not found for owner %d", paymentID, ownerID)
		}
		return nil, fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}
	return &p, nil
}

func (s *paymentService) GetPaymentByRef(ctx context.Context, ownerID int, transactionRef string) (*Payment, error) {
	var p Payment
	err := scanPayment(s.pool.QueryRow(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE transaction_ref = $1 AND owner_id = $2",
		transactionRef, ownerID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("payment %s not found for owner %d", transactionRef, ownerID)
		}
		return nil, fmt.Errorf("failed to fetch payment %s: %w", transactionRef, err)
	}
	return &p, nil
}

func (s *paymentService) ListPayments(ctx context.Context, ownerID int, status *PaymentState) ([]Payment, error) {
	query := "SELECT" + paymentColumns + " FROM payments WHERE owner_id = $1"
	args := []any{ownerID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, string(*status))
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// lockPaymentTx fetches a payment under FOR UPDATE so that concurrent completions
// of the same payment serialize and the loser sees the final status.
func lockPaymentTx(ctx context.Context, tx pgx.Tx, ownerID, paymentID int) (*Payment, error) {
	var p Payment
	err := scanPayment(tx.QueryRow(ctx,
		"SELECT"+paymentColumns+" FROM payments WHERE id = $1 AND owner_id = $2 FOR UPDATE",
		paymentID, ownerID), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("payment %d not found for owner %d", paymentID, ownerID)
		}
		return nil, fmt.Errorf("failed to lock payment %d: %w", paymentID, err)
	}
	return &p, nil
}

// completeLocked runs the single completion path: status flip, timestamp, and the
// cross-entity side effects — all inside the caller's transaction. The status
// check after the row lock is what de-duplicates a retried completion.
func (s *paymentService) completeLocked(ctx context.Context, tx pgx.Tx, p *Payment) error {
	if p.Status == PaymentCompleted {
		return Conflictf("payment %s is already completed", p.TransactionRef)
	}
	if p.Status != PaymentPending && p.Status != PaymentProcessing {
		return Conflictf("payment %s cannot be completed: status is %s", p.TransactionRef, p.Status)
	}

	now := time.Now()
	_, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'completed', completed_at = $1, updated_at = NOW() WHERE id = $2
	`, now, p.ID)
	if err != nil {
		return fmt.Errorf("failed to complete payment %d: %w", p.ID, err)
	}

	return s.dispatcher.DispatchCompletion(ctx, tx, PaymentCompletedEvent{
		PaymentID:      p.ID,
		OwnerID:        p.OwnerID,
		InvoiceID:      p.InvoiceID,
		ClientID:       p.ClientID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount,
		TransactionRef: p.TransactionRef,
		CompletedAt:    now,
	})
}

func (s *paymentService) MarkAsCompleted(ctx context.Context, ownerID, paymentID int) (*Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPaymentTx(ctx, tx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.completeLocked(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment completion: %w", err)
	}
	return s.GetPayment(ctx, ownerID, paymentID)
}

func (s *paymentService) MarkAsFailed(ctx context.Context, ownerID, paymentID int, reason string) (*Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPaymentTx(ctx, tx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != PaymentPending && p.Status != PaymentProcessing {
		return nil, Conflictf("payment %s cannot be failed: status is %s", p.TransactionRef, p.Status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET status = 'failed', failure_reason = $1, updated_at = NOW() WHERE id = $2
	`, reason, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment %d as failed: %w", paymentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment failure: %w", err)
	}
	return s.GetPayment(ctx, ownerID, paymentID)
}

func (s *paymentService) ProcessRefund(ctx context.Context, ownerID, paymentID int, amount decimal.Decimal, reason string, actorID *int) (*Payment, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, Validationf("refund amount must be positive, got %s", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPaymentTx(ctx, tx, ownerID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != PaymentCompleted {
		return nil, Conflictf("payment %s cannot be refunded: status is %s (must be completed)", p.TransactionRef, p.Status)
	}
	if amount.GreaterThan(p.Amount) {
		return nil, Validationf("refund amount %s exceeds payment amount %s", amount, p.Amount)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = 'refunded', refund_amount = $1, refund_reason = $2, refund_actor_id = $3,
		    refunded_at = NOW(), updated_at = NOW()
		WHERE id = $4
	`, amount, reason, actorID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to record refund for payment %d: %w", paymentID, err)
	}

	err = s.dispatcher.DispatchRefund(ctx, tx, PaymentRefundedEvent{
		PaymentID:      p.ID,
		OwnerID:        p.OwnerID,
		InvoiceID:      p.InvoiceID,
		ClientID:       p.ClientID,
		Amount:         amount,
		TransactionRef: p.TransactionRef,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	return s.GetPayment(ctx, ownerID, paymentID)
}

func (s *paymentService) InitializeGatewayPayment(ctx context.Context, ownerID, paymentID int, customer GatewayCustomer) (string, error) {
	if s.gateway == nil {
		return "", fmt.Errorf("no payment gateway configured: %w", ErrGateway)
	}

	p, err := s.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		return "", err
	}
	if p.Status != PaymentPending {
		return "", Conflictf("payment %s cannot start checkout: status is %s (must be pending)", p.TransactionRef, p.Status)
	}

	res, err := s.gateway.Initialize(ctx, GatewayInitRequest{
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reference: p.TransactionRef,
		Customer:  customer,
	})
	if err != nil {
		return "", fmt.Errorf("gateway initialization for %s failed: %v: %w", p.TransactionRef, err, ErrGateway)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE payments SET external_ref = $1, updated_at = NOW() WHERE id = $2
	`, res.ExternalRef, paymentID)
	if err != nil {
		return "", fmt.Errorf("failed to store external ref for payment %d: %w", paymentID, err)
	}
	return res.PaymentLink, nil
}

func (s *paymentService) VerifyGatewayPayment(ctx context.Context, ownerID int, transactionRef string) (*Payment, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("no payment gateway configured: %w", ErrGateway)
	}

	p, err := s.GetPaymentByRef(ctx, ownerID, transactionRef)
	if err != nil {
		return nil, err
	}
	// A retried verification after the payment already completed is a no-op: the
	// side effects were applied exactly once on the first pass.
	if p.Status == PaymentCompleted {
		return p, nil
	}
	if p.Status != PaymentPending && p.Status != PaymentProcessing {
		return nil, Conflictf("payment %s cannot be verified: status is %s", transactionRef, p.Status)
	}

	res, err := s.gateway.Verify(ctx, transactionRef)
	if err != nil {
		return nil, fmt.Errorf("gateway verification for %s failed: %v: %w", transactionRef, err, ErrGateway)
	}

	switch res.Status {
	case GatewayStatusSuccessful:
		// fall through to amount check
	case "failed":
		if _, failErr := s.MarkAsFailed(ctx, ownerID, p.ID, "gateway reported failure"); failErr != nil {
			return nil, failErr
		}
		return nil, Conflictf("payment %s failed at gateway", transactionRef)
	default:
		// Still pending at the gateway: leave the payment untouched.
		return nil, Conflictf("payment %s is not settled at gateway: status %q", transactionRef, res.Status)
	}

	if !res.Amount.Equal(p.Amount) {
		return nil, fmt.Errorf("gateway reports amount %s for %s, expected %s: %w",
			res.Amount, transactionRef, p.Amount, ErrAmountMismatch)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := lockPaymentTx(ctx, tx, ownerID, p.ID)
	if err != nil {
		return nil, err
	}
	// Re-check after the lock: a concurrent verification may have won the race.
	if locked.Status == PaymentCompleted {
		return locked, nil
	}
	if err := s.completeLocked(ctx, tx, locked); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit verified completion: %w", err)
	}
	return s.GetPayment(ctx, ownerID, p.ID)
}
