package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentCompletedEvent describes a payment whose completion must be reconciled
// into the entities it is linked to.
type PaymentCompletedEvent struct {
	PaymentID      int
	OwnerID        int
	InvoiceID      *int
	ClientID       *int
	SubscriptionID *int
	Amount         decimal.Decimal
	TransactionRef string
	CompletedAt    time.Time
}

// PaymentRefundedEvent describes a refund whose effects must be reversed out of
// the linked invoice.
type PaymentRefundedEvent struct {
	PaymentID      int
	OwnerID        int
	InvoiceID      *int
	ClientID       *int
	Amount         decimal.Decimal
	TransactionRef string
}

// CompletionHandler reacts to a completed payment inside the reconciler's
// transaction: either every handler's effect commits or none does.
type CompletionHandler func(ctx context.Context, tx pgx.Tx, ev PaymentCompletedEvent) error

// RefundHandler reacts to a refunded payment inside the reconciler's transaction.
type RefundHandler func(ctx context.Context, tx pgx.Tx, ev PaymentRefundedEvent) error

// Dispatcher fans a payment event out to its registered handlers. It replaces
// direct cross-service method calls so the invoice, client and subscription
// updates stay independent, individually testable steps.
type Dispatcher struct {
	completion []CompletionHandler
	refund     []RefundHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) OnCompletion(h CompletionHandler) {
	d.completion = append(d.completion, h)
}

func (d *Dispatcher) OnRefund(h RefundHandler) {
	d.refund = append(d.refund, h)
}

// DispatchCompletion runs every completion handler in registration order. The
// first failure aborts; the caller's transaction rollback undoes prior handlers.
func (d *Dispatcher) DispatchCompletion(ctx context.Context, tx pgx.Tx, ev PaymentCompletedEvent) error {
	for _, h := range d.completion {
		if err := h(ctx, tx, ev); err != nil {
			return fmt.Errorf("payment %s completion handler failed: %w", ev.TransactionRef, err)
		}
	}
	return nil
}

// DispatchRefund runs every refund handler in registration order.
func (d *Dispatcher) DispatchRefund(ctx context.Context, tx pgx.Tx, ev PaymentRefundedEvent) error {
	for _, h := range d.refund {
		if err := h(ctx, tx, ev); err != nil {
			return fmt.Errorf("payment %s refund handler failed: %w", ev.TransactionRef, err)
		}
	}
	return nil
}

// InvoiceCompletionHandler applies a completed payment to its linked invoice.
func InvoiceCompletionHandler(invoices InvoiceService) CompletionHandler {
	return func(ctx context.Context, tx pgx.Tx, ev PaymentCompletedEvent) error {
		if ev.InvoiceID == nil {
			return nil
		}
		return invoices.AddPaymentTx(ctx, tx, *ev.InvoiceID, ev.Amount)
	}
}

// ClientCompletionHandler rolls a completed payment into the client's running
// balance: totalPaid and outstandingBalance move, lastPaymentDate is stamped.
func ClientCompletionHandler() CompletionHandler {
	return func(ctx context.Context, tx pgx.Tx, ev PaymentCompletedEvent) error {
		if ev.ClientID == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `
			UPDATE clients
			SET total_paid = total_paid + $1,
			    outstanding_balance = GREATEST(outstanding_balance - $1, 0),
			    last_payment_date = $2
			WHERE id = $3
		`, ev.Amount, ev.CompletedAt, *ev.ClientID)
		if err != nil {
			return fmt.Errorf("failed to update client %d aggregates: %w", *ev.ClientID, err)
		}
		return nil
	}
}

// SubscriptionCompletionHandler activates or renews the linked subscription.
func SubscriptionCompletionHandler(subs SubscriptionService) CompletionHandler {
	return func(ctx context.Context, tx pgx.Tx, ev PaymentCompletedEvent) error {
		if ev.SubscriptionID == nil {
			return nil
		}
		return subs.ApplyPaymentTx(ctx, tx, *ev.SubscriptionID, ev.Amount, ev.TransactionRef)
	}
}

// ClientRefundHandler backs a refund out of the client's running balance,
// mirroring ClientCompletionHandler: totalPaid drops and the refunded amount
// becomes outstanding again.
func ClientRefundHandler() RefundHandler {
	return func(ctx context.Context, tx pgx.Tx, ev PaymentRefundedEvent) error {
		if ev.ClientID == nil {
			return nil
		}
		_, err := tx.Exec(ctx, `
			UPDATE clients
			SET total_paid = GREATEST(total_paid - $1, 0),
			    outstanding_balance = outstanding_balance + $1
			WHERE id = $2
		`, ev.Amount, *ev.ClientID)
		if err != nil {
			return fmt.Errorf("failed to reverse client %d aggregates: %w", *ev.ClientID, err)
		}
		return nil
	}
}

// InvoiceRefundHandler reverses a refunded payment out of its linked invoice.
func InvoiceRefundHandler(invoices InvoiceService) RefundHandler {
	return func(ctx context.Context, tx pgx.Tx, ev PaymentRefundedEvent) error {
		if ev.InvoiceID == nil {
			return nil
		}
		return invoices.ReversePaymentTx(ctx, tx, *ev.InvoiceID, ev.Amount)
	}
}
