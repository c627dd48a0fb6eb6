package app

import (
	"context"

	"backoffice/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all adapters call. It decouples
// presentation from business logic. Implementations must contain no display
// logic of any kind.
type ApplicationService interface {
	// ── Clients ───────────────────────────────────────────────────────────────

	CreateClient(ctx context.Context, ownerID int, req core.ClientInput) (*core.Client, error)
	GetClient(ctx context.Context, ownerID, clientID int) (*core.Client, error)
	ListClients(ctx context.Context, ownerID int) ([]core.Client, error)
	UpdateClient(ctx context.Context, ownerID, clientID int, req core.ClientInput) (*core.Client, error)

	// ── Invoices ──────────────────────────────────────────────────────────────

	CreateInvoice(ctx context.Context, ownerID int, req core.InvoiceInput) (*core.Invoice, error)
	GetInvoice(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error)
	ListInvoices(ctx context.Context, ownerID int, status *core.InvoiceStatus) ([]core.Invoice, error)
	UpdateInvoice(ctx context.Context, ownerID, invoiceID int, req core.InvoiceInput) (*core.Invoice, error)
	DeleteInvoice(ctx context.Context, ownerID, invoiceID int) error
	MarkInvoiceSent(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error)
	MarkInvoiceViewed(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error)
	CancelInvoice(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error)

	// ── Inventory ─────────────────────────────────────────────────────────────

	CreateInventoryItem(ctx context.Context, ownerID int, req core.InventoryItemInput) (*core.InventoryItem, error)
	GetInventoryItem(ctx context.Context, ownerID, itemID int) (*core.InventoryItem, error)
	ListInventoryItems(ctx context.Context, ownerID int) ([]core.InventoryItem, error)
	ListReorderCandidates(ctx context.Context, ownerID int) ([]core.InventoryItem, error)
	AddStock(ctx context.Context, ownerID, itemID int, req StockMovementRequest) (*core.InventoryItem, error)
	ReduceStock(ctx context.Context, ownerID, itemID int, req StockMovementRequest) (*core.InventoryItem, error)
	AdjustStock(ctx context.Context, ownerID, itemID int, req StockAdjustRequest) (*core.InventoryItem, error)

	// ── Payments ──────────────────────────────────────────────────────────────

	CreatePayment(ctx context.Context, ownerID int, req core.PaymentInput) (*core.Payment, error)
	GetPayment(ctx context.Context, ownerID, paymentID int) (*core.Payment, error)
	ListPayments(ctx context.Context, ownerID int, status *core.PaymentState) ([]core.Payment, error)
	CompletePayment(ctx context.Context, ownerID, paymentID int) (*core.Payment, error)
	FailPayment(ctx context.Context, ownerID, paymentID int, reason string) (*core.Payment, error)
	RefundPayment(ctx context.Context, ownerID, paymentID int, req RefundRequest) (*core.Payment, error)

	// StartCheckout begins a hosted gateway checkout for a pending payment and
	// returns the redirect link.
	StartCheckout(ctx context.Context, ownerID, paymentID int, customer core.GatewayCustomer) (string, error)
	// VerifyPayment asks the gateway for the authoritative outcome of a
	// transaction and completes the payment on verified success.
	VerifyPayment(ctx context.Context, ownerID int, transactionRef string) (*core.Payment, error)

	// ── Subscriptions ─────────────────────────────────────────────────────────

	GetSubscription(ctx context.Context, ownerID int) (*core.Subscription, error)
	// StartSubscription finds or creates the owner's subscription and returns a
	// pending payment for the plan amount, ready for checkout.
	StartSubscription(ctx context.Context, ownerID int, planType core.PlanType, amount decimal.Decimal) (*SubscriptionCheckout, error)
	CancelSubscription(ctx context.Context, ownerID int, reason string) (*core.Subscription, error)
	SuspendSubscription(ctx context.Context, ownerID int, reason string) (*core.Subscription, error)

	// ── Reconciliation sweeps ─────────────────────────────────────────────────

	RunSweeps(ctx context.Context) (*SweepResult, error)
}

// StockMovementRequest describes an add or reduce stock operation.
type StockMovementRequest struct {
	Quantity     decimal.Decimal   `json:"quantity"`
	MovementType core.MovementType `json:"movementType"`
	Reference    string            `json:"reference"`
	Notes        string            `json:"notes"`
	ActorID      *int              `json:"actorId,omitempty"`
}

// StockAdjustRequest sets an item's quantity directly.
type StockAdjustRequest struct {
	NewQuantity decimal.Decimal `json:"newQuantity"`
	Notes       string          `json:"notes"`
	ActorID     *int            `json:"actorId,omitempty"`
}

// RefundRequest describes a full or partial refund of a completed payment.
type RefundRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
	ActorID *int            `json:"actorId,omitempty"`
}

// SubscriptionCheckout pairs a subscription with the pending payment created
// for its next activation or renewal.
type SubscriptionCheckout struct {
	Subscription *core.Subscription `json:"subscription"`
	Payment      *core.Payment      `json:"payment"`
}

// SweepResult reports the outcome of one reconciliation pass.
type SweepResult struct {
	InvoicesMarkedOverdue int `json:"invoicesMarkedOverdue"`
	SubscriptionsExpired  int `json:"subscriptionsExpired"`
}
