package app

import (
	"context"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type appService struct {
	pool          *pgxpool.Pool
	clients       core.ClientService
	invoices      core.InvoiceService
	stock         core.StockService
	payments      core.PaymentService
	subscriptions core.SubscriptionService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	clients core.ClientService,
	invoices core.InvoiceService,
	stock core.StockService,
	payments core.PaymentService,
	subscriptions core.SubscriptionService,
) ApplicationService {
	return &appService{
		pool:          pool,
		clients:       clients,
		invoices:      invoices,
		stock:         stock,
		payments:      payments,
		subscriptions: subscriptions,
	}
}

// ── Clients ───────────────────────────────────────────────────────────────────

func (s *appService) CreateClient(ctx context.Context, ownerID int, req core.ClientInput) (*core.Client, error) {
	return s.clients.CreateClient(ctx, ownerID, req)
}

func (s *appService) GetClient(ctx context.Context, ownerID, clientID int) (*core.Client, error) {
	return s.clients.GetClient(ctx, ownerID, clientID)
}

func (s *appService) ListClients(ctx context.Context, ownerID int) ([]core.Client, error) {
	return s.clients.ListClients(ctx, ownerID)
}

func (s *appService) UpdateClient(ctx context.Context, ownerID, clientID int, req core.ClientInput) (*core.Client, error) {
	return s.clients.UpdateClient(ctx, ownerID, clientID, req)
}

// ── Invoices ──────────────────────────────────────────────────────────────────

func (s *appService) CreateInvoice(ctx context.Context, ownerID int, req core.InvoiceInput) (*core.Invoice, error) {
	return s.invoices.CreateInvoice(ctx, ownerID, req)
}

func (s *appService) GetInvoice(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error) {
	return s.invoices.GetInvoice(ctx, ownerID, invoiceID)
}

func (s *appService) ListInvoices(ctx context.Context, ownerID int, status *core.InvoiceStatus) ([]core.Invoice, error) {
	return s.invoices.ListInvoices(ctx, ownerID, status)
}

func (s *appService) UpdateInvoice(ctx context.Context, ownerID, invoiceID int, req core.InvoiceInput) (*core.Invoice, error) {
	return s.invoices.UpdateInvoice(ctx, ownerID, invoiceID, req)
}

func (s *appService) DeleteInvoice(ctx context.Context, ownerID, invoiceID int) error {
	return s.invoices.DeleteInvoice(ctx, ownerID, invoiceID)
}

func (s *appService) MarkInvoiceSent(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error) {
	return s.invoices.MarkAsSent(ctx, ownerID, invoiceID)
}

func (s *appService) MarkInvoiceViewed(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error) {
	return s.invoices.MarkAsViewed(ctx, ownerID, invoiceID)
}

func (s *appService) CancelInvoice(ctx context.Context, ownerID, invoiceID int) (*core.Invoice, error) {
	return s.invoices.CancelInvoice(ctx, ownerID, invoiceID)
}

// ── Inventory ─────────────────────────────────────────────────────────────────

func (s *appService) CreateInventoryItem(ctx context.Context, ownerID int, req core.InventoryItemInput) (*core.InventoryItem, error) {
	return s.stock.CreateItem(ctx, ownerID, req)
}

func (s *appService) GetInventoryItem(ctx context.Context, ownerID, itemID int) (*core.InventoryItem, error) {
	return s.stock.GetItem(ctx, ownerID, itemID)
}

func (s *appService) ListInventoryItems(ctx context.Context, ownerID int) ([]core.InventoryItem, error) {
	return s.stock.ListItems(ctx, ownerID)
}

func (s *appService) ListReorderCandidates(ctx context.Context, ownerID int) ([]core.InventoryItem, error) {
	return s.stock.ListReorderCandidates(ctx, ownerID)
}

func (s *appService) AddStock(ctx context.Context, ownerID, itemID int, req StockMovementRequest) (*core.InventoryItem, error) {
	return s.stock.AddStock(ctx, ownerID, itemID, req.Quantity, req.MovementType, req.Reference, req.Notes, req.ActorID)
}

func (s *appService) ReduceStock(ctx context.Context, ownerID, itemID int, req StockMovementRequest) (*core.InventoryItem, error) {
	return s.stock.ReduceStock(ctx, ownerID, itemID, req.Quantity, req.MovementType, req.Reference, req.Notes, req.ActorID)
}

func (s *appService) AdjustStock(ctx context.Context, ownerID, itemID int, req StockAdjustRequest) (*core.InventoryItem, error) {
	return s.stock.AdjustStock(ctx, ownerID, itemID, req.NewQuantity, req.Notes, req.ActorID)
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *appService) CreatePayment(ctx context.Context, ownerID int, req core.PaymentInput) (*core.Payment, error) {
	return s.payments.CreatePayment(ctx, ownerID, req)
}

func (s *appService) GetPayment(ctx context.Context, ownerID, paymentID int) (*core.Payment, error) {
	return s.payments.GetPayment(ctx, ownerID, paymentID)
}

func (s *appService) ListPayments(ctx context.Context, ownerID int, status *core.PaymentState) ([]core.Payment, error) {
	return s.payments.ListPayments(ctx, ownerID, status)
}

func (s *appService) CompletePayment(ctx context.Context, ownerID, paymentID int) (*core.Payment, error) {
	return s.payments.MarkAsCompleted(ctx, ownerID, paymentID)
}

func (s *appService) FailPayment(ctx context.Context, ownerID, paymentID int, reason string) (*core.Payment, error) {
	return s.payments.MarkAsFailed(ctx, ownerID, paymentID, reason)
}

func (s *appService) RefundPayment(ctx context.Context, ownerID, paymentID int, req RefundRequest) (*core.Payment, error) {
	return s.payments.ProcessRefund(ctx, ownerID, paymentID, req.Amount, req.Reason, req.ActorID)
}

func (s *appService) StartCheckout(ctx context.Context, ownerID, paymentID int, customer core.GatewayCustomer) (string, error) {
	return s.payments.InitializeGatewayPayment(ctx, ownerID, paymentID, customer)
}

func (s *appService) VerifyPayment(ctx context.Context, ownerID int, transactionRef string) (*core.Payment, error) {
	return s.payments.VerifyGatewayPayment(ctx, ownerID, transactionRef)
}

// ── Subscriptions ─────────────────────────────────────────────────────────────

func (s *appService) GetSubscription(ctx context.Context, ownerID int) (*core.Subscription, error) {
	return s.subscriptions.GetForOwner(ctx, ownerID)
}

// StartSubscription finds or creates the owner's subscription, then opens a
// pending payment linked to it. Completing that payment (cash, manual, or
// verified gateway) is what activates or renews the subscription.
func (s *appService) StartSubscription(ctx context.Context, ownerID int, planType core.PlanType, amount decimal.Decimal) (*SubscriptionCheckout, error) {
	sub, err := s.subscriptions.FindOrCreate(ctx, ownerID, planType, amount)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.CreatePayment(ctx, ownerID, core.PaymentInput{
		SubscriptionID: &sub.ID,
		Amount:         amount,
		Method:         core.MethodGateway,
	})
	if err != nil {
		return nil, err
	}
	return &SubscriptionCheckout{Subscription: sub, Payment: payment}, nil
}

func (s *appService) CancelSubscription(ctx context.Context, ownerID int, reason string) (*core.Subscription, error) {
	return s.subscriptions.Cancel(ctx, ownerID, reason)
}

func (s *appService) SuspendSubscription(ctx context.Context, ownerID int, reason string) (*core.Subscription, error) {
	return s.subscriptions.Suspend(ctx, ownerID, reason)
}

// ── Reconciliation sweeps ─────────────────────────────────────────────────────

func (s *appService) RunSweeps(ctx context.Context) (*SweepResult, error) {
	overdue, err := s.invoices.MarkOverdueSweep(ctx)
	if err != nil {
		return nil, err
	}
	expired, err := s.subscriptions.ExpireSweep(ctx)
	if err != nil {
		return nil, err
	}
	return &SweepResult{InvoicesMarkedOverdue: overdue, SubscriptionsExpired: expired}, nil
}
