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

// InvoiceService owns invoice and line-item totals, status derivation and overdue
// detection. It is a leaf component: the payment reconciler drives AddPaymentTx and
// ReversePaymentTx inside its own transactions.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, ownerID int, in InvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, ownerID, invoiceID int) (*Invoice, error)
	ListInvoices(ctx context.Context, ownerID int, status *InvoiceStatus) ([]Invoice, error)
	// UpdateInvoice replaces the header fields and line items of a non-paid invoice.
	UpdateInvoice(ctx context.Context, ownerID, invoiceID int, in InvoiceInput) (*Invoice, error)
	// DeleteInvoice removes an invoice and its items. Paid invoices are immutable.
	DeleteInvoice(ctx context.Context, ownerID, invoiceID int) error
	// MarkAsSent transitions draft → sent and stamps sentAt.
	MarkAsSent(ctx context.Context, ownerID, invoiceID int) (*Invoice, error)
	// MarkAsViewed transitions sent → viewed and stamps viewedAt once.
	MarkAsViewed(ctx context.Context, ownerID, invoiceID int) (*Invoice, error)
	// CancelInvoice moves any unpaid invoice to cancelled and backs its totals out
	// of the client's aggregates. Paid invoices are immutable.
	CancelInvoice(ctx context.Context, ownerID, invoiceID int) (*Invoice, error)

	// TX-scoped operations used by the payment reconciler. Not idempotent on their
	// own: the caller guarantees at-most-once application per completed payment.

	// AddPaymentTx increments amountPaid and re-derives the invoice's status fields.
	AddPaymentTx(ctx context.Context, tx pgx.Tx, invoiceID int, amount decimal.Decimal) error
	// ReversePaymentTx decrements amountPaid (refund) and re-derives status fields.
	ReversePaymentTx(ctx context.Context, tx pgx.Tx, invoiceID int, amount decimal.Decimal) error

	// MarkOverdueSweep is an idempotent reconciliation pass over unpaid invoices past
	// their due date. It reuses the same Recompute derivation as the save path and
	// returns the number of invoices transitioned to overdue.
	MarkOverdueSweep(ctx context.Context) (int, error)
}

type invoiceService struct {
	pool *pgxpool.Pool
}

func NewInvoiceService(pool *pgxpool.Pool) InvoiceService {
	return &invoiceService{pool: pool}
}

// nextInvoiceNumberTx assigns a sequential, year-scoped invoice number from an
// atomically incremented per-owner-per-year counter. The upsert makes concurrent
// creations for the same owner and year serialize on one row instead of racing a
// find-max scan.
func nextInvoiceNumberTx(ctx context.Context, tx pgx.Tx, ownerID, year int) (string, error) {
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (owner_id, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (owner_id, year)
		DO UPDATE SET last_number = invoice_sequences.last_number + 1
		RETURNING last_number
	`, ownerID, year).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	return FormatInvoiceNumber(year, int(lastNumber)), nil
}

// FormatInvoiceNumber renders the canonical INV-<year>-<seq> invoice number.
func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

func (s *invoiceService) CreateInvoice(ctx context.Context, ownerID int, in InvoiceInput) (*Invoice, error) {
	if len(in.Items) == 0 {
		return nil, Validationf("invoice must have at least one item")
	}
	for i, item := range in.Items {
		if item.Quantity.IsNegative() || item.Quantity.IsZero() {
			return nil, Validationf("item %d: quantity must be positive, got %s", i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, Validationf("item %d: unit price cannot be negative, got %s", i+1, item.UnitPrice)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Reject clients that do not belong to the requesting owner.
	var clientID int
	err = tx.QueryRow(ctx,
		"SELECT id FROM clients WHERE id = $1 AND owner_id = $2",
		in.ClientID, ownerID,
	).Scan(&clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("client %d not found for owner %d", in.ClientID, ownerID)
		}
		return nil, fmt.Errorf("failed to resolve client: %w", err)
	}

	now := time.Now()
	number, err := nextInvoiceNumberTx(ctx, tx, ownerID, now.Year())
	if err != nil {
		return nil, err
	}

	inv := Invoice{
		OwnerID:      ownerID,
		ClientID:     clientID,
		TaxRate:      in.TaxRate,
		Discount:     in.Discount,
		DiscountType: in.DiscountType,
		ShippingFee:  in.ShippingFee,
		AmountPaid:   decimal.Zero,
		Status:       InvoiceDraft,
		IssueDate:    now,
		DueDate:      in.DueDate,
		Notes:        in.Notes,
	}
	for _, item := range in.Items {
		inv.Items = append(inv.Items, InvoiceItem{
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Discount:     item.Discount,
			DiscountType: item.DiscountType,
		})
	}
	inv.Recompute(now)

	var invoiceID int
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (owner_id, client_id, invoice_number, subtotal, tax_rate, tax_amount,
		                      discount, discount_type, shipping_fee, total, amount_paid, amount_due,
		                      status, payment_status, issue_date, due_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`, ownerID, clientID, number, inv.Subtotal, inv.TaxRate, inv.TaxAmount,
		inv.Discount, string(inv.DiscountType), inv.ShippingFee, inv.Total, inv.AmountPaid, inv.AmountDue,
		string(inv.Status), string(inv.PaymentStatus), inv.IssueDate, inv.DueDate, inv.Notes,
	).Scan(&invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertInvoiceItemsTx(ctx, tx, invoiceID, inv.Items); err != nil {
		return nil, err
	}

	// Creating an invoice raises the client's invoiced/outstanding aggregates.
	if err := adjustClientAggregatesTx(ctx, tx, clientID, inv.Total, inv.Total); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice creation: %w", err)
	}

	return s.GetInvoice(ctx, ownerID, invoiceID)
}

// adjustClientAggregatesTx applies deltas to the client's derived billing totals.
// Both columns are floored at zero so a correction can never drive them negative.
func adjustClientAggregatesTx(ctx context.Context, tx pgx.Tx, clientID int, invoicedDelta, outstandingDelta decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE clients
		SET total_invoiced = GREATEST(total_invoiced + $1, 0),
		    outstanding_balance = GREATEST(outstanding_balance + $2, 0)
		WHERE id = $3
	`, invoicedDelta, outstandingDelta, clientID)
	if err != nil {
		return fmt.Errorf("failed to update client %d aggregates: %w", clientID, err)
	}
	return nil
}

func insertInvoiceItemsTx(ctx context.Context, tx pgx.Tx, invoiceID int, items []InvoiceItem) error {
	for i, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, discount, discount_type, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, invoiceID, item.Description, item.Quantity, item.UnitPrice, item.Discount, string(item.DiscountType), item.Subtotal)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item %d: %w", i+1, err)
		}
	}
	return nil
}

const invoiceColumns = `
	id, owner_id, client_id, invoice_number, subtotal, tax_rate, tax_amount,
	discount, discount_type, shipping_fee, total, amount_paid, amount_due,
	status, payment_status, issue_date, due_date, paid_date, sent_at, viewed_at,
	notes, created_at, updated_at`

func scanInvoice(row pgx.Row, inv *Invoice) error {
	return row.Scan(
		&inv.ID, &inv.OwnerID, &inv.ClientID, &inv.InvoiceNumber, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount,
		&inv.Discount, &inv.DiscountType, &inv.ShippingFee, &inv.Total, &inv.AmountPaid, &inv.AmountDue,
		&inv.Status, &inv.PaymentStatus, &inv.IssueDate, &inv.DueDate, &inv.PaidDate, &inv.SentAt, &inv.ViewedAt,
		&inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
}

func fetchInvoiceQ(ctx context.Context, q pgxQuerier, where string, args ...any) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(q.QueryRow(ctx, "SELECT"+invoiceColumns+" FROM invoices WHERE "+where, args...), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("invoice not found")
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	return &inv, nil
}

func fetchInvoiceItemsQ(ctx context.Context, q pgxRowQuerier, invoiceID int) ([]InvoiceItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, discount, discount_type, subtotal
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.DiscountType, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, ownerID, invoiceID int) (*Invoice, error) {
	inv, err := fetchInvoiceQ(ctx, s.pool, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return nil, err
	}
	items, err := fetchInvoiceItemsQ(ctx, s.pool, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, ownerID int, status *InvoiceStatus) ([]Invoice, error) {
	query := "SELECT" + invoiceColumns + " FROM invoices WHERE owner_id = $1"
	args := []any{ownerID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, string(*status))
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// lockInvoiceTx fetches an invoice (with items) under FOR UPDATE so that status
// transitions and payment applications serialize per invoice.
func lockInvoiceTx(ctx context.Context, tx pgx.Tx, where string, args ...any) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(tx.QueryRow(ctx, "SELECT"+invoiceColumns+" FROM invoices WHERE "+where+" FOR UPDATE", args...), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("invoice not found")
		}
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}
	items, err := fetchInvoiceItemsQ(ctx, tx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

// saveInvoiceTx persists the derived fields after a Recompute.
func saveInvoiceTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices
		SET subtotal = $1, tax_rate = $2, tax_amount = $3, discount = $4, discount_type = $5,
		    shipping_fee = $6, total = $7, amount_paid = $8, amount_due = $9,
		    status = $10, payment_status = $11, due_date = $12, paid_date = $13,
		    sent_at = $14, viewed_at = $15, notes = $16, updated_at = NOW()
		WHERE id = $17
	`, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Discount, string(inv.DiscountType),
		inv.ShippingFee, inv.Total, inv.AmountPaid, inv.AmountDue,
		string(inv.Status), string(inv.PaymentStatus), inv.DueDate, inv.PaidDate,
		inv.SentAt, inv.ViewedAt, inv.Notes, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to save invoice %d: %w", inv.ID, err)
	}
	return nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, ownerID, invoiceID int, in InvoiceInput) (*Invoice, error) {
	if len(in.Items) == 0 {
		return nil, Validationf("invoice must have at least one item")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoicePaid {
		return nil, Conflictf("cannot modify a paid invoice")
	}
	if inv.Status == InvoiceCancelled {
		return nil, Conflictf("cannot modify a cancelled invoice")
	}
	oldTotal := inv.Total
	oldDue := inv.AmountDue

	inv.TaxRate = in.TaxRate
	inv.Discount = in.Discount
	inv.DiscountType = in.DiscountType
	inv.ShippingFee = in.ShippingFee
	inv.DueDate = in.DueDate
	inv.Notes = in.Notes

	inv.Items = inv.Items[:0]
	for _, item := range in.Items {
		inv.Items = append(inv.Items, InvoiceItem{
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Discount:     item.Discount,
			DiscountType: item.DiscountType,
		})
	}
	inv.Recompute(time.Now())

	if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to replace invoice items: %w", err)
	}
	if err := insertInvoiceItemsTx(ctx, tx, invoiceID, inv.Items); err != nil {
		return nil, err
	}
	if err := saveInvoiceTx(ctx, tx, inv); err != nil {
		return nil, err
	}

	// An edit that changes the total moves the client's aggregates by the delta,
	// keeping them equal to the sum over the client's live invoices.
	if err := adjustClientAggregatesTx(ctx, tx, inv.ClientID,
		inv.Total.Sub(oldTotal), inv.AmountDue.Sub(oldDue)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return s.GetInvoice(ctx, ownerID, invoiceID)
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, ownerID, invoiceID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return err
	}
	if inv.Status == InvoicePaid {
		return Conflictf("cannot delete a paid invoice")
	}

	// Back the invoice out of the client's aggregates. Cancelled invoices were
	// already backed out when they were cancelled.
	if inv.Status != InvoiceCancelled {
		if err := adjustClientAggregatesTx(ctx, tx, inv.ClientID, inv.Total.Neg(), inv.AmountDue.Neg()); err != nil {
			return err
		}
	}

	// Items first, then the header.
	if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice items: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", invoiceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice deletion: %w", err)
	}
	return nil
}

func (s *invoiceService) MarkAsSent(ctx context.Context, ownerID, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, Conflictf("invoice %s cannot be sent: status is %s (must be draft)", inv.InvoiceNumber, inv.Status)
	}

	now := time.Now()
	inv.Status = InvoiceSent
	inv.SentAt = &now
	inv.Recompute(now)

	if err := saveInvoiceTx(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mark-as-sent: %w", err)
	}
	return s.GetInvoice(ctx, ownerID, invoiceID)
}

func (s *invoiceService) MarkAsViewed(ctx context.Context, ownerID, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvoiceSent {
		return nil, Conflictf("invoice %s cannot be viewed: status is %s (must be sent)", inv.InvoiceNumber, inv.Status)
	}

	now := time.Now()
	inv.Status = InvoiceViewed
	if inv.ViewedAt == nil {
		inv.ViewedAt = &now
	}
	inv.Recompute(now)

	if err := saveInvoiceTx(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mark-as-viewed: %w", err)
	}
	return s.GetInvoice(ctx, ownerID, invoiceID)
}

func (s *invoiceService) CancelInvoice(ctx context.Context, ownerID, invoiceID int) (*Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, "id = $1 AND owner_id = $2", invoiceID, ownerID)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoicePaid {
		return nil, Conflictf("cannot cancel a paid invoice")
	}
	if inv.Status == InvoiceCancelled {
		return nil, Conflictf("invoice %s is already cancelled", inv.InvoiceNumber)
	}

	// The cancelled invoice no longer counts toward what the client owes.
	if err := adjustClientAggregatesTx(ctx, tx, inv.ClientID, inv.Total.Neg(), inv.AmountDue.Neg()); err != nil {
		return nil, err
	}

	inv.Status = InvoiceCancelled
	inv.Recompute(time.Now())

	if err := saveInvoiceTx(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice cancellation: %w", err)
	}
	return s.GetInvoice(ctx, ownerID, invoiceID)
}

func (s *invoiceService) AddPaymentTx(ctx context.Context, tx pgx.Tx, invoiceID int, amount decimal.Decimal) error {
	inv, err := lockInvoiceTx(ctx, tx, "id = $1", invoiceID)
	if err != nil {
		return err
	}
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.Recompute(time.Now())
	return saveInvoiceTx(ctx, tx, inv)
}

func (s *invoiceService) ReversePaymentTx(ctx context.Context, tx pgx.Tx, invoiceID int, amount decimal.Decimal) error {
	inv, err := lockInvoiceTx(ctx, tx, "id = $1", invoiceID)
	if err != nil {
		return err
	}
	inv.AmountPaid = inv.AmountPaid.Sub(amount)
	if inv.AmountPaid.IsNegative() {
		inv.AmountPaid = decimal.Zero
	}
	inv.Recompute(time.Now())
	return saveInvoiceTx(ctx, tx, inv)
}

func (s *invoiceService) MarkOverdueSweep(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM invoices
		WHERE status NOT IN ('paid', 'cancelled', 'overdue')
		  AND due_date < NOW()
		ORDER BY id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query overdue candidates: %w", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan overdue candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating overdue candidates: %w", err)
	}

	transitioned := 0
	for _, id := range ids {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return transitioned, fmt.Errorf("failed to begin sweep transaction: %w", err)
		}
		inv, err := lockInvoiceTx(ctx, tx, "id = $1", id)
		if err != nil {
			tx.Rollback(ctx)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return transitioned, err
		}
		before := inv.Status
		inv.Recompute(time.Now())
		if inv.Status == before {
			tx.Rollback(ctx)
			continue
		}
		if err := saveInvoiceTx(ctx, tx, inv); err != nil {
			tx.Rollback(ctx)
			return transitioned, err
		}
		if err := tx.Commit(ctx); err != nil {
			return transitioned, fmt.Errorf("failed to commit sweep transaction: %w", err)
		}
		transitioned++
	}
	return transitioned, nil
}
