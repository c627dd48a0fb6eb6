package core_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"backoffice/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE subscription_renewals, subscriptions, payments, stock_movements,
			inventory_items, invoice_items, invoices, invoice_sequences, clients, users CASCADE;

		INSERT INTO users (id, email, name) VALUES
		(1, 'owner@test.local', 'Test Owner'),
		(2, 'other@test.local', 'Other Owner');
		SELECT setval(pg_get_serial_sequence('users', 'id'), 10);

		INSERT INTO clients (id, owner_id, name, email) VALUES
		(1, 1, 'Acme Ltd', 'billing@acme.test'),
		(2, 1, 'Globex Inc', 'ap@globex.test');
		SELECT setval(pg_get_serial_sequence('clients', 'id'), 10);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func testInvoiceInput(clientID int, due time.Time) core.InvoiceInput {
	return core.InvoiceInput{
		ClientID: clientID,
		TaxRate:  decimal.RequireFromString("7.5"),
		DueDate:  due,
		Items: []core.InvoiceItemInput{
			{Description: "Consulting", Quantity: d("4"), UnitPrice: d("2500.00")},
		},
	}
}

func TestInvoice_CreateDerivesTotals(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if !inv.Subtotal.Equal(d("10000.00")) {
		t.Errorf("subtotal = %s, want 10000.00", inv.Subtotal)
	}
	if !inv.Total.Equal(d("10750.00")) {
		t.Errorf("total = %s, want 10750.00", inv.Total)
	}
	if inv.Status != core.InvoiceDraft || inv.PaymentStatus != core.PaymentUnpaid {
		t.Errorf("status = %s/%s, want draft/unpaid", inv.Status, inv.PaymentStatus)
	}
	if len(inv.Items) != 1 || !inv.Items[0].Subtotal.Equal(d("10000.00")) {
		t.Errorf("unexpected items: %+v", inv.Items)
	}

	// Client aggregates moved
	var totalInvoiced, outstanding decimal.Decimal
	err = pool.QueryRow(ctx,
		"SELECT total_invoiced, outstanding_balance FROM clients WHERE id = 1",
	).Scan(&totalInvoiced, &outstanding)
	if err != nil {
		t.Fatalf("failed to read client aggregates: %v", err)
	}
	if !totalInvoiced.Equal(inv.Total) || !outstanding.Equal(inv.Total) {
		t.Errorf("client aggregates = %s/%s, want %s", totalInvoiced, outstanding, inv.Total)
	}
}

func TestInvoice_NumberingIsSequentialPerYear(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	due := time.Now().AddDate(0, 0, 30)
	first, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, due))
	if err != nil {
		t.Fatalf("CreateInvoice #1 failed: %v", err)
	}
	second, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(2, due))
	if err != nil {
		t.Fatalf("CreateInvoice #2 failed: %v", err)
	}

	year := time.Now().Year()
	wantFirst := core.FormatInvoiceNumber(year, 1)
	wantSecond := core.FormatInvoiceNumber(year, 2)
	if first.InvoiceNumber != wantFirst {
		t.Errorf("first invoice number = %s, want %s", first.InvoiceNumber, wantFirst)
	}
	if second.InvoiceNumber != wantSecond {
		t.Errorf("second invoice number = %s, want %s", second.InvoiceNumber, wantSecond)
	}
}

func TestInvoice_StatusTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	// draft → sent
	inv, err = svc.MarkAsSent(ctx, 1, inv.ID)
	if err != nil {
		t.Fatalf("MarkAsSent failed: %v", err)
	}
	if inv.Status != core.InvoiceSent || inv.SentAt == nil {
		t.Fatalf("after MarkAsSent: status=%s sentAt=%v", inv.Status, inv.SentAt)
	}

	// sending twice is rejected
	if _, err := svc.MarkAsSent(ctx, 1, inv.ID); err == nil {
		t.Error("expected error marking a sent invoice as sent again")
	}

	// sent → viewed
	inv, err = svc.MarkAsViewed(ctx, 1, inv.ID)
	if err != nil {
		t.Fatalf("MarkAsViewed failed: %v", err)
	}
	if inv.Status != core.InvoiceViewed || inv.ViewedAt == nil {
		t.Fatalf("after MarkAsViewed: status=%s viewedAt=%v", inv.Status, inv.ViewedAt)
	}
}

func TestInvoice_PaidInvoiceIsImmutable(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	// Pay it in full through the tx-scoped path the reconciler uses.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.AddPaymentTx(ctx, tx, inv.ID, inv.Total); err != nil {
		t.Fatalf("AddPaymentTx failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	paid, err := svc.GetInvoice(ctx, 1, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if paid.Status != core.InvoicePaid || paid.PaidDate == nil {
		t.Fatalf("after full payment: status=%s paidDate=%v", paid.Status, paid.PaidDate)
	}

	if _, err := svc.UpdateInvoice(ctx, 1, inv.ID, testInvoiceInput(1, time.Now().AddDate(0, 0, 60))); err == nil {
		t.Error("expected error updating a paid invoice")
	}
	if err := svc.DeleteInvoice(ctx, 1, inv.ID); err == nil {
		t.Error("expected error deleting a paid invoice")
	}
}

func clientAggregates(t *testing.T, pool *pgxpool.Pool, clientID int) (totalInvoiced, outstanding decimal.Decimal) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		"SELECT total_invoiced, outstanding_balance FROM clients WHERE id = $1", clientID,
	).Scan(&totalInvoiced, &outstanding)
	if err != nil {
		t.Fatalf("failed to read client aggregates: %v", err)
	}
	return totalInvoiced, outstanding
}

func TestInvoice_CancelReleasesClientBalance(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 5)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if _, err := svc.MarkAsSent(ctx, 1, inv.ID); err != nil {
		t.Fatalf("MarkAsSent failed: %v", err)
	}

	cancelled, err := svc.CancelInvoice(ctx, 1, inv.ID)
	if err != nil {
		t.Fatalf("CancelInvoice failed: %v", err)
	}
	if cancelled.Status != core.InvoiceCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// The client no longer owes the cancelled invoice.
	totalInvoiced, outstanding := clientAggregates(t, pool, 1)
	if !totalInvoiced.IsZero() || !outstanding.IsZero() {
		t.Errorf("client aggregates after cancel = %s/%s, want 0/0", totalInvoiced, outstanding)
	}

	// Cancelled is terminal: no edits, no second cancel.
	if _, err := svc.UpdateInvoice(ctx, 1, inv.ID, testInvoiceInput(1, time.Now().AddDate(0, 0, 60))); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected ErrConflict updating a cancelled invoice, got %v", err)
	}
	if _, err := svc.CancelInvoice(ctx, 1, inv.ID); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected ErrConflict cancelling twice, got %v", err)
	}

	// The overdue sweep leaves cancelled invoices alone even past their due date.
	if _, err := pool.Exec(ctx,
		"UPDATE invoices SET due_date = NOW() - INTERVAL '1 day' WHERE id = $1", inv.ID); err != nil {
		t.Fatalf("failed to backdate invoice: %v", err)
	}
	n, err := svc.MarkOverdueSweep(ctx)
	if err != nil {
		t.Fatalf("MarkOverdueSweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("sweep transitioned %d invoices, want 0", n)
	}
	swept, _ := svc.GetInvoice(ctx, 1, inv.ID)
	if swept.Status != core.InvoiceCancelled {
		t.Errorf("status after sweep = %s, want cancelled", swept.Status)
	}
}

func TestInvoice_PaidInvoiceCannotBeCancelled(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := svc.AddPaymentTx(ctx, tx, inv.ID, inv.Total); err != nil {
		t.Fatalf("AddPaymentTx failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := svc.CancelInvoice(ctx, 1, inv.ID); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected ErrConflict cancelling a paid invoice, got %v", err)
	}
}

func TestInvoice_ClientAggregatesFollowEdits(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	due := time.Now().AddDate(0, 0, 30)
	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, due))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	totalInvoiced, outstanding := clientAggregates(t, pool, 1)
	if !totalInvoiced.Equal(d("10750.00")) || !outstanding.Equal(d("10750.00")) {
		t.Fatalf("aggregates after create = %s/%s, want 10750/10750", totalInvoiced, outstanding)
	}

	// Halving the quantity moves the aggregates by the delta, not a re-add.
	smaller := testInvoiceInput(1, due)
	smaller.Items = []core.InvoiceItemInput{
		{Description: "Consulting", Quantity: d("2"), UnitPrice: d("2500.00")},
	}
	updated, err := svc.UpdateInvoice(ctx, 1, inv.ID, smaller)
	if err != nil {
		t.Fatalf("UpdateInvoice failed: %v", err)
	}
	if !updated.Total.Equal(d("5375.00")) {
		t.Fatalf("updated total = %s, want 5375.00", updated.Total)
	}
	totalInvoiced, outstanding = clientAggregates(t, pool, 1)
	if !totalInvoiced.Equal(d("5375.00")) || !outstanding.Equal(d("5375.00")) {
		t.Errorf("aggregates after update = %s/%s, want 5375/5375", totalInvoiced, outstanding)
	}

	// Deleting the invoice backs it out entirely.
	if err := svc.DeleteInvoice(ctx, 1, inv.ID); err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}
	totalInvoiced, outstanding = clientAggregates(t, pool, 1)
	if !totalInvoiced.IsZero() || !outstanding.IsZero() {
		t.Errorf("aggregates after delete = %s/%s, want 0/0", totalInvoiced, outstanding)
	}
}

func TestInvoice_OwnerScoping(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	if _, err := svc.GetInvoice(ctx, 2, inv.ID); err == nil {
		t.Error("expected not-found fetching another owner's invoice")
	}

	// Client 1 belongs to owner 1; owner 2 cannot invoice against it.
	if _, err := svc.CreateInvoice(ctx, 2, testInvoiceInput(1, time.Now().AddDate(0, 0, 30))); err == nil {
		t.Error("expected error invoicing another owner's client")
	}
}

func TestInvoice_OverdueSweep(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewInvoiceService(pool)

	inv, err := svc.CreateInvoice(ctx, 1, testInvoiceInput(1, time.Now().AddDate(0, 0, 5)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if _, err := svc.MarkAsSent(ctx, 1, inv.ID); err != nil {
		t.Fatalf("MarkAsSent failed: %v", err)
	}

	// Backdate the due date past now.
	if _, err := pool.Exec(ctx,
		"UPDATE invoices SET due_date = NOW() - INTERVAL '1 day' WHERE id = $1", inv.ID); err != nil {
		t.Fatalf("failed to backdate invoice: %v", err)
	}

	n, err := svc.MarkOverdueSweep(ctx)
	if err != nil {
		t.Fatalf("MarkOverdueSweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep transitioned %d invoices, want 1", n)
	}

	swept, err := svc.GetInvoice(ctx, 1, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice failed: %v", err)
	}
	if swept.Status != core.InvoiceOverdue {
		t.Errorf("status = %s, want overdue", swept.Status)
	}

	// Idempotent: the second pass finds nothing.
	n, err = svc.MarkOverdueSweep(ctx)
	if err != nil {
		t.Fatalf("second MarkOverdueSweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep transitioned %d invoices, want 0", n)
	}
}
