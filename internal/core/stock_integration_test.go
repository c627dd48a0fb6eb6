package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"backoffice/internal/core"
)

func seedItem(t *testing.T, svc core.StockService, quantity string) *core.InventoryItem {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), 1, core.InventoryItemInput{
		SKU:             "WID-001",
		Name:            "Widget",
		Quantity:        d(quantity),
		ReorderPoint:    d("5"),
		ReorderQuantity: d("20"),
		UnitCost:        d("3.50"),
		RetailPrice:     d("9.99"),
		TrackQuantity:   true,
		LowStockAlert:   true,
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	return item
}

func TestStock_AddAndReduce(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	item := seedItem(t, svc, "10")

	item, err := svc.AddStock(ctx, 1, item.ID, d("15"), core.MovementPurchase, "PO-77", "", nil)
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if !item.Quantity.Equal(d("25")) {
		t.Errorf("quantity after add = %s, want 25", item.Quantity)
	}
	if item.LastRestockedAt == nil {
		t.Error("purchase movement did not stamp lastRestockedDate")
	}

	item, err = svc.ReduceStock(ctx, 1, item.ID, d("5"), core.MovementSale, "INV-2025-0001", "", nil)
	if err != nil {
		t.Fatalf("ReduceStock failed: %v", err)
	}
	if !item.Quantity.Equal(d("20")) {
		t.Errorf("quantity after reduce = %s, want 20", item.Quantity)
	}
	if !item.TotalSold.Equal(d("5")) {
		t.Errorf("totalSold = %s, want 5", item.TotalSold)
	}
	if item.LastSoldAt == nil {
		t.Error("sale movement did not stamp lastSoldDate")
	}

	// Movement history is chronological with before/after snapshots.
	if len(item.StockHistory) != 2 {
		t.Fatalf("history has %d entries, want 2", len(item.StockHistory))
	}
	last := item.StockHistory[len(item.StockHistory)-1]
	if last.Type != core.MovementSale || !last.Quantity.Equal(d("-5")) {
		t.Errorf("last movement = %s %s, want sale -5", last.Type, last.Quantity)
	}
	if !last.PreviousQuantity.Equal(d("25")) || !last.NewQuantity.Equal(d("20")) {
		t.Errorf("snapshot = %s→%s, want 25→20", last.PreviousQuantity, last.NewQuantity)
	}
}

func TestStock_OversellIsRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	item := seedItem(t, svc, "3")

	_, err := svc.ReduceStock(ctx, 1, item.ID, d("10"), core.MovementSale, "", "", nil)
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The failed reduction left quantity and history untouched.
	after, err := svc.GetItem(ctx, 1, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !after.Quantity.Equal(d("3")) {
		t.Errorf("quantity = %s, want 3", after.Quantity)
	}
	if len(after.StockHistory) != 0 {
		t.Errorf("history has %d entries, want 0", len(after.StockHistory))
	}
}

func TestStock_StatusFollowsQuantity(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	item := seedItem(t, svc, "2")

	item, err := svc.ReduceStock(ctx, 1, item.ID, d("2"), core.MovementSale, "", "", nil)
	if err != nil {
		t.Fatalf("ReduceStock failed: %v", err)
	}
	if item.Status != core.ItemOutOfStock {
		t.Errorf("status at zero = %s, want out_of_stock", item.Status)
	}

	item, err = svc.AddStock(ctx, 1, item.ID, d("10"), core.MovementPurchase, "", "", nil)
	if err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if item.Status != core.ItemActive {
		t.Errorf("status after restock = %s, want active", item.Status)
	}
}

func TestStock_AdjustRecordsSignedDelta(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	item := seedItem(t, svc, "10")

	item, err := svc.AdjustStock(ctx, 1, item.ID, d("7"), "annual count", nil)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if !item.Quantity.Equal(d("7")) {
		t.Errorf("quantity = %s, want 7", item.Quantity)
	}
	last := item.StockHistory[len(item.StockHistory)-1]
	if last.Type != core.MovementAdjustment || !last.Quantity.Equal(d("-3")) {
		t.Errorf("adjustment movement = %s %s, want adjustment -3", last.Type, last.Quantity)
	}

	if _, err := svc.AdjustStock(ctx, 1, item.ID, d("-1"), "", nil); err == nil {
		t.Error("expected error adjusting to a negative quantity")
	}
}

func TestStock_HistoryIsBounded(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	item := seedItem(t, svc, "0")

	for i := 0; i < 14; i++ {
		if _, err := svc.AddStock(ctx, 1, item.ID, d("1"), core.MovementManual,
			fmt.Sprintf("batch-%d", i), "", nil); err != nil {
			t.Fatalf("AddStock #%d failed: %v", i, err)
		}
	}

	after, err := svc.GetItem(ctx, 1, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(after.StockHistory) != 10 {
		t.Fatalf("history has %d entries, want 10", len(after.StockHistory))
	}
	// The oldest retained entry is movement #5 (movements 0..4 were trimmed).
	if after.StockHistory[0].Reference != "batch-4" {
		t.Errorf("oldest retained reference = %s, want batch-4", after.StockHistory[0].Reference)
	}
	if after.StockHistory[9].Reference != "batch-13" {
		t.Errorf("newest reference = %s, want batch-13", after.StockHistory[9].Reference)
	}
}

func TestStock_ReorderCandidates(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	svc := core.NewStockService(pool)

	low, err := svc.CreateItem(ctx, 1, core.InventoryItemInput{
		SKU: "LOW-001", Name: "Low item", Quantity: d("2"),
		ReorderPoint: d("5"), TrackQuantity: true, LowStockAlert: true,
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := svc.CreateItem(ctx, 1, core.InventoryItemInput{
		SKU: "OK-001", Name: "Healthy item", Quantity: d("50"),
		ReorderPoint: d("5"), TrackQuantity: true, LowStockAlert: true,
	}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	candidates, err := svc.ListReorderCandidates(ctx, 1)
	if err != nil {
		t.Fatalf("ListReorderCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != low.ID {
		t.Errorf("candidates = %+v, want just %d", candidates, low.ID)
	}
}
