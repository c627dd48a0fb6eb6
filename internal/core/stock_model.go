package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatus literals persist as-is; clients branch on them.
type ItemStatus string

const (
	ItemActive       ItemStatus = "active"
	ItemOutOfStock   ItemStatus = "out_of_stock"
	ItemDiscontinued ItemStatus = "discontinued"
)

// MovementType classifies one stock movement. Sale and return carry side effects
// (sold stats, restock stamps); the rest are plain quantity changes.
type MovementType string

const (
	MovementPurchase   MovementType = "purchase"
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementAdjustment MovementType = "adjustment"
	MovementDamaged    MovementType = "damaged"
	MovementTransfer   MovementType = "transfer"
	MovementManual     MovementType = "manual"
)

// stockHistoryLimit bounds the per-item movement history: after any mutation only
// the most recent entries are retained. A deliberate bounded audit trail, not a
// full ledger.
const stockHistoryLimit = 10

// InventoryItem owns a non-negative quantity and a bounded movement history.
// Status is derived: a tracked item at quantity zero is out_of_stock and reverts
// to active once restocked; discontinued is sticky and only changed explicitly.
type InventoryItem struct {
	ID              int             `json:"id"`
	OwnerID         int             `json:"owner_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReorderPoint    decimal.Decimal `json:"reorderPoint"`
	ReorderQuantity decimal.Decimal `json:"reorderQuantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	RetailPrice     decimal.Decimal `json:"retailPrice"`
	Status          ItemStatus      `json:"status"`
	TrackQuantity   bool            `json:"trackQuantity"`
	LowStockAlert   bool            `json:"lowStockAlert"`
	TotalSold       decimal.Decimal `json:"totalSold"`
	LastRestockedAt *time.Time      `json:"lastRestockedDate,omitempty"`
	LastSoldAt      *time.Time      `json:"lastSoldDate,omitempty"`
	StockHistory    []StockMovement `json:"stockHistory"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// StockMovement is one recorded quantity change with a before/after snapshot.
// Quantity is signed: positive for additions, negative for reductions.
type StockMovement struct {
	ID               int             `json:"id"`
	ItemID           int             `json:"item_id"`
	Type             MovementType    `json:"type"`
	Quantity         decimal.Decimal `json:"quantity"`
	PreviousQuantity decimal.Decimal `json:"previousQuantity"`
	NewQuantity      decimal.Decimal `json:"newQuantity"`
	Reference        string          `json:"reference,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	ActorID          *int            `json:"user,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// InventoryItemInput holds the fields for creating an inventory item.
type InventoryItemInput struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReorderPoint    decimal.Decimal `json:"reorderPoint"`
	ReorderQuantity decimal.Decimal `json:"reorderQuantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	RetailPrice     decimal.Decimal `json:"retailPrice"`
	TrackQuantity   bool            `json:"trackQuantity"`
	LowStockAlert   bool            `json:"lowStockAlert"`
}

// NeedsReorder reports whether the item is below its reorder point: tracked,
// alert-enabled, quantity at or under the threshold, and not discontinued.
func (it *InventoryItem) NeedsReorder() bool {
	return it.TrackQuantity &&
		it.LowStockAlert &&
		it.Quantity.LessThanOrEqual(it.ReorderPoint) &&
		it.Status != ItemDiscontinued
}

// deriveItemStatus applies the quantity-driven status rule. Discontinued is never
// overridden here.
func deriveItemStatus(current ItemStatus, tracked bool, quantity decimal.Decimal) ItemStatus {
	if current == ItemDiscontinued {
		return current
	}
	if tracked && quantity.IsZero() {
		return ItemOutOfStock
	}
	if current == ItemOutOfStock && quantity.IsPositive() {
		return ItemActive
	}
	return current
}
