package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService owns per-item quantity and the bounded movement history. Quantity
// never goes negative: reductions use an atomic conditional decrement so that
// concurrent sales cannot jointly over-sell a single item.
type StockService interface {
	CreateItem(ctx context.Context, ownerID int, in InventoryItemInput) (*InventoryItem, error)
	GetItem(ctx context.Context, ownerID, itemID int) (*InventoryItem, error)
	ListItems(ctx context.Context, ownerID int) ([]InventoryItem, error)
	// ListReorderCandidates returns tracked, alert-enabled items at or under their
	// reorder point.
	ListReorderCandidates(ctx context.Context, ownerID int) ([]InventoryItem, error)

	// AddStock increases quantity and appends a movement with a before/after
	// snapshot. A purchase movement stamps lastRestockedDate.
	AddStock(ctx context.Context, ownerID, itemID int, qty decimal.Decimal, movementType MovementType, reference, notes string, actorID *int) (*InventoryItem, error)
	// ReduceStock decreases quantity, failing with ErrInsufficientStock when qty
	// exceeds the on-hand amount — quantity and history are left untouched. A sale
	// movement increments totalSold and stamps lastSoldDate.
	ReduceStock(ctx context.Context, ownerID, itemID int, qty decimal.Decimal, movementType MovementType, reference, notes string, actorID *int) (*InventoryItem, error)
	// AdjustStock sets the quantity directly (a correction) and records the signed
	// delta as an adjustment movement.
	AdjustStock(ctx context.Context, ownerID, itemID int, newQuantity decimal.Decimal, notes string, actorID *int) (*InventoryItem, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) CreateItem(ctx context.Context, ownerID int, in InventoryItemInput) (*InventoryItem, error) {
	if in.SKU == "" || in.Name == "" {
		return nil, Validationf("item sku and name are required")
	}
	if in.Quantity.IsNegative() {
		return nil, Validationf("initial quantity cannot be negative, got %s", in.Quantity)
	}

	status := deriveItemStatus(ItemActive, in.TrackQuantity, in.Quantity)
	var itemID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inventory_items (owner_id, sku, name, quantity, reorder_point, reorder_quantity,
		                             unit_cost, retail_price, status, track_quantity, low_stock_alert)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, ownerID, in.SKU, in.Name, in.Quantity, in.ReorderPoint, in.ReorderQuantity,
		in.UnitCost, in.RetailPrice, string(status), in.TrackQuantity, in.LowStockAlert,
	).Scan(&itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inventory item: %w", err)
	}
	return s.GetItem(ctx, ownerID, itemID)
}

const itemColumns = `
	id, owner_id, sku, name, quantity, reorder_point, reorder_quantity,
	unit_cost, retail_price, status, track_quantity, low_stock_alert,
	total_sold, last_restocked_at, last_sold_at, created_at, updated_at`

func scanItem(row pgx.Row, it *InventoryItem) error {
	return row.Scan(
		&it.ID, &it.OwnerID, &it.SKU, &it.Name, &it.Quantity, &it.ReorderPoint, &it.ReorderQuantity,
		&it.UnitCost, &it.RetailPrice, &it.Status, &it.TrackQuantity, &it.LowStockAlert,
		&it.TotalSold, &it.LastRestockedAt, &it.LastSoldAt, &it.CreatedAt, &it.UpdatedAt,
	)
}

func (s *stockService) GetItem(ctx context.Context, ownerID, itemID int) (*InventoryItem, error) {
	var it InventoryItem
	err := scanItem(s.pool.QueryRow(ctx,
		"SELECT"+itemColumns+" FROM inventory_items WHERE id = $1 AND owner_id = $2",
		itemID, ownerID), &it)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("inventory item %d not found for owner %d", itemID, ownerID)
		}
		return nil, fmt.Errorf("failed to fetch inventory item %d: %w", itemID, err)
	}

	// History is chronological, most recent last.
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_id, type, quantity, previous_quantity, new_quantity, reference, notes, actor_id, created_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &m.PreviousQuantity, &m.NewQuantity,
			&m.Reference, &m.Notes, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		it.StockHistory = append(it.StockHistory, m)
	}
	return &it, nil
}

func (s *stockService) ListItems(ctx context.Context, ownerID int) ([]InventoryItem, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+itemColumns+" FROM inventory_items WHERE owner_id = $1 ORDER BY sku", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory items: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *stockService) ListReorderCandidates(ctx context.Context, ownerID int) ([]InventoryItem, error) {
	items, err := s.ListItems(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var low []InventoryItem
	for _, it := range items {
		if it.NeedsReorder() {
			low = append(low, it)
		}
	}
	return low, nil
}

func (s *stockService) AddStock(ctx context.Context, ownerID, itemID int, qty decimal.Decimal, movementType MovementType, reference, notes string, actorID *int) (*InventoryItem, error) {
	if qty.IsNegative() || qty.IsZero() {
		return nil, Validationf("add quantity must be positive, got %s", qty)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var newQty decimal.Decimal
	var tracked bool
	var status ItemStatus
	err = tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity = quantity + $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
		RETURNING quantity, track_quantity, status
	`, qty, itemID, ownerID).Scan(&newQty, &tracked, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("inventory item %d not found for owner %d", itemID, ownerID)
		}
		return nil, fmt.Errorf("failed to add stock: %w", err)
	}
	prevQty := newQty.Sub(qty)

	derived := deriveItemStatus(status, tracked, newQty)
	if movementType == MovementPurchase {
		_, err = tx.Exec(ctx,
			"UPDATE inventory_items SET status = $1, last_restocked_at = NOW() WHERE id = $2",
			string(derived), itemID)
	} else if derived != status {
		_, err = tx.Exec(ctx,
			"UPDATE inventory_items SET status = $1 WHERE id = $2", string(derived), itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}

	if err := appendMovementTx(ctx, tx, itemID, movementType, qty, prevQty, newQty, reference, notes, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock addition: %w", err)
	}
	return s.GetItem(ctx, ownerID, itemID)
}

func (s *stockService) ReduceStock(ctx context.Context, ownerID, itemID int, qty decimal.Decimal, movementType MovementType, reference, notes string, actorID *int) (*InventoryItem, error) {
	if qty.IsNegative() || qty.IsZero() {
		return nil, Validationf("reduce quantity must be positive, got %s", qty)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Conditional decrement: the quantity guard and the write are one statement, so
	// two concurrent sales cannot both pass a stale sufficient-stock check.
	var newQty decimal.Decimal
	var tracked bool
	var status ItemStatus
	err = tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3 AND quantity >= $1
		RETURNING quantity, track_quantity, status
	`, qty, itemID, ownerID).Scan(&newQty, &tracked, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing item from insufficient stock.
			var current decimal.Decimal
			lookupErr := tx.QueryRow(ctx,
				"SELECT quantity FROM inventory_items WHERE id = $1 AND owner_id = $2",
				itemID, ownerID).Scan(&current)
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return nil, NotFoundf("inventory item %d not found for owner %d", itemID, ownerID)
			}
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to fetch inventory item %d: %w", itemID, lookupErr)
			}
			return nil, fmt.Errorf("cannot reduce item %d by %s: only %s in stock: %w",
				itemID, qty, current, ErrInsufficientStock)
		}
		return nil, fmt.Errorf("failed to reduce stock: %w", err)
	}
	prevQty := newQty.Add(qty)

	derived := deriveItemStatus(status, tracked, newQty)
	if movementType == MovementSale {
		_, err = tx.Exec(ctx, `
			UPDATE inventory_items
			SET status = $1, total_sold = total_sold + $2, last_sold_at = NOW()
			WHERE id = $3
		`, string(derived), qty, itemID)
	} else if derived != status {
		_, err = tx.Exec(ctx,
			"UPDATE inventory_items SET status = $1 WHERE id = $2", string(derived), itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}

	if err := appendMovementTx(ctx, tx, itemID, movementType, qty.Neg(), prevQty, newQty, reference, notes, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock reduction: %w", err)
	}
	return s.GetItem(ctx, ownerID, itemID)
}

func (s *stockService) AdjustStock(ctx context.Context, ownerID, itemID int, newQuantity decimal.Decimal, notes string, actorID *int) (*InventoryItem, error) {
	if newQuantity.IsNegative() {
		return nil, Validationf("adjusted quantity cannot be negative, got %s", newQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevQty decimal.Decimal
	var tracked bool
	var status ItemStatus
	err = tx.QueryRow(ctx, `
		SELECT quantity, track_quantity, status FROM inventory_items
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, itemID, ownerID).Scan(&prevQty, &tracked, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("inventory item %d not found for owner %d", itemID, ownerID)
		}
		return nil, fmt.Errorf("failed to lock inventory item %d: %w", itemID, err)
	}

	derived := deriveItemStatus(status, tracked, newQuantity)
	_, err = tx.Exec(ctx, `
		UPDATE inventory_items SET quantity = $1, status = $2, updated_at = NOW() WHERE id = $3
	`, newQuantity, string(derived), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	delta := newQuantity.Sub(prevQty)
	if err := appendMovementTx(ctx, tx, itemID, MovementAdjustment, delta, prevQty, newQuantity, "", notes, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}
	return s.GetItem(ctx, ownerID, itemID)
}

// appendMovementTx inserts one movement and trims the item's history to the
// retention limit, dropping the oldest entries.
func appendMovementTx(ctx context.Context, tx pgx.Tx, itemID int, movementType MovementType,
	qty, prevQty, newQty decimal.Decimal, reference, notes string, actorID *int) error {

	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, type, quantity, previous_quantity, new_quantity, reference, notes, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, itemID, string(movementType), qty, prevQty, newQty, reference, notes, actorID)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM stock_movements
		WHERE item_id = $1
		  AND id NOT IN (
			SELECT id FROM stock_movements
			WHERE item_id = $1
			ORDER BY id DESC
			LIMIT $2
		  )
	`, itemID, stockHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to trim stock history: %w", err)
	}
	return nil
}
