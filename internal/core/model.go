package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Client represents a billing client owned by one user. The aggregate totals are
// derived state maintained by the payment reconciler: TotalPaid and LastPaymentDate
// move only when a linked payment completes.
type Client struct {
	ID                 int             `json:"id"`
	OwnerID            int             `json:"owner_id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	Phone              string          `json:"phone"`
	Address            string          `json:"address"`
	TotalInvoiced      decimal.Decimal `json:"totalInvoiced"`
	TotalPaid          decimal.Decimal `json:"totalPaid"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	LastPaymentDate    *time.Time      `json:"lastPaymentDate,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}
