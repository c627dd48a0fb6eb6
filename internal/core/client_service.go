package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientService manages the billing clients invoices and payments link to.
type ClientService interface {
	CreateClient(ctx context.Context, ownerID int, in ClientInput) (*Client, error)
	GetClient(ctx context.Context, ownerID, clientID int) (*Client, error)
	ListClients(ctx context.Context, ownerID int) ([]Client, error)
	UpdateClient(ctx context.Context, ownerID, clientID int, in ClientInput) (*Client, error)
}

// ClientInput holds the caller-editable client fields. The aggregate totals are
// maintained by the invoice ledger and payment reconciler, never set directly.
type ClientInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type clientService struct {
	pool *pgxpool.Pool
}

// NewClientService constructs a ClientService backed by PostgreSQL.
func NewClientService(pool *pgxpool.Pool) ClientService {
	return &clientService{pool: pool}
}

const clientColumns = `
	id, owner_id, name, email, phone, address,
	total_invoiced, total_paid, outstanding_balance, last_payment_date, created_at`

func scanClient(row pgx.Row, c *Client) error {
	return row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.TotalInvoiced, &c.TotalPaid, &c.OutstandingBalance, &c.LastPaymentDate, &c.CreatedAt,
	)
}

func (s *clientService) CreateClient(ctx context.Context, ownerID int, in ClientInput) (*Client, error) {
	if in.Name == "" {
		return nil, Validationf("client name is required")
	}

	var clientID int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (owner_id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, ownerID, in.Name, in.Email, in.Phone, in.Address).Scan(&clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}
	return s.GetClient(ctx, ownerID, clientID)
}

func (s *clientService) GetClient(ctx context.Context, ownerID, clientID int) (*Client, error) {
	var c Client
	err := scanClient(s.pool.QueryRow(ctx,
		"SELECT"+clientColumns+" FROM clients WHERE id = $1 AND owner_id = $2",
		clientID, ownerID), &c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFoundf("client %d not found for owner %d", clientID, ownerID)
		}
		return nil, fmt.Errorf("failed to fetch client %d: %w", clientID, err)
	}
	return &c, nil
}

func (s *clientService) ListClients(ctx context.Context, ownerID int) ([]Client, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+clientColumns+" FROM clients WHERE owner_id = $1 ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := scanClient(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func (s *clientService) UpdateClient(ctx context.Context, ownerID, clientID int, in ClientInput) (*Client, error) {
	if in.Name == "" {
		return nil, Validationf("client name is required")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE clients SET name = $1, email = $2, phone = $3, address = $4
		WHERE id = $5 AND owner_id = $6
	`, in.Name, in.Email, in.Phone, in.Address, clientID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update client %d: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, NotFoundf("client %d not found for owner %d", clientID, ownerID)
	}
	return s.GetClient(ctx, ownerID, clientID)
}
