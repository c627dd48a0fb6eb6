package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState literals are part of the wire contract.
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentCancelled  PaymentState = "cancelled"
	PaymentRefunded   PaymentState = "refunded"
)

// PaymentMethod identifies how a payment was made. Cash payments need no external
// verification and complete immediately on creation.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
	MethodGateway      PaymentMethod = "gateway"
)

// Payment records one inbound payment. A completed payment is a trigger, not just a
// record: completion propagates into the linked invoice, the client's running
// balance, and the linked subscription — exactly once per payment.
//
// Lifecycle: created pending; transitions to completed or failed once; only a
// completed payment may transition to refunded.
type Payment struct {
	ID             int             `json:"id"`
	OwnerID        int             `json:"owner_id"`
	InvoiceID      *int            `json:"invoice_id,omitempty"`
	ClientID       *int            `json:"client_id,omitempty"`
	SubscriptionID *int            `json:"subscription_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         PaymentMethod   `json:"method"`
	Gateway        *string         `json:"gateway,omitempty"`
	TransactionRef string          `json:"transactionRef"`
	ExternalRef    *string         `json:"externalRef,omitempty"`
	Status         PaymentState    `json:"status"`
	Fees           decimal.Decimal `json:"fees"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	FailureReason  *string         `json:"failureReason,omitempty"`
	Refund         *Refund         `json:"refund,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Refund holds the refund metadata recorded on a refunded payment.
type Refund struct {
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	ActorID    *int            `json:"refundedBy,omitempty"`
	RefundedAt time.Time       `json:"refundedAt"`
}

// PaymentInput holds the fields for creating a payment.
type PaymentInput struct {
	InvoiceID      *int            `json:"invoice_id,omitempty"`
	ClientID       *int            `json:"client_id,omitempty"`
	SubscriptionID *int            `json:"subscription_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         PaymentMethod   `json:"method"`
	Gateway        *string         `json:"gateway,omitempty"`
	Fees           decimal.Decimal `json:"fees"`
}

// GatewayCustomer carries the customer fields sent to the payment gateway when
// initializing a checkout. A closed set of named fields, not an open metadata bag.
type GatewayCustomer struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	RedirectURL string `json:"redirectUrl"`
}
