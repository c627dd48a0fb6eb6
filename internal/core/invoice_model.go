package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus values are part of the wire contract: clients filter and branch on
// these literal strings, so they persist exactly as written here.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoiceViewed    InvoiceStatus = "viewed"
	InvoicePartial   InvoiceStatus = "partial"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// PaymentStatus tracks how much of an invoice's total has been settled.
type PaymentStatus string

const (
	PaymentUnpaid      PaymentStatus = "unpaid"
	PaymentPartiallyPd PaymentStatus = "partial"
	PaymentFullyPaid   PaymentStatus = "paid"
)

// DiscountType selects between a percentage-of-subtotal and a fixed-amount discount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Invoice is the invoice ledger's aggregate. Subtotal, TaxAmount, Total, AmountDue,
// PaymentStatus and (partly) Status are derived fields: Recompute re-derives them
// from the inputs before every persisted mutation, so they are never written
// independently of each other.
//
// State machine: draft → sent → viewed → {partial|paid};
// {sent,viewed,partial} → overdue (time-triggered on save); any pre-paid state →
// cancelled. paid is terminal for edits and deletes.
type Invoice struct {
	ID            int             `json:"id"`
	OwnerID       int             `json:"owner_id"`
	ClientID      int             `json:"client_id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Discount      decimal.Decimal `json:"discount"`
	DiscountType  DiscountType    `json:"discountType"`
	ShippingFee   decimal.Decimal `json:"shippingFee"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	AmountDue     decimal.Decimal `json:"amountDue"`
	Status        InvoiceStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	IssueDate     time.Time       `json:"issueDate"`
	DueDate       time.Time       `json:"dueDate"`
	PaidDate      *time.Time      `json:"paidDate,omitempty"`
	SentAt        *time.Time      `json:"sentAt,omitempty"`
	ViewedAt      *time.Time      `json:"viewedAt,omitempty"`
	Notes         string          `json:"notes"`
	Items         []InvoiceItem   `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// InvoiceItem is one line on an invoice, exclusively owned by it and
// cascade-deleted with it. Subtotal is derived from quantity, unit price and the
// per-item discount using the same discount rule as the invoice level.
type InvoiceItem struct {
	ID           int             `json:"id"`
	InvoiceID    int             `json:"invoice_id"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType DiscountType    `json:"discountType"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// InvoiceItemInput is used when creating or replacing invoice items.
type InvoiceItemInput struct {
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType DiscountType    `json:"discountType"`
}

// InvoiceInput holds the header-level fields for creating or updating an invoice.
type InvoiceInput struct {
	ClientID     int                `json:"client_id"`
	TaxRate      decimal.Decimal    `json:"taxRate"`
	Discount     decimal.Decimal    `json:"discount"`
	DiscountType DiscountType       `json:"discountType"`
	ShippingFee  decimal.Decimal    `json:"shippingFee"`
	DueDate      time.Time          `json:"dueDate"`
	Notes        string             `json:"notes"`
	Items        []InvoiceItemInput `json:"items"`
}
