package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// discountAmount applies a discount to a base amount: a fixed discount is taken
// as-is, a percentage discount is base × discount/100. Unknown types discount nothing.
func discountAmount(base, discount decimal.Decimal, discountType DiscountType) decimal.Decimal {
	switch discountType {
	case DiscountFixed:
		return discount
	case DiscountPercentage:
		return base.Mul(discount).Div(oneHundred)
	}
	return decimal.Zero
}

// ItemSubtotal computes one line's subtotal: quantity × unitPrice less the
// per-item discount, floored at zero.
func ItemSubtotal(quantity, unitPrice, discount decimal.Decimal, discountType DiscountType) decimal.Decimal {
	gross := quantity.Mul(unitPrice)
	sub := gross.Sub(discountAmount(gross, discount, discountType))
	if sub.IsNegative() {
		return decimal.Zero
	}
	return sub
}

// Recompute re-derives every derived monetary and status field from the invoice's
// inputs. It must run before every persisted mutation so that the invariants
//
//	total     = max(0, subtotal + taxAmount + shippingFee − discountAmount)
//	amountDue = max(0, total − amountPaid)
//
// hold at every observed state. PaymentStatus and Status follow amountPaid vs
// total; paidDate is stamped once on the first transition to paid; an unpaid,
// non-cancelled invoice past its due date is forced to overdue.
func (inv *Invoice) Recompute(now time.Time) {
	inv.Subtotal = decimal.Zero
	for i := range inv.Items {
		inv.Items[i].Subtotal = ItemSubtotal(
			inv.Items[i].Quantity, inv.Items[i].UnitPrice,
			inv.Items[i].Discount, inv.Items[i].DiscountType,
		)
		inv.Subtotal = inv.Subtotal.Add(inv.Items[i].Subtotal)
	}

	inv.TaxAmount = inv.Subtotal.Mul(inv.TaxRate).Div(oneHundred)

	total := inv.Subtotal.
		Add(inv.TaxAmount).
		Add(inv.ShippingFee).
		Sub(discountAmount(inv.Subtotal, inv.Discount, inv.DiscountType))
	if total.IsNegative() {
		total = decimal.Zero
	}
	inv.Total = total

	due := inv.Total.Sub(inv.AmountPaid)
	if due.IsNegative() {
		due = decimal.Zero
	}
	inv.AmountDue = due

	switch {
	case inv.AmountPaid.IsZero():
		inv.PaymentStatus = PaymentUnpaid
	case inv.AmountPaid.GreaterThanOrEqual(inv.Total):
		inv.PaymentStatus = PaymentFullyPaid
	default:
		inv.PaymentStatus = PaymentPartiallyPd
	}

	// Cancellation freezes the lifecycle status; the monetary fields above stay
	// derived so the record remains internally consistent.
	if inv.Status == InvoiceCancelled {
		return
	}

	switch inv.PaymentStatus {
	case PaymentFullyPaid:
		inv.Status = InvoicePaid
		if inv.PaidDate == nil {
			paid := now
			inv.PaidDate = &paid
		}
	case PaymentPartiallyPd:
		inv.Status = InvoicePartial
	}

	// Unpaid amountPaid with a prior partial/paid status can only happen after a
	// full refund: fall back to sent so the invoice is collectible again.
	if inv.PaymentStatus == PaymentUnpaid && (inv.Status == InvoicePartial || inv.Status == InvoicePaid) {
		inv.Status = InvoiceSent
		inv.PaidDate = nil
	}

	if inv.Status != InvoicePaid && inv.DueDate.Before(now) {
		inv.Status = InvoiceOverdue
	}
}
