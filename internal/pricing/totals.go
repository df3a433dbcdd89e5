package pricing

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"wallquote/backend/internal/domain"
)

// CalculateTotals is the single place order money fields are derived.
// Free shipping is expressed by zeroing delivery, so its discount amount is
// not also taken off the merchandise subtotal.
func CalculateTotals(lines []domain.OrderLine, discountAmount decimal.Decimal, discountType domain.DiscountType, zoneFee decimal.Decimal) domain.OrderTotals {
	subtotal := lo.Reduce(lines, func(acc decimal.Decimal, l domain.OrderLine, _ int) decimal.Decimal {
		return acc.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}, decimal.Zero)
	subtotal = Round2(subtotal)
	discountAmount = Round2(maxZero(discountAmount))

	delivery := Round2(maxZero(zoneFee))
	merchandiseDiscount := discountAmount
	if discountType == domain.DiscountFreeShipping {
		delivery = decimal.Zero
		merchandiseDiscount = decimal.Zero
	}

	taxable := subtotal.Sub(merchandiseDiscount).Add(delivery)
	tax := Round2(taxable.Mul(GSTRate))

	return domain.OrderTotals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		DeliveryCost:   delivery,
		TaxAmount:      tax,
		TotalAmount:    taxable.Add(tax),
	}
}

// ApplyTotals refreshes an order's line totals and monetary fields from its
// lines, stored discount and resolved zone fee. Calling it twice is a no-op.
func ApplyTotals(order *domain.Order) {
	for i := range order.Lines {
		order.Lines[i].LineTotal = Round2(order.Lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(order.Lines[i].Quantity))))
	}
	t := CalculateTotals(order.Lines, order.DiscountAmount, order.DiscountType, order.ZoneFee)
	order.Subtotal = t.Subtotal
	order.DiscountAmount = t.DiscountAmount
	order.DeliveryCost = t.DeliveryCost
	order.TaxAmount = t.TaxAmount
	order.TotalAmount = t.TotalAmount
}

// VerifyTotals re-derives the total formula and the discount ceiling and
// reports any mismatch as an invariant violation.
func VerifyTotals(t domain.OrderTotals, discountType domain.DiscountType, zoneFee decimal.Decimal) error {
	merchandiseDiscount := t.DiscountAmount
	ceiling := t.Subtotal
	if discountType == domain.DiscountFreeShipping {
		merchandiseDiscount = decimal.Zero
		ceiling = t.Subtotal.Add(maxZero(zoneFee))
		if !t.DeliveryCost.IsZero() {
			return fmt.Errorf("free shipping order has delivery cost %s", t.DeliveryCost)
		}
	}
	if t.DiscountAmount.GreaterThan(ceiling) {
		return fmt.Errorf("discount %s exceeds applicable ceiling %s", t.DiscountAmount, ceiling)
	}
	taxable := t.Subtotal.Sub(merchandiseDiscount).Add(t.DeliveryCost)
	if want := Round2(taxable.Mul(GSTRate)); !t.TaxAmount.Equal(want) {
		return fmt.Errorf("tax %s does not match %s", t.TaxAmount, want)
	}
	if want := taxable.Add(t.TaxAmount); !t.TotalAmount.Equal(want) {
		return fmt.Errorf("total %s does not match %s", t.TotalAmount, want)
	}
	return nil
}
