package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"wallquote/backend/internal/domain"
)

var testNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func product(id string, name string, category string, price string) domain.Product {
	return domain.Product{
		ID:       id,
		SKU:      "SKU-" + id,
		Name:     name,
		Category: domain.ResolveCategory(category),
		Price:    dec(price),
		Active:   true,
	}
}

// threeHundredCart is three $100 lines.
func threeHundredCart() []Line {
	return []Line{
		{Product: product("p1", "Ashwood Sleeper 2400", "Concrete Sleepers - Silvercrete", "100.00"), Found: true, Quantity: 1},
		{Product: product("p2", "Galv Steel H Post 1800", "Steel Posts & Hardware", "100.00"), Found: true, Quantity: 1},
		{Product: product("p3", "Concrete Step 1200", "Steps", "100.00"), Found: true, Quantity: 1},
	}
}

func code(t domain.DiscountType, value string) domain.DiscountCode {
	return domain.DiscountCode{
		ID:                 "dc-1",
		Code:               "SAVE20",
		Type:               t,
		Value:              dec(value),
		MaxUsesPerCustomer: 1,
		ValidFrom:          testNow.Add(-24 * time.Hour),
		Active:             true,
	}
}

func intPtr(v int) *int { return &v }

func toOrderLines(lines []Line) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		if !l.Found {
			continue
		}
		out = append(out, domain.OrderLine{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			UnitPrice:   l.Product.Price,
			Quantity:    l.Quantity,
		})
	}
	return out
}
