package pricing

import (
	"strings"

	"github.com/samber/lo"

	"wallquote/backend/internal/domain"
)

var steelNameKeywords = []string{
	"galv steel", "galvanised steel", "i beam", "c channel",
	"ub65", "ub14", "120ub", "150ub", "channel", "beam",
	"galv", "steel post", "h post", "c post",
}

// IsSteelProduct decides which delivery table a product ships under.
func IsSteelProduct(p domain.Product) bool {
	if p.Category.Tag == domain.CategorySteel || p.Category.Matches("steel") {
		return true
	}
	name := strings.ToLower(p.Name)
	return lo.SomeBy(steelNameKeywords, func(kw string) bool {
		return strings.Contains(name, kw)
	})
}

// IsSteelOrder is true when any resolved line ships as steel.
func IsSteelOrder(products []domain.Product) bool {
	return lo.SomeBy(products, IsSteelProduct)
}
