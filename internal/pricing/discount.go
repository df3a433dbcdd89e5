package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"wallquote/backend/internal/domain"
)

type Reason string

const (
	ReasonEmptyCode       Reason = "empty_code"
	ReasonEmptyCart       Reason = "empty_cart"
	ReasonUnknownCode     Reason = "unknown_code"
	ReasonInactive        Reason = "inactive"
	ReasonExpired         Reason = "expired"
	ReasonNotYetValid     Reason = "not_yet_valid"
	ReasonExhausted       Reason = "exhausted"
	ReasonCustomerLimit   Reason = "customer_limit"
	ReasonNoValidProducts Reason = "no_valid_products"
	ReasonMinimumOrder    Reason = "minimum_order"
	ReasonNotApplicable   Reason = "not_applicable"
)

// RejectionError carries the specific reason a code was refused. Its message
// is safe to show to customers.
type RejectionError struct {
	Reason  Reason
	Minimum decimal.Decimal
}

func Reject(reason Reason) *RejectionError {
	return &RejectionError{Reason: reason}
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonEmptyCode:
		return "Please enter a discount code"
	case ReasonEmptyCart:
		return "Your cart is empty"
	case ReasonUnknownCode:
		return "Invalid discount code"
	case ReasonInactive:
		return "This discount code is no longer active"
	case ReasonExpired:
		return "This discount code has expired"
	case ReasonNotYetValid:
		return "This discount code is not yet valid"
	case ReasonExhausted:
		return "This discount code has reached its usage limit"
	case ReasonCustomerLimit:
		return "You have already used this discount code"
	case ReasonNoValidProducts:
		return "No valid products found in cart"
	case ReasonMinimumOrder:
		return fmt.Sprintf("Minimum order amount of $%s required for this discount", e.Minimum.StringFixed(2))
	case ReasonNotApplicable:
		return "This discount is not applicable to items in your cart"
	default:
		return "Invalid discount code"
	}
}

type CodeStatus string

const (
	StatusActive      CodeStatus = "active"
	StatusInactive    CodeStatus = "inactive"
	StatusExpired     CodeStatus = "expired"
	StatusNotYetValid CodeStatus = "not_yet_valid"
	StatusExhausted   CodeStatus = "exhausted"
)

// Status derives the code's state at now. Nothing is stored; the validity
// window is [ValidFrom, ValidUntil).
func Status(code domain.DiscountCode, timesUsed int, now time.Time) CodeStatus {
	switch {
	case !code.Active:
		return StatusInactive
	case code.ValidUntil != nil && !now.Before(*code.ValidUntil):
		return StatusExpired
	case now.Before(code.ValidFrom):
		return StatusNotYetValid
	case code.MaxUses != nil && timesUsed >= *code.MaxUses:
		return StatusExhausted
	}
	return StatusActive
}

var statusReasons = map[CodeStatus]Reason{
	StatusInactive:    ReasonInactive,
	StatusExpired:     ReasonExpired,
	StatusNotYetValid: ReasonNotYetValid,
	StatusExhausted:   ReasonExhausted,
}

// NormalizeCode trims and upper-cases customer input.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Line is a cart line resolved against the catalog. Found is false when the
// product is missing or inactive; such lines contribute nothing.
type Line struct {
	Product   domain.Product
	Found     bool
	Quantity  int
	Thickness string
}

func (l Line) Total() decimal.Decimal {
	if !l.Found || l.Quantity < 1 {
		return decimal.Zero
	}
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ResolveLines joins cart lines with the catalog.
func ResolveLines(cart []domain.CartLine, catalog map[string]domain.Product) []Line {
	lines := make([]Line, 0, len(cart))
	for _, c := range cart {
		p, ok := catalog[c.ProductID]
		lines = append(lines, Line{
			Product:   p,
			Found:     ok && p.Active && c.Quantity > 0,
			Quantity:  c.Quantity,
			Thickness: c.Thickness,
		})
	}
	return lines
}

func FoundLines(lines []Line) []Line {
	return lo.Filter(lines, func(l Line, _ int) bool { return l.Found })
}

func SumLines(lines []Line) decimal.Decimal {
	return lo.Reduce(lines, func(acc decimal.Decimal, l Line, _ int) decimal.Decimal {
		return acc.Add(l.Total())
	}, decimal.Zero)
}

// Usage is the ledger view for one code: all redemptions and the current
// customer's redemptions.
type Usage struct {
	Total    int
	Customer int
}

type Evaluation struct {
	Amount          decimal.Decimal
	ApplicableTotal decimal.Decimal
	Subtotal        decimal.Decimal
	Type            domain.DiscountType
}

type DiscountEngine struct {
	now func() time.Time
}

func NewDiscountEngine(now func() time.Time) *DiscountEngine {
	if now == nil {
		now = time.Now
	}
	return &DiscountEngine{now: now}
}

// CheckValidity applies the global state check and the per-customer cap.
// An empty email skips the customer check.
func (e *DiscountEngine) CheckValidity(code domain.DiscountCode, usage Usage, customerEmail string) error {
	if status := Status(code, usage.Total, e.now()); status != StatusActive {
		return Reject(statusReasons[status])
	}
	if strings.TrimSpace(customerEmail) != "" && usage.Customer >= perCustomerLimit(code) {
		return Reject(ReasonCustomerLimit)
	}
	return nil
}

// Evaluate runs the full eligibility pipeline and returns the amount the code
// takes off. Every refusal is a *RejectionError.
func (e *DiscountEngine) Evaluate(code domain.DiscountCode, usage Usage, customerEmail string, lines []Line, deliveryCost decimal.Decimal) (Evaluation, error) {
	if len(lines) == 0 {
		return Evaluation{}, Reject(ReasonEmptyCart)
	}
	if err := e.CheckValidity(code, usage, customerEmail); err != nil {
		return Evaluation{}, err
	}

	found := FoundLines(lines)
	if len(found) == 0 {
		return Evaluation{}, Reject(ReasonNoValidProducts)
	}
	subtotal := SumLines(found)
	if code.MinimumOrderAmount.Valid && subtotal.LessThan(code.MinimumOrderAmount.Decimal) {
		return Evaluation{}, &RejectionError{Reason: ReasonMinimumOrder, Minimum: code.MinimumOrderAmount.Decimal}
	}

	amount, applicable := CalculateDiscount(code, found, deliveryCost)
	if !amount.IsPositive() {
		return Evaluation{}, Reject(ReasonNotApplicable)
	}
	return Evaluation{Amount: amount, ApplicableTotal: applicable, Subtotal: subtotal, Type: code.Type}, nil
}

// CalculateDiscount computes the amount for already validated lines. The
// applicable total is always re-summed from the lines.
func CalculateDiscount(code domain.DiscountCode, lines []Line, deliveryCost decimal.Decimal) (amount decimal.Decimal, applicable decimal.Decimal) {
	deliveryCost = maxZero(deliveryCost)

	include := lo.SliceToMap(code.ApplicableProducts, func(id string) (string, struct{}) { return id, struct{}{} })
	exclude := lo.SliceToMap(code.ExcludeProducts, func(id string) (string, struct{}) { return id, struct{}{} })

	applicable = decimal.Zero
	for _, line := range lines {
		if !line.Found {
			continue
		}
		if lineApplies(code, line.Product, include, exclude) {
			applicable = applicable.Add(line.Total())
		}
	}

	switch code.Type {
	case domain.DiscountPercentage:
		amount = applicable.Mul(code.Value).Div(hundred)
	case domain.DiscountFixedAmount:
		amount = decimal.Min(code.Value, applicable)
	case domain.DiscountFreeShipping:
		amount = deliveryCost
	default:
		amount = decimal.Zero
	}

	ceiling := applicable
	if code.Type == domain.DiscountFreeShipping {
		ceiling = ceiling.Add(deliveryCost)
	}
	amount = decimal.Min(maxZero(Round2(amount)), ceiling)
	return amount, applicable
}

func lineApplies(code domain.DiscountCode, p domain.Product, include map[string]struct{}, exclude map[string]struct{}) bool {
	if len(include) > 0 {
		if _, ok := include[p.ID]; !ok {
			return false
		}
	}
	if len(exclude) > 0 {
		if _, ok := exclude[p.ID]; ok {
			return false
		}
	}
	if len(code.ApplicableCategories) > 0 && !lo.SomeBy(code.ApplicableCategories, p.Category.Matches) {
		return false
	}
	if len(code.ExcludeCategories) > 0 && lo.SomeBy(code.ExcludeCategories, p.Category.Matches) {
		return false
	}
	return true
}

func perCustomerLimit(code domain.DiscountCode) int {
	if code.MaxUsesPerCustomer < 1 {
		return 1
	}
	return code.MaxUsesPerCustomer
}
