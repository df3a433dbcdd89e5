package pricing

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/metrics"
)

const (
	WeightSourceSKU         = "sku"
	WeightSourceName        = "name"
	WeightSourcePartialName = "partial_name"
	WeightSourceFallback    = "fallback"
)

type WeightQuery struct {
	SKU       string
	Name      string
	Thickness string
}

type WeightResult struct {
	Kg     decimal.Decimal
	Source string
	Rule   string
}

type fallbackRule struct {
	name    string
	matches func(name string) bool
	kg      func(name string, thickness string) int64
}

func containsAny(words ...string) func(string) bool {
	return func(name string) bool {
		return lo.SomeBy(words, func(w string) bool { return strings.Contains(name, w) })
	}
}

func byThickness(weights map[string]int64, otherwise int64) func(string, string) int64 {
	return func(_ string, thickness string) int64 {
		if kg, ok := weights[thickness]; ok {
			return kg
		}
		return otherwise
	}
}

func flat(kg int64) func(string, string) int64 {
	return func(string, string) int64 { return kg }
}

// fallbackWeights covers legacy cart entries that no longer exist in the
// catalog. Rules are evaluated top to bottom.
var fallbackWeights = []fallbackRule{
	{name: "sleeper", matches: containsAny("ashwood", "sleeper"), kg: byThickness(map[string]int64{"100": 80, "130": 130}, 60)},
	{name: "blackwood", matches: containsAny("blackwood"), kg: byThickness(map[string]int64{"100": 82}, 62)},
	{name: "cove", matches: containsAny("cove"), kg: byThickness(map[string]int64{"100": 78}, 58)},
	{name: "lonsdale", matches: containsAny("lonsdale"), kg: byThickness(map[string]int64{"100": 80}, 60)},
	{name: "kensington", matches: containsAny("kensington"), kg: byThickness(map[string]int64{"100": 85}, 65)},
	{name: "mclaren", matches: containsAny("mclaren"), kg: flat(85)},
	{name: "diy", matches: containsAny("diy"), kg: byThickness(map[string]int64{"100": 73}, 55)},
	{name: "ufp", matches: containsAny("ufp"), kg: flat(40)},
	{name: "post", matches: containsAny("post"), kg: func(name string, _ string) int64 {
		switch {
		case strings.Contains(name, "h post"):
			return 20
		case strings.Contains(name, "corner"):
			return 22
		default:
			return 16
		}
	}},
	{name: "step", matches: containsAny("step"), kg: flat(80)},
	{name: "wheel", matches: containsAny("wheel"), kg: flat(45)},
}

const defaultFallbackKg = 60

// WeightEstimator resolves unit weights from a catalog snapshot, falling back
// to a keyword table. Products without a positive catalog weight are ignored.
type WeightEstimator struct {
	bySKU   map[string]domain.Product
	byName  map[string]domain.Product
	ordered []domain.Product
	logger  *slog.Logger
}

func NewWeightEstimator(catalog []domain.Product, logger *slog.Logger) *WeightEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &WeightEstimator{
		bySKU:  make(map[string]domain.Product),
		byName: make(map[string]domain.Product),
		logger: logger,
	}
	for _, p := range catalog {
		if !p.Active || !p.Weight.IsPositive() {
			continue
		}
		if p.SKU != "" {
			if _, seen := e.bySKU[p.SKU]; !seen {
				e.bySKU[p.SKU] = p
			}
		}
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, seen := e.byName[key]; !seen {
			e.byName[key] = p
		}
		e.ordered = append(e.ordered, p)
	}
	sort.SliceStable(e.ordered, func(i, j int) bool {
		return e.ordered[i].Name < e.ordered[j].Name
	})
	return e
}

func (e *WeightEstimator) UnitWeight(q WeightQuery) WeightResult {
	if sku := strings.TrimSpace(q.SKU); sku != "" {
		if p, ok := e.bySKU[sku]; ok {
			return WeightResult{Kg: p.Weight, Source: WeightSourceSKU}
		}
	}

	name := strings.ToLower(strings.TrimSpace(q.Name))
	if name != "" {
		if p, ok := e.byName[name]; ok {
			return WeightResult{Kg: p.Weight, Source: WeightSourceName}
		}
		first := strings.Fields(name)[0]
		for _, p := range e.ordered {
			if strings.Contains(strings.ToLower(p.Name), first) {
				return WeightResult{Kg: p.Weight, Source: WeightSourcePartialName}
			}
		}
	}

	thickness := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(q.Thickness), "mm", ""))
	rule, kg := "default", int64(defaultFallbackKg)
	for _, r := range fallbackWeights {
		if r.matches(name) {
			rule, kg = r.name, r.kg(name, thickness)
			break
		}
	}

	e.logger.Warn("weight_fallback", "sku", q.SKU, "name", q.Name, "thickness", q.Thickness, "rule", rule, "kg", kg)
	metrics.WeightFallbacks.WithLabelValues(rule).Inc()
	return WeightResult{Kg: decimal.NewFromInt(kg), Source: WeightSourceFallback, Rule: rule}
}

// TotalWeight sums unit weight times quantity over order lines.
func (e *WeightEstimator) TotalWeight(lines []domain.OrderLine) decimal.Decimal {
	return lo.Reduce(lines, func(acc decimal.Decimal, line domain.OrderLine, _ int) decimal.Decimal {
		w := e.UnitWeight(WeightQuery{SKU: line.SKU, Name: line.ProductName, Thickness: line.Thickness})
		return acc.Add(w.Kg.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}, decimal.Zero)
}
