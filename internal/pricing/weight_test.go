package pricing

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"wallquote/backend/internal/domain"
)

func weightCatalog() []domain.Product {
	sleeper := product("p1", "Ashwood Sleeper 2400", "Sleepers", "79.00")
	sleeper.Weight = dec("64.5")
	post := product("p2", "Galv Steel H Post 1800", "Steel Posts & Hardware", "45.00")
	post.Weight = dec("19.2")
	noWeight := product("p3", "Kensington Sleeper", "Sleepers", "90.00")
	inactive := product("p4", "Blackwood Sleeper", "Sleepers", "95.00")
	inactive.Weight = dec("70")
	inactive.Active = false
	return []domain.Product{sleeper, post, noWeight, inactive}
}

func TestUnitWeightResolutionOrder(t *testing.T) {
	var logs bytes.Buffer
	e := NewWeightEstimator(weightCatalog(), slog.New(slog.NewTextHandler(&logs, nil)))

	tests := []struct {
		name       string
		query      WeightQuery
		wantKg     string
		wantSource string
	}{
		{name: "sku wins", query: WeightQuery{SKU: "SKU-p2", Name: "Ashwood Sleeper 2400"}, wantKg: "19.2", wantSource: WeightSourceSKU},
		{name: "exact name ignores case", query: WeightQuery{Name: "ASHWOOD sleeper 2400"}, wantKg: "64.5", wantSource: WeightSourceName},
		{name: "first word partial", query: WeightQuery{Name: "Galv Steel C Post - 2100"}, wantKg: "19.2", wantSource: WeightSourcePartialName},
		{name: "zero weight product falls through", query: WeightQuery{Name: "Kensington Sleeper", Thickness: "100mm"}, wantKg: "80", wantSource: WeightSourceFallback},
		{name: "inactive product falls through", query: WeightQuery{Name: "Blackwood"}, wantKg: "62", wantSource: WeightSourceFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.UnitWeight(tt.query)
			assert.Equal(t, tt.wantSource, got.Source)
			assert.True(t, dec(tt.wantKg).Equal(got.Kg), "kg %s", got.Kg)
		})
	}
	assert.Contains(t, logs.String(), "weight_fallback")
}

func TestUnitWeightFallbackTable(t *testing.T) {
	e := NewWeightEstimator(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tests := []struct {
		name      string
		thickness string
		want      int64
	}{
		{name: "Legacy Sleeper", thickness: "100mm", want: 80},
		{name: "Legacy Sleeper", thickness: "130", want: 130},
		{name: "Legacy Sleeper", thickness: "75mm", want: 60},
		{name: "Blackwood", thickness: "100", want: 82},
		{name: "Blackwood", want: 62},
		{name: "Cove", thickness: "100mm", want: 78},
		{name: "Cove", want: 58},
		{name: "Lonsdale", thickness: "100", want: 80},
		{name: "Lonsdale", want: 60},
		{name: "Kensington", want: 65},
		{name: "McLaren", thickness: "75", want: 85},
		{name: "DIY Panel", thickness: "100", want: 73},
		{name: "DIY Panel", want: 55},
		{name: "UFP 2380", want: 40},
		{name: "Old H Post", want: 20},
		{name: "Old Corner Post", want: 22},
		{name: "Old C Post", want: 16},
		{name: "Garden Step", want: 80},
		{name: "Wheel Stop", want: 45},
		{name: "Something Else", want: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.thickness, func(t *testing.T) {
			got := e.UnitWeight(WeightQuery{Name: tt.name, Thickness: tt.thickness})
			assert.Equal(t, WeightSourceFallback, got.Source)
			assert.Equal(t, tt.want, got.Kg.IntPart())
		})
	}
}

func TestTotalWeightMultipliesQuantity(t *testing.T) {
	e := NewWeightEstimator(weightCatalog(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	total := e.TotalWeight([]domain.OrderLine{
		{SKU: "SKU-p1", ProductName: "Ashwood Sleeper 2400", Quantity: 4},
		{ProductName: "Wheel Stop", Quantity: 2},
	})

	assert.True(t, dec("348").Equal(total), "total %s", total)
}
