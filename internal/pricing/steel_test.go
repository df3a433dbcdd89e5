package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wallquote/backend/internal/domain"
)

func TestIsSteelProduct(t *testing.T) {
	tests := []struct {
		name     string
		product  domain.Product
		expected bool
	}{
		{name: "steel category", product: product("a", "Post 2400", "Steel Posts & Hardware", "10"), expected: true},
		{name: "universal beam by name", product: product("b", "150UB Universal Beam", "General", "10"), expected: true},
		{name: "galv in name", product: product("c", "Galv Bracket", "Accessories", "10"), expected: true},
		{name: "concrete sleeper", product: product("d", "Ashwood Sleeper", "Concrete Sleepers", "10"), expected: false},
		{name: "plinth", product: product("e", "UFP 2380", "Under Fence Plinths", "10"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSteelProduct(tt.product))
		})
	}
}

func TestIsSteelOrderWhenAnyLineIsSteel(t *testing.T) {
	sleeper := product("d", "Ashwood Sleeper", "Concrete Sleepers", "10")
	post := product("a", "H Post 2400", "Posts", "10")

	assert.False(t, IsSteelOrder([]domain.Product{sleeper}))
	assert.True(t, IsSteelOrder([]domain.Product{sleeper, post}))
	assert.False(t, IsSteelOrder(nil))
}
