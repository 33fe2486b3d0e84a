package election

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// PriceGenerator produces bid prices drawn uniformly from [min, max], rounded
// to two decimals. Safe for concurrent use.
type PriceGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	min float64
	max float64
}

// NewPriceGenerator builds a generator over the configured price bounds.
func NewPriceGenerator(min, max float64, seed int64) *PriceGenerator {
	return &PriceGenerator{
		rng: rand.New(rand.NewSource(seed)),
		min: min,
		max: max,
	}
}

// Price returns the next bid price.
func (g *PriceGenerator) Price() decimal.Decimal {
	g.mu.Lock()
	p := g.min + (g.max-g.min)*g.rng.Float64()
	g.mu.Unlock()
	return decimal.NewFromFloat(p).Round(2)
}
