package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/energymarket/internal/provider"
)

func TestGenerator(t *testing.T) {
	t.Run("amounts stay inside the configured range", func(t *testing.T) {
		g := provider.NewGenerator(5000, 15000, 7)
		for i := 0; i < 1000; i++ {
			req := g.Next()
			assert.GreaterOrEqual(t, req.AmountKWh, 5000)
			assert.LessOrEqual(t, req.AmountKWh, 15000)
			assert.NotEmpty(t, req.RequestID)
		}
	})

	t.Run("request ids are unique", func(t *testing.T) {
		g := provider.NewGenerator(5000, 15000, 7)
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := g.Next().RequestID
			assert.False(t, seen[id], "duplicate request id %s", id)
			seen[id] = true
		}
	})
}
