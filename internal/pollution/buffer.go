// Package pollution simulates a plant's CO2 sensor and turns its readings
// into sliding-window averages published periodically over the broker.
package pollution

import (
	"sync"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Buffer is an unbounded append-and-drain queue between the sensor and the
// aggregator.
type Buffer struct {
	mu           sync.Mutex
	measurements []model.Measurement
}

// NewBuffer builds an empty measurement buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends one measurement.
func (b *Buffer) Add(m model.Measurement) {
	b.mu.Lock()
	b.measurements = append(b.measurements, m)
	b.mu.Unlock()
}

// Drain atomically takes every buffered measurement, leaving the buffer
// empty. Each reading is returned exactly once.
func (b *Buffer) Drain() []model.Measurement {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.measurements) == 0 {
		return nil
	}
	out := b.measurements
	b.measurements = nil
	return out
}
