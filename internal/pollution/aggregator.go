package pollution

import (
	"sync"
	"time"

	"github.com/terminal-bench/energymarket/shared/model"
)

const (
	// windowSize and discardCount define the sliding window: an average per
	// full window, then the oldest half is dropped so consecutive windows
	// overlap by 50%.
	windowSize   = 8
	discardCount = 4

	drainInterval = 100 * time.Millisecond
)

// Aggregator drains the measurement buffer into a sliding window and keeps an
// ordered list of computed averages until the publisher collects them.
type Aggregator struct {
	buffer *Buffer

	mu       sync.Mutex
	window   []model.Measurement
	averages []float64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator builds an aggregator over buffer.
func NewAggregator(buffer *Buffer) *Aggregator {
	return &Aggregator{
		buffer: buffer,
		stop:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(drainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Ingest(a.buffer.Drain())
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the drain loop.
func (a *Aggregator) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// Ingest appends measurements to the window and computes an average for every
// full window, discarding the oldest half each time. The result is identical
// whether measurements arrive one at a time or in bursts.
func (a *Aggregator) Ingest(ms []model.Measurement) {
	if len(ms) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, ms...)
	for len(a.window) >= windowSize {
		var sum float64
		for _, m := range a.window[:windowSize] {
			sum += m.Value
		}
		a.averages = append(a.averages, sum/windowSize)
		a.window = a.window[discardCount:]
	}
}

// GetAndClear atomically takes the computed averages in the order they were
// produced, leaving the output list empty.
func (a *Aggregator) GetAndClear() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.averages) == 0 {
		return nil
	}
	out := a.averages
	a.averages = nil
	return out
}

// WindowLen reports how many measurements currently sit in the window.
func (a *Aggregator) WindowLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.window)
}
