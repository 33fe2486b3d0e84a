package pollution

import (
	"math/rand"
	"sync"
	"time"

	"github.com/terminal-bench/energymarket/shared/model"
)

const (
	sensorInterval = 100 * time.Millisecond

	// Simulated CO2 level: a baseline with bounded jitter.
	co2Baseline = 50.0
	co2Jitter   = 25.0
)

// Sensor produces a simulated CO2 reading into the buffer on a fixed cadence.
type Sensor struct {
	buffer *Buffer
	rng    *rand.Rand

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSensor builds a sensor writing into buffer.
func NewSensor(buffer *Buffer, seed int64) *Sensor {
	return &Sensor{
		buffer: buffer,
		rng:    rand.New(rand.NewSource(seed)),
		stop:   make(chan struct{}),
	}
}

// Start launches the measurement goroutine.
func (s *Sensor) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sensorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.buffer.Add(model.Measurement{
					Value:     co2Baseline + co2Jitter*s.rng.Float64(),
					Timestamp: time.Now(),
				})
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts measurement production.
func (s *Sensor) Stop() {
	close(s.stop)
	s.wg.Wait()
}
