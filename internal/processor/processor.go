// Package processor owns a plant's busy/idle state, the pending-request
// queue, and the simulated energy production that fulfills a won request.
package processor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Elections is the election-manager surface the processor drives.
type Elections interface {
	StartElection(req model.EnergyRequest)
	StartElectionForDequeued(req model.EnergyRequest)
	RegisterPassive(req model.EnergyRequest)
}

// Processor serializes request handling for one plant: at most one production
// runs at a time, everything else waits in a FIFO queue.
type Processor struct {
	log zerolog.Logger

	// productionTimePerKWh converts a request's kWh into simulated production
	// time. One millisecond per kWh by default.
	productionTimePerKWh time.Duration

	busyMu           sync.Mutex
	busy             bool
	currentRequestID string

	queueMu sync.Mutex
	pending []model.EnergyRequest

	elections Elections
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New builds a processor. factor is the production multiplier K in
// milliseconds per kWh (valid 1..15).
func New(factor int, log zerolog.Logger) *Processor {
	return &Processor{
		log:                  log.With().Str("component", "processor").Logger(),
		productionTimePerKWh: time.Duration(factor) * time.Millisecond,
		stop:                 make(chan struct{}),
	}
}

// BindElections attaches the election manager. Must be called before any
// request is submitted.
func (p *Processor) BindElections(e Elections) {
	p.elections = e
}

// Submit routes an incoming request: an idle plant opens an election, a busy
// plant queues the request and registers passively so a later token or winner
// announcement finds per-request state.
func (p *Processor) Submit(req model.EnergyRequest) {
	p.busyMu.Lock()
	busy := p.busy
	p.busyMu.Unlock()

	if !busy {
		p.elections.StartElection(req)
		return
	}

	p.enqueue(req)
	p.elections.RegisterPassive(req)
}

// enqueue appends the request unless a request with the same id already
// waits in the queue.
func (p *Processor) enqueue(req model.EnergyRequest) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, q := range p.pending {
		if q.RequestID == req.RequestID {
			p.log.Debug().Str("request_id", req.RequestID).Msg("request already queued, ignoring duplicate")
			return
		}
	}
	p.pending = append(p.pending, req)
	p.log.Info().Str("request_id", req.RequestID).Int("queue_len", len(p.pending)).Msg("plant busy, queued request")
}

// RemoveQueued drops a queued request whose election another plant has won.
func (p *Processor) RemoveQueued(requestID string) {
	if requestID == "" {
		return
	}
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for i, q := range p.pending {
		if q.RequestID == requestID {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			p.log.Info().Str("request_id", requestID).Msg("removed queued request, handled by another plant")
			return
		}
	}
}

// QueueLen reports the number of pending requests.
func (p *Processor) QueueLen() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.pending)
}

// Busy reports whether a production run is active.
func (p *Processor) Busy() bool {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	return p.busy
}

// CurrentRequestID returns the id of the request in production, or "".
func (p *Processor) CurrentRequestID() string {
	p.busyMu.Lock()
	defer p.busyMu.Unlock()
	return p.currentRequestID
}

// Fulfill transitions idle to busy and starts the simulated production run
// for a request this plant won. A busy plant logs and drops the call; the
// winner invariant means this only happens on duplicate deliveries.
func (p *Processor) Fulfill(req model.EnergyRequest, price decimal.Decimal) {
	p.busyMu.Lock()
	if p.busy {
		current := p.currentRequestID
		p.busyMu.Unlock()
		p.log.Warn().Str("request_id", req.RequestID).Str("current", current).
			Msg("asked to fulfill while already producing, dropping")
		return
	}
	p.busy = true
	p.currentRequestID = req.RequestID
	p.busyMu.Unlock()

	// A stale queued copy of the request is now obsolete.
	p.RemoveQueued(req.RequestID)

	duration := time.Duration(req.AmountKWh) * p.productionTimePerKWh
	p.log.Info().Str("request_id", req.RequestID).Int("amount_kwh", req.AmountKWh).
		Str("price", price.String()).Dur("duration", duration).Msg("won bid, starting energy production")

	p.wg.Add(1)
	go p.produce(req, duration)
}

// produce simulates the production run. Interruption via Stop still drives
// the busy-to-idle transition and the dequeue of the next request.
func (p *Processor) produce(req model.EnergyRequest, duration time.Duration) {
	defer p.wg.Done()

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stop:
		p.log.Warn().Str("request_id", req.RequestID).Msg("energy production interrupted")
	}

	p.onProductionFinished(req)
}

func (p *Processor) onProductionFinished(req model.EnergyRequest) {
	p.log.Info().Str("request_id", req.RequestID).Msg("finished fulfilling request")

	p.queueMu.Lock()
	var next *model.EnergyRequest
	if len(p.pending) > 0 {
		head := p.pending[0]
		p.pending = p.pending[1:]
		next = &head
	}
	p.queueMu.Unlock()

	p.busyMu.Lock()
	p.busy = false
	p.currentRequestID = ""
	p.busyMu.Unlock()

	if next != nil {
		p.log.Info().Str("request_id", next.RequestID).Msg("processing dequeued request")
		p.elections.StartElectionForDequeued(*next)
	} else {
		p.log.Info().Msg("no pending requests, plant is idle")
	}
}

// Stop interrupts any active production run and waits for it to wind down.
func (p *Processor) Stop() {
	close(p.stop)
	p.wg.Wait()
}
