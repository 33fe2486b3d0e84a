package processor_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energymarket/internal/processor"
	"github.com/terminal-bench/energymarket/shared/model"
)

// electionsRecorder captures the calls the processor makes into the election
// manager.
type electionsRecorder struct {
	mu        sync.Mutex
	started   []string
	dequeued  []string
	passive   []string
	dequeuedC chan string
}

func newElectionsRecorder() *electionsRecorder {
	return &electionsRecorder{dequeuedC: make(chan string, 8)}
}

func (r *electionsRecorder) StartElection(req model.EnergyRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, req.RequestID)
}

func (r *electionsRecorder) StartElectionForDequeued(req model.EnergyRequest) {
	r.mu.Lock()
	r.dequeued = append(r.dequeued, req.RequestID)
	r.mu.Unlock()
	r.dequeuedC <- req.RequestID
}

func (r *electionsRecorder) RegisterPassive(req model.EnergyRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passive = append(r.passive, req.RequestID)
}

func (r *electionsRecorder) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func (r *electionsRecorder) passiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.passive...)
}

func req(id string, amount int) model.EnergyRequest {
	return model.EnergyRequest{RequestID: id, AmountKWh: amount, Timestamp: 1}
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSubmit(t *testing.T) {
	t.Run("idle plant starts an election", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Submit(req("r1", 5))
		assert.Equal(t, []string{"r1"}, rec.startedIDs())
		assert.Zero(t, p.QueueLen())
	})

	t.Run("busy plant queues and registers passively", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Fulfill(req("r1", 10000), price("0.50"))
		require.True(t, p.Busy())

		p.Submit(req("r2", 5))
		assert.Empty(t, rec.startedIDs())
		assert.Equal(t, []string{"r2"}, rec.passiveIDs())
		assert.Equal(t, 1, p.QueueLen())

		p.Stop()
	})

	t.Run("duplicate request ids are queued once", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Fulfill(req("r1", 10000), price("0.50"))
		p.Submit(req("r2", 5))
		p.Submit(req("r2", 5))
		assert.Equal(t, 1, p.QueueLen())

		p.Stop()
	})
}

func TestRemoveQueued(t *testing.T) {
	rec := newElectionsRecorder()
	p := processor.New(1, zerolog.Nop())
	p.BindElections(rec)

	p.Fulfill(req("r1", 10000), price("0.50"))
	p.Submit(req("r2", 5))
	p.Submit(req("r3", 5))

	p.RemoveQueued("r2")
	assert.Equal(t, 1, p.QueueLen())
	p.RemoveQueued("r2")
	assert.Equal(t, 1, p.QueueLen())

	p.Stop()
}

func TestFulfill(t *testing.T) {
	t.Run("transitions idle to busy and back", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Fulfill(req("r1", 5), price("0.42"))
		assert.Equal(t, "r1", p.CurrentRequestID())

		require.Eventually(t, func() bool { return !p.Busy() }, time.Second, 5*time.Millisecond)
		assert.Empty(t, p.CurrentRequestID())
	})

	t.Run("second fulfill while busy is dropped", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Fulfill(req("r1", 10000), price("0.50"))
		p.Fulfill(req("r2", 10000), price("0.50"))
		assert.Equal(t, "r1", p.CurrentRequestID())

		p.Stop()
	})

	t.Run("completion dequeues the head and starts a fresh election", func(t *testing.T) {
		rec := newElectionsRecorder()
		p := processor.New(1, zerolog.Nop())
		p.BindElections(rec)

		p.Fulfill(req("r1", 5), price("0.50"))
		p.Submit(req("r2", 5))
		p.Submit(req("r3", 5))

		select {
		case id := <-rec.dequeuedC:
			assert.Equal(t, "r2", id)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dequeued election")
		}
		assert.Equal(t, 1, p.QueueLen())
	})

}

func TestStopInterruptsProduction(t *testing.T) {
	rec := newElectionsRecorder()
	p := processor.New(15, zerolog.Nop())
	p.BindElections(rec)

	// 15 ms per kWh puts natural completion far beyond the test horizon.
	p.Fulfill(req("r1", 100000), price("0.50"))
	require.True(t, p.Busy())

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt production")
	}
	assert.False(t, p.Busy())
}
