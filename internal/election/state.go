package election

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/energymarket/shared/model"
)

// cleanupDelay keeps completed election state around long enough to absorb
// in-flight duplicate tokens and announcements.
const cleanupDelay = 30 * time.Second

type participation int

const (
	passive participation = iota
	participant
)

// State tracks one election, keyed by request id. All field access goes
// through the mutex; winnerAnnounced is a one-way latch.
type State struct {
	mu sync.Mutex

	request model.EnergyRequest
	myBid   model.Bid
	best    model.Bid
	role    participation

	winnerAnnounced bool
}

func newState(req model.EnergyRequest, myBid model.Bid) *State {
	return &State{
		request: req,
		myBid:   myBid,
		best:    model.SentinelBid(),
	}
}

// tryAnnounceWinner latches the winner flag, returning true exactly once.
func (s *State) tryAnnounceWinner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.winnerAnnounced {
		return false
	}
	s.winnerAnnounced = true
	return true
}

func (s *State) isWinnerAnnounced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winnerAnnounced
}

// updateBest adopts candidate if it beats the best bid seen so far.
func (s *State) updateBest(candidate model.Bid) bool {
	if candidate.Better(s.best) {
		s.best = candidate
		return true
	}
	return false
}

// updateMyBid replaces this plant's price, used when a queued request gets a
// fresh bid after dequeue.
func (s *State) updateMyBid(price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.myBid.Price = price
}

// Store owns the election states of every request this plant has seen.
type Store struct {
	mu     sync.Mutex
	states map[string]*State
	log    zerolog.Logger

	// afterFunc is swapped in tests to make cleanup synchronous.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewStore builds an empty election state store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		states:    make(map[string]*State),
		log:       log.With().Str("component", "election_store").Logger(),
		afterFunc: time.AfterFunc,
	}
}

// GetOrCreate returns the state for requestID, creating it with the given
// request and bid on first exposure.
func (st *Store) GetOrCreate(requestID string, req model.EnergyRequest, myBid model.Bid) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[requestID]; ok {
		return s
	}
	s := newState(req, myBid)
	st.states[requestID] = s
	st.log.Debug().Str("request_id", requestID).Str("bid", myBid.Price.String()).Msg("created election state")
	return s
}

// GetOrCreateFromToken reconstructs a request from the data an election token
// carries, for plants that first learn about a request mid-election.
func (st *Store) GetOrCreateFromToken(requestID string, amountKWh int, myBid model.Bid) *State {
	req := model.EnergyRequest{RequestID: requestID, AmountKWh: amountKWh, Timestamp: time.Now().UnixMilli()}
	return st.GetOrCreate(requestID, req, myBid)
}

// Get returns the state for requestID, or nil.
func (st *Store) Get(requestID string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.states[requestID]
}

// ScheduleCleanup removes the state after the cleanup delay.
func (st *Store) ScheduleCleanup(requestID string) {
	st.afterFunc(cleanupDelay, func() {
		st.mu.Lock()
		_, existed := st.states[requestID]
		delete(st.states, requestID)
		st.mu.Unlock()
		if existed {
			st.log.Debug().Str("request_id", requestID).Msg("cleaned up election state")
		}
	})
}
