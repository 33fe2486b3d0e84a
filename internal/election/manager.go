// Package election runs one ring election per energy request: Chang-Roberts
// style token circulation where the best bid survives and its owner wins.
package election

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Topology is the registry surface the manager needs: who am I and who comes
// next in the ring.
type Topology interface {
	Self() model.PlantInfo
	NextInRing(plantID int) model.PlantInfo
}

// Producer is the request-processor surface: fulfillment, queue cleanup and
// the busy probe.
type Producer interface {
	Fulfill(req model.EnergyRequest, price decimal.Decimal)
	RemoveQueued(requestID string)
	Busy() bool
}

// Transport sends election messages to a specific peer. Implementations
// decide the failure policy (the peer client evicts unreachable plants on
// winner announcements but keeps them on token forwards).
type Transport interface {
	ForwardToken(target model.PlantInfo, tok model.ElectionToken) error
	AnnounceWinner(target model.PlantInfo, ann model.WinnerAnnouncement) error
}

// Manager coordinates every election this plant takes part in.
type Manager struct {
	log       zerolog.Logger
	topo      Topology
	transport Transport
	states    *Store
	prices    *PriceGenerator

	producer Producer
}

// NewManager wires the election manager. The producer is bound afterwards via
// BindProducer because the request processor and the manager reference each
// other.
func NewManager(topo Topology, transport Transport, prices *PriceGenerator, log zerolog.Logger) *Manager {
	return &Manager{
		log:       log.With().Str("component", "election").Logger(),
		topo:      topo,
		transport: transport,
		states:    NewStore(log),
		prices:    prices,
	}
}

// BindProducer attaches the request processor. Must be called before any
// message is handled.
func (m *Manager) BindProducer(p Producer) {
	m.producer = p
}

func (m *Manager) selfID() int {
	return m.topo.Self().PlantID
}

func (m *Manager) newBid() model.Bid {
	return model.Bid{PlantID: m.selfID(), Price: m.prices.Price()}
}

// StartElection begins an election for a request that arrived while the plant
// was idle. Re-delivered requests find the existing state and are inert.
func (m *Manager) StartElection(req model.EnergyRequest) {
	state := m.states.GetOrCreate(req.RequestID, req, m.newBid())

	state.mu.Lock()
	if state.winnerAnnounced || state.role == participant {
		state.mu.Unlock()
		m.log.Debug().Str("request_id", req.RequestID).Msg("election already underway, not initiating")
		return
	}
	state.role = participant
	bid := state.myBid
	state.updateBest(bid)
	state.mu.Unlock()

	m.log.Info().Str("request_id", req.RequestID).Str("price", bid.Price.String()).Msg("initiating election")
	m.initiate(state, bid)
}

// StartElectionForDequeued begins an election for a request that waited in
// the pending queue. A fresh price is generated because market conditions may
// have moved while the request was parked.
func (m *Manager) StartElectionForDequeued(req model.EnergyRequest) {
	if s := m.states.Get(req.RequestID); s != nil && s.isWinnerAnnounced() {
		m.log.Info().Str("request_id", req.RequestID).Msg("skipping dequeued request, winner already decided")
		return
	}

	price := m.prices.Price()
	state := m.states.GetOrCreate(req.RequestID, req, model.Bid{PlantID: m.selfID(), Price: price})
	state.updateMyBid(price)

	state.mu.Lock()
	if state.winnerAnnounced || state.role == participant {
		state.mu.Unlock()
		m.log.Debug().Str("request_id", req.RequestID).Msg("dequeued election already underway, not initiating")
		return
	}
	state.role = participant
	bid := state.myBid
	state.updateBest(bid)
	state.mu.Unlock()

	m.log.Info().Str("request_id", req.RequestID).Str("price", bid.Price.String()).Msg("initiating election for dequeued request")
	m.initiate(state, bid)
}

// RegisterPassive records that this plant saw a request while busy. No bid is
// emitted; a token arriving later can still traverse this node unchanged, and
// the state lets the eventual winner announcement be latched exactly once.
func (m *Manager) RegisterPassive(req model.EnergyRequest) {
	m.states.GetOrCreate(req.RequestID, req, m.newBid())
	m.log.Debug().Str("request_id", req.RequestID).Msg("registered passively, plant busy at intake")
}

// HandleToken applies the ring algorithm to an incoming election token.
func (m *Manager) HandleToken(tok model.ElectionToken) {
	self := m.selfID()

	// Token returned to its initiator: the ring has been traversed.
	if tok.InitiatorID == self {
		state := m.states.Get(tok.RequestID)
		if state == nil {
			m.log.Warn().Str("request_id", tok.RequestID).Msg("own token returned but state is missing, dropping")
			return
		}
		m.complete(state, tok)
		return
	}

	// A busy plant never bids; it keeps the ring moving.
	if m.producer.Busy() {
		m.log.Info().Str("request_id", tok.RequestID).Int("initiator", tok.InitiatorID).
			Msg("busy, forwarding token without participating")
		m.forwardToken(tok)
		return
	}

	state := m.states.GetOrCreateFromToken(tok.RequestID, tok.EnergyAmountKWh, m.newBid())

	state.mu.Lock()
	if state.winnerAnnounced {
		state.mu.Unlock()
		m.log.Debug().Str("request_id", tok.RequestID).Msg("dropping token, winner already announced")
		return
	}

	stronger := state.myBid.Better(tok.BestBid)
	wasParticipant := state.role == participant
	myBid := state.myBid

	var action ringAction
	switch {
	case wasParticipant && stronger:
		// My own token with a stronger bid is already circulating; this one dies here.
		action = discardToken
	case wasParticipant:
		state.updateBest(tok.BestBid)
		action = forwardUnchanged
	case stronger:
		// Late joiner with the better bid: open my own election round.
		state.role = participant
		state.updateBest(myBid)
		action = initiateOwn
	default:
		state.role = participant
		state.updateBest(tok.BestBid)
		action = forwardUnchanged
	}
	state.mu.Unlock()

	switch action {
	case discardToken:
		m.log.Info().Str("request_id", tok.RequestID).Int("initiator", tok.InitiatorID).
			Str("my_price", myBid.Price.String()).Msg("stronger bid already circulating, discarding token")
	case initiateOwn:
		m.log.Info().Str("request_id", tok.RequestID).Int("initiator", tok.InitiatorID).
			Str("my_price", myBid.Price.String()).Msg("late joiner with stronger bid, initiating own election")
		m.initiate(state, myBid)
	case forwardUnchanged:
		m.log.Info().Str("request_id", tok.RequestID).Int("initiator", tok.InitiatorID).
			Msg("weaker bid, forwarding token unchanged")
		m.forwardToken(tok)
	}
}

// HandleWinnerAnnouncement applies a circulating announcement: latch, act,
// and keep it moving unless it has come home to its initiator.
func (m *Manager) HandleWinnerAnnouncement(ann model.WinnerAnnouncement) {
	self := m.selfID()

	if ann.InitiatorID == self {
		m.log.Info().Str("request_id", ann.RequestID).Msg("winner announcement completed its circulation")
		return
	}

	state := m.states.Get(ann.RequestID)
	if state == nil {
		// Never participated, but a queued copy may exist.
		m.log.Info().Str("request_id", ann.RequestID).Int("winner", ann.WinningPlantID).
			Msg("acknowledging winner for request this plant never bid on")
		m.producer.RemoveQueued(ann.RequestID)
	} else if state.tryAnnounceWinner() {
		m.log.Info().Str("request_id", ann.RequestID).Int("winner", ann.WinningPlantID).
			Str("price", ann.WinningPrice.String()).Msg("acknowledging election winner")
		if ann.WinningPlantID == self {
			m.producer.Fulfill(requestOf(state), ann.WinningPrice)
		} else {
			m.producer.RemoveQueued(ann.RequestID)
		}
		m.states.ScheduleCleanup(ann.RequestID)
	} else {
		m.log.Debug().Str("request_id", ann.RequestID).Msg("duplicate winner announcement, ignoring")
	}

	m.circulate(ann)
}

func requestOf(s *State) model.EnergyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}
