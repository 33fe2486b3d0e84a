package election

import (
	"github.com/terminal-bench/energymarket/shared/model"
)

// ringAction is the outcome of one ring-algorithm step on an incoming token.
type ringAction int

const (
	discardToken ringAction = iota
	forwardUnchanged
	initiateOwn
)

// maxAnnouncementHops bounds the evict-and-reroute loop when circulating a
// winner announcement through a ring of failing peers.
const maxAnnouncementHops = 64

// initiate builds a fresh token carrying this plant's bid and sends it to the
// ring successor. A plant that is its own successor completes the election on
// the spot.
func (m *Manager) initiate(state *State, myBid model.Bid) {
	self := m.topo.Self()
	tok := model.ElectionToken{
		InitiatorID:     self.PlantID,
		RequestID:       requestOf(state).RequestID,
		BestBid:         myBid,
		EnergyAmountKWh: requestOf(state).AmountKWh,
	}

	next := m.topo.NextInRing(self.PlantID)
	if next.PlantID == self.PlantID {
		m.log.Info().Str("request_id", tok.RequestID).Msg("alone in the ring, completing election locally")
		m.complete(state, tok)
		return
	}

	if err := m.transport.ForwardToken(next, tok); err != nil {
		// Tokens are not re-routed and the request is not re-elected; this
		// round is lost, and later elections run on fresher membership.
		m.log.Error().Err(err).Int("target", next.PlantID).Str("request_id", tok.RequestID).
			Msg("failed to send election token")
	}
}

// forwardToken passes an incoming token unchanged to the ring successor.
func (m *Manager) forwardToken(tok model.ElectionToken) {
	self := m.topo.Self()
	next := m.topo.NextInRing(self.PlantID)
	if next.PlantID == self.PlantID {
		return
	}
	if err := m.transport.ForwardToken(next, tok); err != nil {
		m.log.Error().Err(err).Int("target", next.PlantID).Str("request_id", tok.RequestID).
			Msg("failed to forward election token")
	}
}

// complete finishes an election whose token has traversed the whole ring:
// latch the winner, fulfill locally if this plant won, then start the winner
// announcement on its circulation.
func (m *Manager) complete(state *State, tok model.ElectionToken) {
	self := m.selfID()

	state.mu.Lock()
	state.updateBest(tok.BestBid)
	winner := state.best
	if state.winnerAnnounced {
		state.mu.Unlock()
		m.log.Debug().Str("request_id", tok.RequestID).Msg("election already completed, dropping returned token")
		return
	}
	state.winnerAnnounced = true
	req := state.request
	state.mu.Unlock()

	m.log.Info().Str("request_id", tok.RequestID).Int("winner", winner.PlantID).
		Str("price", winner.Price.String()).Msg("election concluded")

	if winner.PlantID == self {
		m.log.Info().Str("request_id", tok.RequestID).Msg("this plant won, fulfilling request")
		m.producer.Fulfill(req, winner.Price)
	}

	m.circulate(model.WinnerAnnouncement{
		RequestID:      tok.RequestID,
		WinningPlantID: winner.PlantID,
		WinningPrice:   winner.Price,
		InitiatorID:    self,
	})
	m.states.ScheduleCleanup(tok.RequestID)
}

// circulate sends a winner announcement to the ring successor. If the send
// fails the peer client has already evicted the target, so the successor is
// recomputed and the announcement keeps making progress around the ring.
func (m *Manager) circulate(ann model.WinnerAnnouncement) {
	self := m.selfID()
	for hop := 0; hop < maxAnnouncementHops; hop++ {
		next := m.topo.NextInRing(self)
		if next.PlantID == self {
			return
		}
		err := m.transport.AnnounceWinner(next, ann)
		if err == nil {
			return
		}
		m.log.Warn().Err(err).Int("target", next.PlantID).Str("request_id", ann.RequestID).
			Msg("winner announcement failed, re-routing to new ring successor")
	}
	m.log.Error().Str("request_id", ann.RequestID).Msg("giving up circulating winner announcement")
}
