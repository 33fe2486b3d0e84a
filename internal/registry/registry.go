// Package registry maintains a plant's view of the other plants on the
// network and derives the logical ring used for elections.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Registry is the membership view: self plus every other known plant. The
// sorted ring (others plus self, ordered by registration time, ties broken by
// plant id) is cached as an immutable slice behind an atomic pointer so ring
// lookups never take the lock on the hot path.
type Registry struct {
	self model.PlantInfo
	log  zerolog.Logger

	mu     sync.Mutex
	others map[int]model.PlantInfo

	ring atomic.Pointer[[]model.PlantInfo]
}

// New builds a registry for the given plant.
func New(self model.PlantInfo, log zerolog.Logger) *Registry {
	return &Registry{
		self:   self,
		log:    log.With().Str("component", "registry").Logger(),
		others: make(map[int]model.PlantInfo),
	}
}

// Self returns this plant's own info.
func (r *Registry) Self() model.PlantInfo {
	return r.self
}

// AddInitial merges the plant list returned by the admin service at
// registration. Self and already-known ids are skipped, so the call is
// idempotent.
func (r *Registry) AddInitial(plants []model.PlantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, p := range plants {
		if p.PlantID == r.self.PlantID {
			continue
		}
		if _, known := r.others[p.PlantID]; known {
			continue
		}
		r.others[p.PlantID] = p
		added++
	}
	if added > 0 {
		r.ring.Store(nil)
		r.log.Info().Int("added", added).Int("known", len(r.others)).Msg("seeded registry from admin service")
	}
}

// Add inserts a newly announced plant. Self and duplicates are ignored.
func (r *Registry) Add(p model.PlantInfo) {
	if p.PlantID == r.self.PlantID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.others[p.PlantID]; known {
		return
	}
	r.others[p.PlantID] = p
	r.ring.Store(nil)
	r.log.Debug().Int("plant_id", p.PlantID).Int("known", len(r.others)).Msg("added plant")
}

// Remove deletes a plant by id. Unknown ids are a no-op.
func (r *Registry) Remove(plantID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.others[plantID]; !known {
		return
	}
	delete(r.others, plantID)
	r.ring.Store(nil)
	r.log.Debug().Int("plant_id", plantID).Int("known", len(r.others)).Msg("removed plant")
}

// Snapshot returns a point-in-time copy of the other known plants.
func (r *Registry) Snapshot() []model.PlantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PlantInfo, 0, len(r.others))
	for _, p := range r.others {
		out = append(out, p)
	}
	return out
}

// Count returns how many other plants are known.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.others)
}

// NextInRing returns the successor of currentPlantID in the ring. If the id
// is not a ring member the first ring element is returned; a ring containing
// only self yields self.
func (r *Registry) NextInRing(currentPlantID int) model.PlantInfo {
	ring := r.ringSnapshot()
	for i, p := range ring {
		if p.PlantID == currentPlantID {
			return ring[(i+1)%len(ring)]
		}
	}
	r.log.Warn().Int("plant_id", currentPlantID).Msg("plant not in ring, defaulting to first member")
	return ring[0]
}

// ringSnapshot returns the cached sorted ring, rebuilding it under the lock
// when a mutation has invalidated the cache. The returned slice is never
// modified after publication.
func (r *Registry) ringSnapshot() []model.PlantInfo {
	if cached := r.ring.Load(); cached != nil {
		return *cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached := r.ring.Load(); cached != nil {
		return *cached
	}

	ring := make([]model.PlantInfo, 0, len(r.others)+1)
	for _, p := range r.others {
		ring = append(ring, p)
	}
	ring = append(ring, r.self)
	sort.Slice(ring, func(i, j int) bool {
		if ring[i].RegistrationTime != ring[j].RegistrationTime {
			return ring[i].RegistrationTime < ring[j].RegistrationTime
		}
		return ring[i].PlantID < ring[j].PlantID
	})
	r.ring.Store(&ring)
	return ring
}
