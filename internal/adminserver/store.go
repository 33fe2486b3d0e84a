// Package adminserver implements the administration service: plant
// registration and listing, pollution statistics, the broker subscriber that
// feeds them, and a live WebSocket feed of incoming batches.
package adminserver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/terminal-bench/energymarket/shared/model"
)

// Store-level sentinel errors.
var (
	// ErrDuplicatePlant means a plant with the same id is already registered.
	ErrDuplicatePlant = errors.New("plant already registered")
	// ErrNoData means no pollution entries fall in the queried range.
	ErrNoData = errors.New("no pollution data in range")
)

// PlantStore is the in-memory registry of every plant that ever registered.
type PlantStore struct {
	mu     sync.Mutex
	plants map[int]model.PlantInfo
}

// NewPlantStore builds an empty plant store.
func NewPlantStore() *PlantStore {
	return &PlantStore{plants: make(map[int]model.PlantInfo)}
}

// Register stores a new plant and returns the plants registered before it.
// A duplicate id yields ErrDuplicatePlant.
func (s *PlantStore) Register(info model.PlantInfo) ([]model.PlantInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.plants[info.PlantID]; dup {
		return nil, errors.Wrapf(ErrDuplicatePlant, "plant %d", info.PlantID)
	}

	existing := make([]model.PlantInfo, 0, len(s.plants))
	for _, p := range s.plants {
		existing = append(existing, p)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].PlantID < existing[j].PlantID })

	s.plants[info.PlantID] = info
	return existing, nil
}

// All lists every registered plant, ordered by id.
func (s *PlantStore) All() []model.PlantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PlantInfo, 0, len(s.plants))
	for _, p := range s.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlantID < out[j].PlantID })
	return out
}

// ByID fetches one plant.
func (s *PlantStore) ByID(plantID int) (model.PlantInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plants[plantID]
	return p, ok
}

// MeasurementStore keeps every pollution batch the plants publish.
type MeasurementStore struct {
	mu      sync.Mutex
	entries []model.PollutionBatch
}

// NewMeasurementStore builds an empty measurement store.
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{}
}

// Add stores a batch. Batches without averages are ignored.
func (s *MeasurementStore) Add(batch model.PollutionBatch) {
	if len(batch.Averages) == 0 {
		return
	}
	s.mu.Lock()
	s.entries = append(s.entries, batch)
	s.mu.Unlock()
}

// Len reports the number of stored batches.
func (s *MeasurementStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// AverageBetween computes the overall CO2 average over the per-batch averages
// of every entry whose computation timestamp falls in [t1, t2]. Each batch
// contributes the mean of its averages; the result is the mean of those
// means. No matching entries yields ErrNoData.
func (s *MeasurementStore) AverageBetween(t1, t2 int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum float64
	var n int
	for _, e := range s.entries {
		if e.ListComputationTimestamp < t1 || e.ListComputationTimestamp > t2 {
			continue
		}
		var batchSum float64
		for _, v := range e.Averages {
			batchSum += v
		}
		sum += batchSum / float64(len(e.Averages))
		n++
	}
	if n == 0 {
		return 0, ErrNoData
	}
	return sum / float64(n), nil
}
