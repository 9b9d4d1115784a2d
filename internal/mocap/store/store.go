// Package store holds the most recent decoded head pose and expression
// weights. The listener goroutine writes; any number of consumers read.
package store

import (
	"sync"
	"time"

	"github.com/banshee-data/facecap/internal/mocap"
)

// Store is the latest-value holder shared between the listener and its
// consumers. A single RWMutex guards every field; each critical section is
// a value swap, one datagram's map merge, or a map copy.
type Store struct {
	mu sync.RWMutex

	head    mocap.HeadPose
	weights map[string]float64

	headUpdates      uint64
	weightUpdates    uint64
	headUpdatedAt    time.Time
	weightsUpdatedAt time.Time

	now func() time.Time
}

// New returns an empty Store: zero head pose, no weights.
func New() *Store {
	return &Store{
		weights: make(map[string]float64),
		now:     time.Now,
	}
}

// ApplyHeadPose replaces the stored head pose as a whole.
func (s *Store) ApplyHeadPose(p mocap.HeadPose) {
	now := s.now()
	s.mu.Lock()
	s.head = p
	s.headUpdates++
	s.headUpdatedAt = now
	s.mu.Unlock()
}

// ApplyWeights merges one datagram's updates under a single critical
// section. Later entries win over earlier ones with the same name.
func (s *Store) ApplyWeights(updates []mocap.Weight) {
	if len(updates) == 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	for _, w := range updates {
		s.weights[w.Name] = w.Value
	}
	s.weightUpdates++
	s.weightsUpdatedAt = now
	s.mu.Unlock()
}

// ApplyFrame applies a decoded frame according to its kind.
func (s *Store) ApplyFrame(f mocap.Frame) {
	switch f.Kind {
	case mocap.FrameHead:
		s.ApplyHeadPose(f.Head)
	case mocap.FrameWeights:
		s.ApplyWeights(f.Weights)
	}
}

// HeadPose returns the latest head pose.
func (s *Store) HeadPose() mocap.HeadPose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Weight returns the named weight, or 0 if it has never been received.
func (s *Store) Weight(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights[name]
}

// AllWeights returns a copy of every weight received so far.
func (s *Store) AllWeights() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyWeights(s.weights)
}

// Len returns the number of distinct weight names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.weights)
}

// Snapshot returns head, weights and update counters read together.
func (s *Store) Snapshot() mocap.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mocap.Snapshot{
		Head:             s.head,
		Weights:          copyWeights(s.weights),
		HeadUpdates:      s.headUpdates,
		WeightUpdates:    s.weightUpdates,
		HeadUpdatedAt:    s.headUpdatedAt,
		WeightsUpdatedAt: s.weightsUpdatedAt,
	}
}

// Version returns a counter that changes whenever the store is written.
// Pollers compare it to skip unchanged snapshots.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headUpdates + s.weightUpdates
}

func copyWeights(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
