// Package fleet contains the scan engine: the per-device prober, the cycle
// orchestrator, and the snapshot store the HTTP layer reads from.
package fleet

import (
	"sync/atomic"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// StateStore holds the most recently published fleet snapshot. Reads never
// block and always observe a complete snapshot: the orchestrator replaces the
// reference wholesale, it never edits a published snapshot in place.
type StateStore struct {
	current atomic.Pointer[models.FleetSnapshot]
}

// NewStateStore creates a store seeded with an initial snapshot so Current
// never returns nil.
func NewStateStore(initial *models.FleetSnapshot) *StateStore {
	s := &StateStore{}
	s.current.Store(initial)
	return s
}

// Current returns the last published snapshot.
func (s *StateStore) Current() *models.FleetSnapshot {
	return s.current.Load()
}

// Publish atomically replaces the current snapshot. Called only by the scan
// orchestrator after a cycle completes.
func (s *StateStore) Publish(snap *models.FleetSnapshot) {
	s.current.Store(snap)
}
