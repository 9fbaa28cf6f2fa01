package reference

import (
	"errors"
	"sync/atomic"
)

// ErrSnapshotUnavailable is returned when no snapshot has been loaded yet.
// The orchestrator treats it as transient and defers the whole batch.
var ErrSnapshotUnavailable = errors.New("reference snapshot unavailable")

// Store hands out the current snapshot and accepts replacement generations.
// A swap never invalidates snapshots held by in-flight work.
type Store struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Int64
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the active snapshot, or ErrSnapshotUnavailable before the
// first load.
func (st *Store) Current() (*Snapshot, error) {
	s := st.current.Load()
	if s == nil {
		return nil, ErrSnapshotUnavailable
	}
	return s, nil
}

// NextGeneration reserves a generation number for a snapshot being built.
func (st *Store) NextGeneration() int64 {
	return st.generation.Add(1)
}

// Swap installs a freshly built snapshot.
func (st *Store) Swap(s *Snapshot) {
	st.current.Store(s)
}
