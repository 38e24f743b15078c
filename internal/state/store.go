package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// DefaultProgressLinger is how long a finished operation's progress stays
// visible before it is cleared.
const DefaultProgressLinger = 2 * time.Second

// Store is the single owner of State. Apply is atomic with respect to other
// Apply calls; readers get immutable snapshots.
type Store struct {
	mu      sync.Mutex
	current State
	linger  time.Duration
	cleanup map[models.FileID]*time.Timer
}

// NewStore creates a store seeded with the given catalogue.
func NewStore(catalogue []models.Section, linger time.Duration) *Store {
	if linger <= 0 {
		linger = DefaultProgressLinger
	}
	return &Store{
		current: New(catalogue),
		linger:  linger,
		cleanup: make(map[models.FileID]*time.Timer),
	}
}

// Apply reduces ev against the current state and publishes the result.
// BeginOperation cancels any pending progress cleanup for the file and
// FinishOperation schedules a new one.
func (s *Store) Apply(ev Event) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Reduce(s.current, ev)
	if err != nil {
		return s.current, err
	}
	s.current = next

	switch e := ev.(type) {
	case BeginOperation:
		s.stopCleanupLocked(e.FileID)
	case FinishOperation:
		s.stopCleanupLocked(e.FileID)
		id := e.FileID
		var timer *time.Timer
		timer = time.AfterFunc(s.linger, func() { s.clearProgress(id, &timer) })
		s.cleanup[id] = timer
	case RemoveFile:
		s.pruneTimersLocked()
	}
	return next, nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Section returns a snapshot of one section.
func (s *Store) Section(id string) (models.Section, bool) {
	return s.Snapshot().Section(id)
}

// File returns a snapshot of one file and the id of the section holding it.
func (s *Store) File(id models.FileID) (string, models.File, bool) {
	return s.Snapshot().File(id)
}

// Close stops every pending cleanup timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.cleanup {
		s.stopCleanupLocked(id)
	}
}

// clearProgress runs from a timer callback. A callback that fired while a
// newer operation replaced its timer is stale and does nothing.
func (s *Store) clearProgress(id models.FileID, timer **time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cleanup[id]; !ok || cur != *timer {
		return
	}
	delete(s.cleanup, id)
	next, err := Reduce(s.current, ClearProgress{FileID: id})
	if err != nil {
		// file was removed before the timer fired
		slog.Debug("Progress cleanup skipped", "fileID", id, "error", err)
		return
	}
	s.current = next
}

func (s *Store) stopCleanupLocked(id models.FileID) {
	if t, ok := s.cleanup[id]; ok {
		t.Stop()
		delete(s.cleanup, id)
	}
}

func (s *Store) pruneTimersLocked() {
	for id := range s.cleanup {
		if _, _, ok := s.current.File(id); !ok {
			s.stopCleanupLocked(id)
		}
	}
}
