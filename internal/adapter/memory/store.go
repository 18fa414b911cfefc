package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"timetracker/internal/domain"
)

// Store implements ports.TimeEntryStore in process memory. Nothing survives a
// restart; it backs tests and STORE_DRIVER=memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string]domain.TimeEntry
	running map[string]string // userID -> running entry id
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]domain.TimeEntry),
		running: make(map[string]string),
	}
}

func (s *Store) Insert(ctx context.Context, e *domain.TimeEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IsRunning {
		if _, ok := s.running[e.UserID]; ok {
			return "", domain.Conflictf("a time entry is already running")
		}
	}
	e.ID = uuid.NewString()
	s.entries[e.ID] = clone(*e)
	if e.IsRunning {
		s.running[e.UserID] = e.ID
	}
	return e.ID, nil
}

func (s *Store) FindRunning(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.running[userID]
	if !ok {
		return nil, nil
	}
	e := clone(s.entries[id])
	return &e, nil
}

func (s *Store) FindByID(ctx context.Context, userID, id string) (*domain.TimeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.entries[id]
	if !ok || stored.UserID != userID {
		return nil, nil
	}
	e := clone(stored)
	return &e, nil
}

func (s *Store) Update(ctx context.Context, e domain.TimeEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[e.ID]
	if !ok || stored.UserID != e.UserID {
		return domain.NotFoundf("time entry %s not found", e.ID)
	}
	merged := domain.MergeUpdate(stored, clone(e))
	s.entries[e.ID] = merged
	if !merged.IsRunning && s.running[merged.UserID] == merged.ID {
		delete(s.running, merged.UserID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[id]
	if !ok || stored.UserID != userID {
		return false, nil
	}
	delete(s.entries, id)
	if s.running[userID] == id {
		delete(s.running, userID)
	}
	return true, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.TimeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.TimeEntry, 0)
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, clone(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

// clone copies e so callers never share the stored pointer fields.
func clone(e domain.TimeEntry) domain.TimeEntry {
	if e.EndTime != nil {
		end := *e.EndTime
		e.EndTime = &end
	}
	if e.DurationMS != nil {
		d := *e.DurationMS
		e.DurationMS = &d
	}
	return e
}
