package ports

import (
	"context"

	"timetracker/internal/domain"
)

// TimeEntryStore persists time entries. Every query that takes a userID is
// scoped to that owner; an entry owned by someone else is reported exactly
// like a missing one.
//
// Implementations must reject a second running entry for the same user on
// Insert atomically and report it as domain.ErrConflict.
type TimeEntryStore interface {
	// Insert assigns e.ID and persists e.
	Insert(ctx context.Context, e *domain.TimeEntry) (string, error)
	// FindRunning returns the user's running entry, or nil.
	FindRunning(ctx context.Context, userID string) (*domain.TimeEntry, error)
	// FindByID returns the entry only if it belongs to userID, or nil.
	FindByID(ctx context.Context, userID, id string) (*domain.TimeEntry, error)
	// Update persists description, end time, duration, running flag and
	// updatedAt. Lifecycle fields of a terminal row are never changed.
	// Returns domain.ErrNotFound when no owned row matches.
	Update(ctx context.Context, e domain.TimeEntry) error
	// Delete removes the entry if owned by userID and reports whether a row
	// was removed.
	Delete(ctx context.Context, userID, id string) (bool, error)
	// ListByUser returns up to limit entries, newest start time first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.TimeEntry, error)
	Close() error
}

// Tracker is the operation surface consumed by transports (HTTP, CLI).
type Tracker interface {
	Start(ctx context.Context, userID, projectName string) (domain.TimeEntry, error)
	Stop(ctx context.Context, userID string) (domain.TimeEntry, error)
	Current(ctx context.Context, userID string) (*domain.TimeEntry, error)
	History(ctx context.Context, userID string) ([]domain.TimeEntry, error)
	UpdateDescription(ctx context.Context, userID, entryID, text string) (domain.TimeEntry, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
}
