package usecase

import (
	"context"
	"log/slog"

	"timetracker/internal/domain"
)

// Start opens a new running entry for userID. It fails with ErrConflict when
// the user already has a running entry and with ErrInvalidInput for a blank
// project name.
func (uc *TrackerUseCase) Start(ctx context.Context, userID, projectName string) (domain.TimeEntry, error) {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer cancel()

	if projectName, err = domain.ProjectName(projectName); err != nil {
		return domain.TimeEntry{}, err
	}

	unlock := uc.locks.lock(userID)
	defer unlock()

	// Read the clock only once the lock is held, so a start queued behind a
	// stop never begins before that stop's end time.
	entry, err := domain.NewRunningEntry(userID, projectName, uc.Clock.Now())
	if err != nil {
		return domain.TimeEntry{}, err
	}

	running, err := uc.Store.FindRunning(ctx, userID)
	if err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("find running entry", err)
	}
	if st := domain.StateOf(running); st.IsRunning() {
		uc.Log.Debug("start rejected", slog.String("user", userID), slog.String("state", st.String()))
		return domain.TimeEntry{}, domain.Conflictf("a time entry is already running")
	}

	// The store enforces the same rule, which covers other processes
	// sharing the database.
	if _, err := uc.Store.Insert(ctx, &entry); err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("insert time entry", err)
	}
	uc.Log.Info("timer started",
		slog.String("user", userID),
		slog.String("entry", entry.ID),
		slog.String("project", entry.ProjectName),
	)
	return entry, nil
}

// Stop closes the user's running entry. It fails with ErrNotFound when the
// user is idle.
func (uc *TrackerUseCase) Stop(ctx context.Context, userID string) (domain.TimeEntry, error) {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer cancel()

	unlock := uc.locks.lock(userID)
	defer unlock()

	running, err := uc.Store.FindRunning(ctx, userID)
	if err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("find running entry", err)
	}
	if !domain.StateOf(running).IsRunning() {
		return domain.TimeEntry{}, domain.NotFoundf("no running time entry")
	}

	entry := *running
	if err := entry.Stop(uc.Clock.Now()); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := uc.Store.Update(ctx, entry); err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("update time entry", err)
	}
	uc.Log.Info("timer stopped",
		slog.String("user", userID),
		slog.String("entry", entry.ID),
		slog.Duration("duration", entry.Duration()),
	)
	return entry, nil
}

// Current returns the user's running entry, or nil when idle.
func (uc *TrackerUseCase) Current(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer cancel()

	running, err := uc.Store.FindRunning(ctx, userID)
	if err != nil {
		return nil, domain.Infrastructure("find running entry", err)
	}
	return running, nil
}
