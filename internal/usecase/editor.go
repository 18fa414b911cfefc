package usecase

import (
	"context"
	"log/slog"

	"timetracker/internal/domain"
)

// UpdateDescription sets the trimmed description on one of the user's
// entries, running or stopped.
func (uc *TrackerUseCase) UpdateDescription(ctx context.Context, userID, entryID, text string) (domain.TimeEntry, error) {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer cancel()

	// Held so a concurrent Stop cannot interleave between load and write.
	unlock := uc.locks.lock(userID)
	defer unlock()

	entry, err := uc.Store.FindByID(ctx, userID, entryID)
	if err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("find time entry", err)
	}
	if entry == nil {
		return domain.TimeEntry{}, domain.NotFoundf("time entry %s not found", entryID)
	}

	entry.Describe(text, uc.Clock.Now())
	if err := uc.Store.Update(ctx, *entry); err != nil {
		return domain.TimeEntry{}, domain.Infrastructure("update time entry", err)
	}
	uc.Log.Debug("description updated", slog.String("user", userID), slog.String("entry", entryID))
	return *entry, nil
}

// DeleteEntry removes one of the user's entries. Deleting the running entry
// cancels the timer: the user is idle afterwards.
func (uc *TrackerUseCase) DeleteEntry(ctx context.Context, userID, entryID string) error {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return err
	}
	defer cancel()

	unlock := uc.locks.lock(userID)
	defer unlock()

	entry, err := uc.Store.FindByID(ctx, userID, entryID)
	if err != nil {
		return domain.Infrastructure("find time entry", err)
	}
	if entry == nil {
		return domain.NotFoundf("time entry %s not found", entryID)
	}

	removed, err := uc.Store.Delete(ctx, userID, entryID)
	if err != nil {
		return domain.Infrastructure("delete time entry", err)
	}
	if !removed {
		return domain.NotFoundf("time entry %s not found", entryID)
	}
	uc.Log.Info("time entry deleted",
		slog.String("user", userID),
		slog.String("entry", entryID),
		slog.Bool("was_running", entry.IsRunning),
	)
	return nil
}
