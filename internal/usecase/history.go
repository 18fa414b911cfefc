package usecase

import (
	"context"

	"timetracker/internal/domain"
)

// History returns the user's most recent entries, newest start time first,
// capped at domain.HistoryLimit.
func (uc *TrackerUseCase) History(ctx context.Context, userID string) ([]domain.TimeEntry, error) {
	ctx, cancel, err := uc.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer cancel()

	entries, err := uc.Store.ListByUser(ctx, userID, domain.HistoryLimit)
	if err != nil {
		return nil, domain.Infrastructure("list time entries", err)
	}
	if entries == nil {
		entries = []domain.TimeEntry{}
	}
	return entries, nil
}
