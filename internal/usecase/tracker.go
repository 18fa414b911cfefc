package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"timetracker/internal/clock"
	"timetracker/internal/domain"
	"timetracker/internal/ports"
)

// DefaultTimeout bounds a single operation when Timeout is unset.
const DefaultTimeout = 5 * time.Second

// TrackerUseCase implements the time-entry lifecycle: the per-user timer
// state machine, the entry editor and the history reader. All operations are
// scoped to the user id supplied by the caller.
type TrackerUseCase struct {
	Log     *slog.Logger
	Store   ports.TimeEntryStore
	Clock   clock.Clock
	Timeout time.Duration

	locks userLocks
}

var _ ports.Tracker = (*TrackerUseCase)(nil)

// begin validates dependencies and the user id and derives the
// operation-scoped context.
func (uc *TrackerUseCase) begin(ctx context.Context, userID string) (context.Context, context.CancelFunc, error) {
	if uc.Store == nil || uc.Clock == nil || uc.Log == nil {
		return nil, nil, errors.New("usecase not initialized: missing dependencies")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, nil, domain.InvalidInputf("user id is required")
	}
	timeout := uc.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}
