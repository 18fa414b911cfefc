package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"timetracker/internal/adapter/memory"
	"timetracker/internal/clock"
	"timetracker/internal/domain"
	"timetracker/internal/ports"
)

var t0 = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

func newTracker(t *testing.T) (*TrackerUseCase, *clock.FakeClock, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	c := clock.Fake(t0)
	uc := &TrackerUseCase{
		Log:   slog.New(slog.DiscardHandler),
		Store: store,
		Clock: c,
	}
	return uc, c, store
}

func TestScenario_StartConflictStopRestart(t *testing.T) {
	uc, c, _ := newTracker(t)
	ctx := context.Background()

	first, err := uc.Start(ctx, "u1", "Design")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !first.IsRunning || first.ID == "" {
		t.Fatalf("expected running entry with id, got %+v", first)
	}

	if _, err := uc.Start(ctx, "u1", "Other"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	c.Advance(25 * time.Minute)
	stopped, err := uc.Stop(ctx, "u1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.ID != first.ID || stopped.IsRunning {
		t.Fatalf("expected stopped %s, got %+v", first.ID, stopped)
	}
	if *stopped.DurationMS != (25 * time.Minute).Milliseconds() {
		t.Errorf("expected duration %d, got %d", (25 * time.Minute).Milliseconds(), *stopped.DurationMS)
	}

	current, err := uc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != nil {
		t.Fatalf("expected no current entry, got %+v", current)
	}

	second, err := uc.Start(ctx, "u1", "Other")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new entry")
	}
}

func TestStart_InvalidProjectName(t *testing.T) {
	uc, _, store := newTracker(t)
	for _, name := range []string{"", "   "} {
		if _, err := uc.Start(context.Background(), "u1", name); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("project %q: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if got, _ := store.FindRunning(context.Background(), "u1"); got != nil {
		t.Fatalf("invalid start created an entry: %+v", got)
	}
}

func TestStart_ConflictLeavesExistingUntouched(t *testing.T) {
	uc, c, store := newTracker(t)
	ctx := context.Background()
	first, _ := uc.Start(ctx, "u1", "Design")
	c.Advance(time.Minute)
	_, _ = uc.Start(ctx, "u1", "Other")

	got, _ := store.FindRunning(ctx, "u1")
	if got == nil || got.ID != first.ID || got.ProjectName != "Design" || !got.StartTime.Equal(first.StartTime) {
		t.Fatalf("running entry changed: %+v", got)
	}
	all, _ := store.ListByUser(ctx, "u1", 0)
	if len(all) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(all))
	}
}

func TestStart_ConcurrentMutualExclusion(t *testing.T) {
	uc, _, store := newTracker(t)
	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.Start(context.Background(), "u1", fmt.Sprintf("P%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if succeeded != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, succeeded, conflicts)
	}
	all, _ := store.ListByUser(context.Background(), "u1", 0)
	if len(all) != 1 {
		t.Fatalf("expected exactly one stored entry, got %d", len(all))
	}
	if uc.locks.size() != 0 {
		t.Fatalf("expected lock table to drain, %d left", uc.locks.size())
	}
}

// lockRefs reports how many callers hold or wait for userID's lock.
func lockRefs(l *userLocks, userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ul, ok := l.locks[userID]; ok {
		return ul.refs
	}
	return 0
}

func TestStart_QueuedBehindStopBeginsAfterItsEnd(t *testing.T) {
	uc, c, store := newTracker(t)
	ctx := context.Background()

	first, err := uc.Start(ctx, "u1", "A")
	if err != nil {
		t.Fatalf("Start A: %v", err)
	}

	unlock := uc.locks.lock("u1")
	type result struct {
		entry domain.TimeEntry
		err   error
	}
	done := make(chan result, 1)
	go func() {
		e, err := uc.Start(ctx, "u1", "B")
		done <- result{e, err}
	}()
	deadline := time.Now().Add(5 * time.Second)
	for lockRefs(&uc.locks, "u1") < 2 {
		if time.Now().After(deadline) {
			unlock()
			t.Fatal("second start never queued on the user lock")
		}
		time.Sleep(time.Millisecond)
	}

	// Stop A while B waits, ten minutes after B arrived.
	c.Advance(10 * time.Minute)
	if err := first.Stop(c.Now()); err != nil {
		t.Fatalf("Stop A: %v", err)
	}
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update A: %v", err)
	}
	unlock()

	res := <-done
	if res.err != nil {
		t.Fatalf("Start B: %v", res.err)
	}
	if res.entry.StartTime.Before(*first.EndTime) {
		t.Fatalf("expected B to start at or after A's end %v, got %v", *first.EndTime, res.entry.StartTime)
	}
}

func TestStart_UsersAreIndependent(t *testing.T) {
	uc, _, _ := newTracker(t)
	ctx := context.Background()
	if _, err := uc.Start(ctx, "u1", "Design"); err != nil {
		t.Fatalf("u1 Start: %v", err)
	}
	if _, err := uc.Start(ctx, "u2", "Design"); err != nil {
		t.Fatalf("u2 Start: %v", err)
	}
}

func TestStop_TwiceRejected(t *testing.T) {
	uc, c, _ := newTracker(t)
	ctx := context.Background()
	_, _ = uc.Start(ctx, "u1", "Design")
	c.Advance(time.Second)
	if _, err := uc.Stop(ctx, "u1"); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if _, err := uc.Stop(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStop_IdleIsNotFound(t *testing.T) {
	uc, _, _ := newTracker(t)
	if _, err := uc.Stop(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStop_DurationMatchesClock(t *testing.T) {
	for _, d := range []time.Duration{0, time.Millisecond, 90 * time.Minute, 49 * time.Hour} {
		uc, c, _ := newTracker(t)
		ctx := context.Background()
		started, _ := uc.Start(ctx, "u1", "Design")
		c.Advance(d)
		stopped, err := uc.Stop(ctx, "u1")
		if err != nil {
			t.Fatalf("%v: Stop: %v", d, err)
		}
		if *stopped.DurationMS != d.Milliseconds() {
			t.Errorf("%v: expected %d ms, got %d", d, d.Milliseconds(), *stopped.DurationMS)
		}
		if !stopped.EndTime.Equal(started.StartTime.Add(d)) {
			t.Errorf("%v: expected end %v, got %v", d, started.StartTime.Add(d), stopped.EndTime)
		}
	}
}

func TestTerminalImmutability(t *testing.T) {
	uc, c, store := newTracker(t)
	ctx := context.Background()
	started, _ := uc.Start(ctx, "u1", "Design")
	c.Advance(10 * time.Minute)
	stopped, _ := uc.Stop(ctx, "u1")

	for i := 0; i < 3; i++ {
		c.Advance(time.Hour)
		if _, err := uc.UpdateDescription(ctx, "u1", started.ID, fmt.Sprintf("note %d", i)); err != nil {
			t.Fatalf("UpdateDescription: %v", err)
		}
		got, _ := store.FindByID(ctx, "u1", started.ID)
		if got.IsRunning || !got.StartTime.Equal(stopped.StartTime) || !got.EndTime.Equal(*stopped.EndTime) || *got.DurationMS != *stopped.DurationMS {
			t.Fatalf("terminal fields changed after update %d: %+v", i, got)
		}
		if got.Description != fmt.Sprintf("note %d", i) {
			t.Errorf("expected description note %d, got %q", i, got.Description)
		}
	}
}

func TestUpdateDescription_RunningEntryAndTrim(t *testing.T) {
	uc, _, _ := newTracker(t)
	ctx := context.Background()
	started, _ := uc.Start(ctx, "u1", "Design")

	updated, err := uc.UpdateDescription(ctx, "u1", started.ID, "  wireframes  ")
	if err != nil {
		t.Fatalf("UpdateDescription: %v", err)
	}
	if updated.Description != "wireframes" || !updated.IsRunning {
		t.Fatalf("unexpected entry: %+v", updated)
	}
	current, _ := uc.Current(ctx, "u1")
	if current == nil || current.Description != "wireframes" {
		t.Fatalf("expected running entry with description, got %+v", current)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	uc, _, store := newTracker(t)
	ctx := context.Background()
	entry, _ := uc.Start(ctx, "u1", "Design")

	if _, err := uc.UpdateDescription(ctx, "u2", entry.ID, "mine now"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateDescription: expected ErrNotFound, got %v", err)
	}
	if err := uc.DeleteEntry(ctx, "u2", entry.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DeleteEntry: expected ErrNotFound, got %v", err)
	}
	if got, _ := store.FindByID(ctx, "u2", entry.ID); got != nil {
		t.Fatalf("FindByID leaked entry: %+v", got)
	}
	got, _ := store.FindByID(ctx, "u1", entry.ID)
	if got == nil || got.Description != "" {
		t.Fatalf("owner's entry changed: %+v", got)
	}
	history, _ := uc.History(ctx, "u2")
	if len(history) != 0 {
		t.Fatalf("u2 history leaked %d entries", len(history))
	}
}

func TestDeleteEntry_RunningIsImplicitCancel(t *testing.T) {
	uc, _, _ := newTracker(t)
	ctx := context.Background()
	entry, _ := uc.Start(ctx, "u1", "Design")

	if err := uc.DeleteEntry(ctx, "u1", entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	current, err := uc.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != nil {
		t.Fatalf("expected idle after deleting running entry, got %+v", current)
	}
	if err := uc.DeleteEntry(ctx, "u1", entry.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := uc.Start(ctx, "u1", "Design"); err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
}

func TestHistory_BoundAndOrder(t *testing.T) {
	uc, c, _ := newTracker(t)
	ctx := context.Background()
	var starts []time.Time
	for i := 0; i < 15; i++ {
		e, err := uc.Start(ctx, "u1", fmt.Sprintf("P%d", i))
		if err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		starts = append(starts, e.StartTime)
		c.Advance(time.Minute)
		if _, err := uc.Stop(ctx, "u1"); err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
		c.Advance(time.Minute)
	}

	history, err := uc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(history))
	}
	for i, e := range history {
		if want := starts[14-i]; !e.StartTime.Equal(want) {
			t.Errorf("entry %d: expected start %v, got %v", i, want, e.StartTime)
		}
	}
}

func TestHistory_EmptyIsNonNil(t *testing.T) {
	uc, _, _ := newTracker(t)
	history, err := uc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", history)
	}
}

func TestBlankUserIDRejected(t *testing.T) {
	uc, _, _ := newTracker(t)
	if _, err := uc.Current(context.Background(), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMissingDependencies(t *testing.T) {
	uc := &TrackerUseCase{}
	if _, err := uc.Start(context.Background(), "u1", "Design"); err == nil {
		t.Fatal("expected error for uninitialized use case")
	}
}

// failingStore fails every call with err.
type failingStore struct {
	ports.TimeEntryStore
	err error
}

func (f failingStore) FindRunning(context.Context, string) (*domain.TimeEntry, error) {
	return nil, f.err
}
func (f failingStore) FindByID(context.Context, string, string) (*domain.TimeEntry, error) {
	return nil, f.err
}
func (f failingStore) ListByUser(context.Context, string, int) ([]domain.TimeEntry, error) {
	return nil, f.err
}

func TestStoreFailuresAreInfrastructure(t *testing.T) {
	cause := errors.New("connection refused")
	uc := &TrackerUseCase{
		Log:   slog.New(slog.DiscardHandler),
		Store: failingStore{err: cause},
		Clock: clock.Fake(t0),
	}
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["start"] = uc.Start(ctx, "u1", "Design")
	_, checks["stop"] = uc.Stop(ctx, "u1")
	_, checks["current"] = uc.Current(ctx, "u1")
	_, checks["history"] = uc.History(ctx, "u1")
	_, checks["describe"] = uc.UpdateDescription(ctx, "u1", "e1", "x")
	checks["delete"] = uc.DeleteEntry(ctx, "u1", "e1")

	for op, err := range checks {
		if !errors.Is(err, domain.ErrInfrastructure) || !errors.Is(err, cause) {
			t.Errorf("%s: expected infrastructure error wrapping cause, got %v", op, err)
		}
	}
}

// slowStore blocks until the operation context expires.
type slowStore struct {
	ports.TimeEntryStore
}

func (slowStore) FindRunning(ctx context.Context, _ string) (*domain.TimeEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOperationTimeout(t *testing.T) {
	uc := &TrackerUseCase{
		Log:     slog.New(slog.DiscardHandler),
		Store:   slowStore{},
		Clock:   clock.Fake(t0),
		Timeout: 10 * time.Millisecond,
	}
	_, err := uc.Current(context.Background(), "u1")
	if !errors.Is(err, domain.ErrInfrastructure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected infrastructure timeout, got %v", err)
	}
}
