// Package storetest is a conformance suite for ports.TimeEntryStore
// implementations. Each adapter runs it from its own tests; the MySQL adapter
// runs it from the e2e suite.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"timetracker/internal/domain"
	"timetracker/internal/ports"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) ports.TimeEntryStore

var base = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ports.TimeEntryStore)
	}{
		{"InsertAssignsID", testInsertAssignsID},
		{"SecondRunningInsertConflicts", testSecondRunningInsertConflicts},
		{"ConcurrentRunningInsertsOneWins", testConcurrentRunningInserts},
		{"StopFreesRunningSlot", testStopFreesRunningSlot},
		{"TerminalLifecycleFrozen", testTerminalLifecycleFrozen},
		{"OwnershipIsolation", testOwnershipIsolation},
		{"UpdateMissingIsNotFound", testUpdateMissingIsNotFound},
		{"DeleteRunningEntry", testDeleteRunningEntry},
		{"ListByUserOrderAndLimit", testListByUserOrderAndLimit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func running(t *testing.T, userID, project string, start time.Time) domain.TimeEntry {
	t.Helper()
	e, err := domain.NewRunningEntry(userID, project, start)
	if err != nil {
		t.Fatalf("NewRunningEntry: %v", err)
	}
	return e
}

func insert(t *testing.T, s ports.TimeEntryStore, e domain.TimeEntry) domain.TimeEntry {
	t.Helper()
	if _, err := s.Insert(context.Background(), &e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return e
}

// insertStopped inserts a running entry and stops it, since a store only ever
// sees terminal entries through Update.
func insertStopped(t *testing.T, s ports.TimeEntryStore, userID string, start time.Time, d time.Duration) domain.TimeEntry {
	t.Helper()
	e := insert(t, s, running(t, userID, "Project", start))
	if err := e.Stop(start.Add(d)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Update(context.Background(), e); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return e
}

func testInsertAssignsID(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	e := running(t, "u1", "Design", base)
	id, err := s.Insert(ctx, &e)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == "" || e.ID != id {
		t.Fatalf("expected assigned id on entry, got id=%q entry.ID=%q", id, e.ID)
	}

	got, err := s.FindRunning(ctx, "u1")
	if err != nil {
		t.Fatalf("FindRunning: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("expected running entry %s, got %+v", id, got)
	}
	if got.ProjectName != "Design" || !got.StartTime.Equal(base) || !got.IsRunning {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.EndTime != nil || got.DurationMS != nil {
		t.Errorf("running entry has end/duration: %+v", got)
	}
}

func testSecondRunningInsertConflicts(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	first := insert(t, s, running(t, "u1", "Design", base))

	second := running(t, "u1", "Other", base.Add(time.Minute))
	_, err := s.Insert(ctx, &second)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.FindRunning(ctx, "u1")
	if err != nil {
		t.Fatalf("FindRunning: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("existing running entry changed: %+v", got)
	}

	// Other users are independent.
	insert(t, s, running(t, "u2", "Design", base))
}

func testConcurrentRunningInserts(t *testing.T, s ports.TimeEntryStore) {
	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		others    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _ := domain.NewRunningEntry("u1", fmt.Sprintf("P%d", i), base.Add(time.Duration(i)*time.Millisecond))
			_, err := s.Insert(context.Background(), &e)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()
	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if succeeded != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, succeeded, conflicts)
	}
}

func testStopFreesRunningSlot(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	e := insertStopped(t, s, "u1", base, 90*time.Minute)

	got, err := s.FindRunning(ctx, "u1")
	if err != nil {
		t.Fatalf("FindRunning: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no running entry, got %+v", got)
	}

	stored, err := s.FindByID(ctx, "u1", e.ID)
	if err != nil || stored == nil {
		t.Fatalf("FindByID: %v %+v", err, stored)
	}
	if stored.IsRunning || stored.EndTime == nil || stored.DurationMS == nil {
		t.Fatalf("expected terminal entry, got %+v", stored)
	}
	if *stored.DurationMS != (90 * time.Minute).Milliseconds() {
		t.Errorf("expected duration %d, got %d", (90 * time.Minute).Milliseconds(), *stored.DurationMS)
	}
	if !stored.EndTime.Equal(base.Add(90 * time.Minute)) {
		t.Errorf("expected end %v, got %v", base.Add(90*time.Minute), stored.EndTime)
	}

	insert(t, s, running(t, "u1", "Next", base.Add(2*time.Hour)))
}

func testTerminalLifecycleFrozen(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	e := insertStopped(t, s, "u1", base, time.Hour)

	// A stale copy still claiming to be running must not resurrect the row.
	stale := e
	stale.IsRunning = true
	stale.EndTime = nil
	stale.DurationMS = nil
	stale.Description = "annotated"
	stale.UpdatedAt = base.Add(2 * time.Hour)
	if err := s.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.FindByID(ctx, "u1", e.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID: %v %+v", err, got)
	}
	if got.IsRunning || got.EndTime == nil || got.DurationMS == nil || *got.DurationMS != time.Hour.Milliseconds() {
		t.Fatalf("terminal fields changed: %+v", got)
	}
	if got.Description != "annotated" {
		t.Errorf("expected description to persist, got %q", got.Description)
	}
	if running, _ := s.FindRunning(ctx, "u1"); running != nil {
		t.Fatalf("stale update made the entry running again: %+v", running)
	}
}

func testOwnershipIsolation(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	e := insert(t, s, running(t, "u1", "Design", base))

	got, err := s.FindByID(ctx, "u2", e.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got != nil {
		t.Fatalf("u2 read u1's entry: %+v", got)
	}

	foreign := e
	foreign.UserID = "u2"
	foreign.Description = "hijack"
	if err := s.Update(ctx, foreign); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}

	removed, err := s.Delete(ctx, "u2", e.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed {
		t.Fatal("u2 deleted u1's entry")
	}

	own, _ := s.FindByID(ctx, "u1", e.ID)
	if own == nil || own.Description != "" {
		t.Fatalf("owner's entry changed: %+v", own)
	}
}

func testUpdateMissingIsNotFound(t *testing.T, s ports.TimeEntryStore) {
	e := running(t, "u1", "Design", base)
	e.ID = "00000000-0000-0000-0000-000000000000"
	if err := s.Update(context.Background(), e); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteRunningEntry(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	e := insert(t, s, running(t, "u1", "Design", base))

	removed, err := s.Delete(ctx, "u1", e.ID)
	if err != nil || !removed {
		t.Fatalf("Delete: removed=%v err=%v", removed, err)
	}
	if got, _ := s.FindRunning(ctx, "u1"); got != nil {
		t.Fatalf("expected no running entry after delete, got %+v", got)
	}
	removed, err = s.Delete(ctx, "u1", e.ID)
	if err != nil || removed {
		t.Fatalf("second Delete: removed=%v err=%v", removed, err)
	}
	insert(t, s, running(t, "u1", "Again", base.Add(time.Minute)))
}

func testListByUserOrderAndLimit(t *testing.T, s ports.TimeEntryStore) {
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		insertStopped(t, s, "u1", base.Add(time.Duration(i)*time.Hour), time.Minute)
	}
	insertStopped(t, s, "u2", base.Add(100*time.Hour), time.Minute)

	got, err := s.ListByUser(ctx, "u1", domain.HistoryLimit)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != domain.HistoryLimit {
		t.Fatalf("expected %d entries, got %d", domain.HistoryLimit, len(got))
	}
	for i, e := range got {
		if e.UserID != "u1" {
			t.Fatalf("entry %d belongs to %s", i, e.UserID)
		}
		want := base.Add(time.Duration(14-i) * time.Hour)
		if !e.StartTime.Equal(want) {
			t.Errorf("entry %d: expected start %v, got %v", i, want, e.StartTime)
		}
	}

	none, err := s.ListByUser(ctx, "nobody", domain.HistoryLimit)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no entries, got %d", len(none))
	}
}
