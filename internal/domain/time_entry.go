package domain

import (
	"strings"
	"time"
)

// HistoryLimit is the fixed page size of a user's history view.
const HistoryLimit = 10

// TimeEntry represents one recorded or in-progress work session.
type TimeEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	ProjectName string     `json:"projectName"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	DurationMS  *int64     `json:"duration"` // milliseconds, nil while running
	IsRunning   bool       `json:"isRunning"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewRunningEntry builds an unsaved entry for userID that started at now.
// Timestamps are kept at millisecond precision, the resolution of durations.
// The project name is trimmed; an empty result is rejected.
func NewRunningEntry(userID, projectName string, now time.Time) (TimeEntry, error) {
	projectName, err := ProjectName(projectName)
	if err != nil {
		return TimeEntry{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return TimeEntry{}, InvalidInputf("user id is required")
	}
	now = now.UTC().Truncate(time.Millisecond)
	return TimeEntry{
		UserID:      userID,
		ProjectName: projectName,
		StartTime:   now,
		IsRunning:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ProjectName trims name and rejects an empty result.
func ProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", InvalidInputf("project name is required")
	}
	return name, nil
}

// Stop closes a running entry at now. An end time earlier than the start
// (wall clock stepped backwards) is clamped to the start so the duration is
// never negative. Stopping a terminal entry is a conflict.
func (e *TimeEntry) Stop(now time.Time) error {
	if !e.IsRunning {
		return Conflictf("time entry %s is already stopped", e.ID)
	}
	end := now.UTC().Truncate(time.Millisecond)
	if end.Before(e.StartTime) {
		end = e.StartTime
	}
	duration := end.Sub(e.StartTime).Milliseconds()
	e.EndTime = &end
	e.DurationMS = &duration
	e.IsRunning = false
	e.UpdatedAt = end
	return nil
}

// Describe replaces the description. Lifecycle fields are untouched.
func (e *TimeEntry) Describe(text string, now time.Time) {
	e.Description = strings.TrimSpace(text)
	e.UpdatedAt = now.UTC().Truncate(time.Millisecond)
}

// Duration returns the recorded duration, or zero while running.
func (e TimeEntry) Duration() time.Duration {
	if e.DurationMS == nil {
		return 0
	}
	return time.Duration(*e.DurationMS) * time.Millisecond
}

// Elapsed returns the time spent so far: the recorded duration for a
// terminal entry, now-start for a running one.
func (e TimeEntry) Elapsed(now time.Time) time.Duration {
	if !e.IsRunning {
		return e.Duration()
	}
	if now.Before(e.StartTime) {
		return 0
	}
	return now.Sub(e.StartTime)
}

// MergeUpdate applies the mutable fields of next onto stored, keeping
// lifecycle fields frozen once stored is terminal. Stores that cannot express
// this in a single statement use it to emulate the SQL stores.
func MergeUpdate(stored, next TimeEntry) TimeEntry {
	out := stored
	out.Description = next.Description
	out.UpdatedAt = next.UpdatedAt
	if stored.IsRunning && !next.IsRunning {
		out.IsRunning = false
		out.EndTime = next.EndTime
		out.DurationMS = next.DurationMS
	}
	return out
}
