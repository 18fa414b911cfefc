package domain

// TimerState is a user's timer state: Idle, or Running with the id of the
// single running entry. It is derived from the stored isRunning flag.
type TimerState struct {
	entryID string
}

// Idle is the state of a user with no running entry.
var Idle = TimerState{}

// Running returns the state of a user whose running entry is entryID.
func Running(entryID string) TimerState { return TimerState{entryID: entryID} }

// StateOf derives the state from the result of a running-entry lookup.
func StateOf(running *TimeEntry) TimerState {
	if running == nil || !running.IsRunning {
		return Idle
	}
	return Running(running.ID)
}

func (s TimerState) IsRunning() bool { return s.entryID != "" }

// EntryID returns the running entry id, or "" when Idle.
func (s TimerState) EntryID() string { return s.entryID }

func (s TimerState) String() string {
	if !s.IsRunning() {
		return "idle"
	}
	return "running(" + s.entryID + ")"
}
