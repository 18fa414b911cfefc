package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"timetracker/internal/domain"
)

// formatDuration renders d as H:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func printEntry(w io.Writer, e domain.TimeEntry, now time.Time) {
	state := "stopped"
	if e.IsRunning {
		state = "running"
	}
	fmt.Fprintf(w, "%s  %s  %s  %s\n", e.ID, state, formatDuration(e.Elapsed(now)), e.ProjectName)
	if e.Description != "" {
		fmt.Fprintf(w, "  %s\n", e.Description)
	}
}

func printHistory(w io.Writer, entries []domain.TimeEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tSTARTED\tDURATION\tDESCRIPTION")
	for _, e := range entries {
		dur := formatDuration(e.Elapsed(now))
		if e.IsRunning {
			dur += " (running)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.ProjectName, e.StartTime.Local().Format("2006-01-02 15:04"), dur, e.Description)
	}
	_ = tw.Flush()
}
