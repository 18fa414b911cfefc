package migrate

import (
	"strings"
	"testing"
)

func TestParseMigration(t *testing.T) {
	cases := []struct {
		file        string
		wantVersion int
		wantName    string
		wantErr     bool
	}{
		{"0001_create_time_entries.sql", 1, "create_time_entries", false},
		{"0042_add_index.sql", 42, "add_index", false},
		{"_missing.sql", 0, "", true},
		{"create.sql", 0, "", true},
		{"abc_create.sql", 0, "", true},
		{"0000_zero.sql", 0, "", true},
		{"0003_.sql", 0, "", true},
		{"0004_notes.txt", 0, "", true},
	}
	for _, tc := range cases {
		got, err := parseMigration(tc.file)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %+v", tc.file, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.file, err)
			continue
		}
		if got.Version != tc.wantVersion || got.Name != tc.wantName || got.File != tc.file {
			t.Errorf("%s: expected %d/%s, got %+v", tc.file, tc.wantVersion, tc.wantName, got)
		}
	}
}

func TestList_EmbeddedMigrations(t *testing.T) {
	migrations, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Fatalf("migrations out of order: %+v", migrations)
		}
	}

	schema, err := migrations[0].SQL()
	if err != nil {
		t.Fatalf("SQL: %v", err)
	}
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS time_entries", "running_user_id", "UNIQUE KEY"} {
		if !strings.Contains(schema, want) {
			t.Errorf("expected %q in first migration", want)
		}
	}
}

func TestPending(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "create_time_entries"},
		{Version: 2, Name: "add_index"},
		{Version: 3, Name: "add_tags"},
	}
	got := Pending(all, map[int]string{1: "create_time_entries", 3: "add_tags"})
	if len(got) != 1 || got[0].Version != 2 {
		t.Fatalf("expected only version 2 pending, got %+v", got)
	}
	if got := Pending(all, nil); len(got) != 3 {
		t.Fatalf("expected all pending on a fresh database, got %+v", got)
	}
}
