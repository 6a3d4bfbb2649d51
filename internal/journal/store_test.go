package journal

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := openTestStore(t)
	s.RunEvent("run-1", "started", 0)
	s.StepTransition("run-1", 0, "command", "alpha", "bash mission")
	s.StepTransition("run-1", 1, "voice", "beta", "yes")
	s.RunEvent("run-1", "completed", 2)

	entries, err := s.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	// Newest first.
	if entries[0].Kind != "completed" {
		t.Fatalf("first entry kind = %q, want completed", entries[0].Kind)
	}
	if entries[2].Trigger != "command" || entries[2].Input != "bash mission" {
		t.Fatalf("step row = %+v", entries[2])
	}
}

func TestListRunOrdersOldestFirst(t *testing.T) {
	s := openTestStore(t)
	s.RunEvent("run-a", "started", 0)
	s.StepTransition("run-a", 0, "command", "alpha", "go")
	s.RunEvent("run-b", "started", 0)

	entries, err := s.ListRun(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("ListRun: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Kind != "started" || entries[1].Kind != "step" {
		t.Fatalf("order wrong: %+v", entries)
	}
}

func TestListDefaultLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 60; i++ {
		s.RunEvent("run-x", "reset", i)
	}
	entries, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 50 {
		t.Fatalf("entries = %d, want default cap of 50", len(entries))
	}
}
