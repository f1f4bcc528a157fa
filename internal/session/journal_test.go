package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

func TestNewJournal_DefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	j := NewJournal("")
	want := filepath.Join("/tmp/xdg-state", appDirName, journalFileName)
	if got := j.Path(); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestJournal_LoadMissing(t *testing.T) {
	j := NewJournal(t.TempDir())
	attempts, err := j.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("expected no attempts, got %d", len(attempts))
	}
}

func TestJournal_SaveSkipsPendingAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)

	done := t0.Add(time.Second)
	newestFirst := []*Attempt{
		{ID: "3", Status: Pending, StartedAt: t0},
		{ID: "2", Status: Declined, Result: "DECLINED", StartedAt: t0, CompletedAt: &done},
		{ID: "1", Status: Approved, Result: "APPROVED", StartedAt: t0, CompletedAt: &done},
	}
	if err := j.Save(newestFirst); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	got, err := j.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("expected oldest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Status != Declined {
		t.Errorf("status = %v, want declined", got[1].Status)
	}
}

func TestJournal_LoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, journalFileName), []byte(`{"version":99,"attempts":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJournal(dir).Load(); err == nil {
		t.Error("expected error for newer journal version")
	}
}

func TestJournal_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, journalFileName), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJournal(dir).Load(); err == nil {
		t.Error("expected error for corrupt journal")
	}
}

func TestStoreRestore(t *testing.T) {
	s := NewStore(2)
	fired := 0
	s.OnChange(func(Event) { fired++ })

	done := t0
	n := s.Restore([]*Attempt{
		{ID: "a", Status: Approved, CompletedAt: &done},
		{ID: "b", Status: Pending},
		nil,
		{ID: "c", Status: Failed, Code: "SDK_ERROR", CompletedAt: &done},
		{ID: "d", Status: Cancelled, CompletedAt: &done},
	})
	if n != 3 {
		t.Errorf("Restore() = %d, want 3", n)
	}
	if fired != 0 {
		t.Errorf("Restore should not notify listeners, got %d events", fired)
	}
	all := s.GetAll()
	if len(all) != 2 || all[0].ID != "d" || all[1].ID != "c" {
		t.Errorf("expected [d c] after eviction, got %v", ids(all))
	}
}

func TestJournal_PersistSavesOnResolution(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	s := NewStore(10)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- j.Persist(ctx, s) }()

	// Wait for the listener to attach before generating events.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		n := len(s.listeners)
		s.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Persist never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.OnEvent(started(1, "c1"))
	s.OnEvent(resolved(1, verification.Completed("APPROVED"), "callback"))

	deadline = time.Now().Add(2 * time.Second)
	for {
		got, err := j.Load()
		if err == nil && len(got) == 1 && got[0].Status == Approved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal not written: %v %v", got, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Persist() returned %v", err)
	}
}

func ids(attempts []*Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.ID
	}
	return out
}
