package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	return ws
}

func TestNewJobIDUniqueUnderFrozenClock(t *testing.T) {
	ws := newTestWorkspace(t)
	frozen := time.UnixMilli(1718000000123)
	ws.now = func() time.Time { return frozen }

	const n = 64
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = ws.NewJobID("standup.mp4")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		if !strings.HasPrefix(id, "1718000000123-") || !strings.HasSuffix(id, "-standup.mp4") {
			t.Fatalf("unexpected id shape %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestCreateNeverOverwrites(t *testing.T) {
	ws := newTestWorkspace(t)

	path, err := ws.Create("a.mp4", strings.NewReader("first"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := ws.Create("a.mp4", strings.NewReader("second")); err == nil {
		t.Fatal("expected error on name collision")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "first" {
		t.Fatalf("content = %q, want first", data)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.mp3", `a\b.mp3`} {
		if _, err := ws.Resolve(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resolve(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
	got, err := ws.Resolve("x.mp3")
	if err != nil || got != filepath.Join(ws.Dir(), "x.mp3") {
		t.Fatalf("Resolve(x.mp3) = %q, %v", got, err)
	}
}

func TestRemoveIgnoresMissing(t *testing.T) {
	ws := newTestWorkspace(t)
	path, _ := ws.Create("gone.mp4", strings.NewReader("x"))

	if err := ws.Remove(path, "", filepath.Join(ws.Dir(), "never-existed")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present, stat err = %v", err)
	}
}

func TestSweepRespectsRetention(t *testing.T) {
	ws := newTestWorkspace(t)
	oldPath, _ := ws.Create("old.mp3", strings.NewReader("old"))
	newPath, _ := ws.Create("new.mp3", strings.NewReader("new"))

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}

	cleaned, err := ws.Sweep(24 * time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("cleaned = %d, want 1", cleaned)
	}
	if _, err := os.Stat(oldPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("old file should be removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatal("new file should remain")
	}

	if n, _ := ws.Sweep(0); n != 0 {
		t.Fatalf("Sweep(0) cleaned %d, want 0", n)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"meeting.mp4":           "meeting.mp4",
		"Team Sync (final).mp4": "Team_Sync__final_.mp4",
		"../../etc/passwd":      "passwd",
		`C:\videos\standup.mp4`: "standup.mp4",
		"":                      "upload",
		"..":                    "upload",
		"réunion.mp4":           "r_union.mp4",
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLongNamesFitInJobID(t *testing.T) {
	ws := newTestWorkspace(t)
	long := strings.Repeat("a", 260) + ".mp4"

	name := SanitizeName(long)
	if len(name) != maxNameLen || !strings.HasSuffix(name, ".mp4") {
		t.Fatalf("SanitizeName(long) = %q (%d bytes)", name, len(name))
	}

	id := ws.NewJobID(long)
	if _, err := ws.Create(id, strings.NewReader("v")); err != nil {
		t.Fatalf("Create(%d-byte id) error = %v", len(id), err)
	}
}

func TestSwapExt(t *testing.T) {
	if got := SwapExt("/w/1-a-meeting.mp4", ".mp3"); got != "/w/1-a-meeting.mp3" {
		t.Fatalf("SwapExt = %q", got)
	}
}
