package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewManager_CreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "downloads")

	m, err := NewManager(base)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	info, err := os.Stat(m.BaseDir())
	if err != nil || !info.IsDir() {
		t.Fatalf("expected base dir to exist: %v", err)
	}
	if !filepath.IsAbs(m.BaseDir()) {
		t.Errorf("expected absolute base dir, got %s", m.BaseDir())
	}
}

func TestEnsureBase_ConcurrentCalls(t *testing.T) {
	base := filepath.Join(t.TempDir(), "shared")
	m := &Manager{baseDir: base}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureBase()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureBase raced: %v", err)
		}
	}
}

func TestAllocate_UniquePrefixes(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	const n = 64
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := m.Allocate()
			if err != nil {
				t.Errorf("Allocate: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[ws.Prefix] {
				t.Errorf("duplicate prefix %s", ws.Prefix)
			}
			seen[ws.Prefix] = true
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d prefixes, got %d", n, len(seen))
	}
}

func TestOutputTemplate(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ws, err := m.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	tmpl := ws.OutputTemplate()
	want := filepath.Join(m.BaseDir(), ws.ID+"-"+TitlePlaceholder+"."+ExtPlaceholder)
	if tmpl != want {
		t.Errorf("template = %s, want %s", tmpl, want)
	}
}

func TestOutputTemplate_EscapesPercentInBaseDir(t *testing.T) {
	ws := &Workspace{ID: "id", BaseDir: "/data/100%/dl", Prefix: "id-"}
	if !strings.HasPrefix(ws.OutputTemplate(), "/data/100%%/dl/") {
		t.Errorf("expected escaped percent, got %s", ws.OutputTemplate())
	}
}

func TestEntriesAndRemove_OnlyTouchOwnPrefix(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, _ := m.Allocate()
	b, _ := m.Allocate()

	for _, name := range []string{a.Prefix + "clip.mp4", a.Prefix + "clip.en.srt", b.Prefix + "other.mp4"} {
		if err := os.WriteFile(filepath.Join(m.BaseDir(), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	entries, err := a.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for a, got %d", len(entries))
	}

	if err := a.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	left, _ := os.ReadDir(m.BaseDir())
	if len(left) != 1 || !b.Owns(left[0].Name()) {
		t.Fatalf("expected only b's file to remain, got %v", left)
	}
}

func TestOpen(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ws, _ := m.Allocate()

	reopened, err := m.Open(ws.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if reopened.Prefix != ws.Prefix {
		t.Errorf("prefix mismatch: %s vs %s", reopened.Prefix, ws.Prefix)
	}

	if _, err := m.Open("../etc"); err == nil {
		t.Error("expected non-uuid job id to be rejected")
	}
}

func TestJobIDFromName(t *testing.T) {
	id := "0b6f4f4e-3c1a-4c62-9d4a-2f9f0d6f8a11"
	if got, ok := JobIDFromName(id + "-My_Video.mp4"); !ok || got != id {
		t.Errorf("JobIDFromName = %q, %v", got, ok)
	}
	for _, name := range []string{"", id, id + ".mp4", "not-a-uuid-at-all-but-long-enough-xx-file.mp4"} {
		if _, ok := JobIDFromName(name); ok {
			t.Errorf("JobIDFromName(%q) accepted", name)
		}
	}
}
