package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mediagrab/api/internal/model"
	"github.com/mediagrab/api/internal/workspace"
)

func newWorkspace(t *testing.T) (*workspace.Manager, *workspace.Workspace) {
	t.Helper()
	m, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ws, err := m.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return m, ws
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestResolve_SingleMatch(t *testing.T) {
	_, ws := newWorkspace(t)
	touch(t, ws.BaseDir, ws.Prefix+"Song.mp3")
	touch(t, ws.BaseDir, ws.Prefix+"Song.en.srt")

	path, err := Resolve(ws, []string{".mp3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != ws.Prefix+"Song.mp3" {
		t.Errorf("resolved %s", path)
	}
}

func TestResolve_NotFound(t *testing.T) {
	_, ws := newWorkspace(t)
	touch(t, ws.BaseDir, ws.Prefix+"Song.en.srt")
	touch(t, ws.BaseDir, ws.Prefix+"Song.mp3.part")

	_, err := Resolve(ws, []string{".mp3"})
	if model.CodeOf(err) != model.CodeArtifactNotFound {
		t.Fatalf("expected ARTIFACT_NOT_FOUND, got %v", err)
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	_, ws := newWorkspace(t)
	touch(t, ws.BaseDir, ws.Prefix+"A.mp4")
	touch(t, ws.BaseDir, ws.Prefix+"B.webm")

	_, err := Resolve(ws, []string{".mp4", ".webm"})
	if model.CodeOf(err) != model.CodeAmbiguousArtifact {
		t.Fatalf("expected AMBIGUOUS_ARTIFACT, got %v", err)
	}
	appErr, _ := model.AsError(err)
	if !strings.Contains(appErr.Detail, "A.mp4") || !strings.Contains(appErr.Detail, "B.webm") {
		t.Errorf("expected candidates in detail, got %q", appErr.Detail)
	}
}

func TestResolve_IgnoresOtherJobs(t *testing.T) {
	m, a := newWorkspace(t)
	b, err := m.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	touch(t, a.BaseDir, a.Prefix+"Mine.mp4")
	touch(t, b.BaseDir, b.Prefix+"Theirs.mp4")
	touch(t, a.BaseDir, "unprefixed.mp4")

	path, err := Resolve(a, []string{".mp4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), a.Prefix) {
		t.Errorf("resolved foreign artifact %s", path)
	}
}

func TestResolve_SkipsDirectories(t *testing.T) {
	_, ws := newWorkspace(t)
	if err := os.Mkdir(filepath.Join(ws.BaseDir, ws.Prefix+"dir.mp4"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := Resolve(ws, []string{".mp4"})
	if model.CodeOf(err) != model.CodeArtifactNotFound {
		t.Fatalf("expected ARTIFACT_NOT_FOUND, got %v", err)
	}
}

func TestResolve_SkipsIntermediateFiles(t *testing.T) {
	_, ws := newWorkspace(t)
	touch(t, ws.BaseDir, ws.Prefix+"Clip.f137.mp4")
	touch(t, ws.BaseDir, ws.Prefix+"Clip.f140.m4a")
	touch(t, ws.BaseDir, ws.Prefix+"Clip.temp.mp4")

	if _, err := Resolve(ws, []string{".mp4", ".m4a"}); model.CodeOf(err) != model.CodeArtifactNotFound {
		t.Fatalf("expected ARTIFACT_NOT_FOUND mid-merge, got %v", err)
	}

	touch(t, ws.BaseDir, ws.Prefix+"Clip.mp4")
	path, err := Resolve(ws, []string{".mp4", ".m4a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != ws.Prefix+"Clip.mp4" {
		t.Errorf("resolved %s", path)
	}
}

func TestIntermediate(t *testing.T) {
	tests := map[string]bool{
		"x-Clip.mp4":             false,
		"x-Clip.en.srt":          false,
		"x-Performance.mp4":      false,
		"x-Clip.mp4.part":        true,
		"x-Clip.temp.mp4":        true,
		"x-Clip.f137.mp4":        true,
		"x-Clip.mp4.part-Frag12": true,
		"x-Clip.mp4.ytdl":        true,
		"x-Clip.TEMP.MP4":        true,
	}
	for name, want := range tests {
		if got := Intermediate(name); got != want {
			t.Errorf("Intermediate(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp3":    "audio/mpeg",
		"a.MP3":    "audio/mpeg",
		"a.m4a":    "audio/mp4",
		"a.webm":   "video/webm",
		"a.mkv":    "video/x-matroska",
		"a.mp4":    "video/mp4",
		"a.en.srt": "application/x-subrip",
		"a.en.vtt": "text/vtt",
		"a.en.ass": "text/x-ssa",
		"a.bin":    "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %s, want %s", name, got, want)
		}
	}
}
