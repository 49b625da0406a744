// Package artifact locates the file a finished job produced and serves it
// back under a lease.
package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/mediagrab/api/internal/model"
	"github.com/mediagrab/api/internal/workspace"
)

// Resolve returns the path of the single file in ws whose extension is one of
// exts. Zero candidates is CodeArtifactNotFound; more than one is
// CodeAmbiguousArtifact and is never narrowed down by guessing.
func Resolve(ws *workspace.Workspace, exts []string) (string, error) {
	entries, err := ws.Entries()
	if err != nil {
		return "", model.NewError(model.CodeArtifactNotFound, "download directory could not be listed", err)
	}

	var matches []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || Intermediate(entry.Name()) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if slices.Contains(exts, ext) {
			matches = append(matches, entry.Name())
		}
	}

	switch len(matches) {
	case 0:
		return "", model.NewError(model.CodeArtifactNotFound,
			fmt.Sprintf("no %s file was produced for job %s", strings.Join(exts, "/"), ws.ID), nil)
	case 1:
		return filepath.Join(ws.BaseDir, matches[0]), nil
	default:
		sort.Strings(matches)
		return "", model.NewError(model.CodeAmbiguousArtifact,
			fmt.Sprintf("%d candidate files were produced for job %s", len(matches), ws.ID), nil).
			WithDetail(strings.Join(matches, "\n"))
	}
}

// intermediatePattern matches the extractor's in-progress names: partial
// downloads, merge scratch files and per-format pieces such as X.f137.mp4.
var intermediatePattern = regexp.MustCompile(`\.(part|temp|ytdl|f[0-9]+)(\.|-|$)`)

// Intermediate reports whether name is a file the extractor is still writing
// or will remove once the job finishes.
func Intermediate(name string) bool {
	return intermediatePattern.MatchString(strings.ToLower(name))
}

// ContentType maps an artifact file name to its media type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".mp4":
		return "video/mp4"
	case ".srt":
		return "application/x-subrip"
	case ".vtt":
		return "text/vtt"
	case ".ass":
		return "text/x-ssa"
	default:
		return "application/octet-stream"
	}
}
