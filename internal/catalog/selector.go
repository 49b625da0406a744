package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mediagrab/api/internal/model"
)

// MediaExtensions are the container extensions accepted as the artifact of a
// format-selector download.
var MediaExtensions = []string{".mp4", ".mkv", ".webm", ".mov", ".flv", ".m4a", ".aac", ".opus", ".ogg", ".mp3"}

// Selection is a validated format selector, ready to be turned into
// extractor arguments.
type Selection struct {
	Token string
	// Kind is empty for catalog identifiers, whose kind is only known to the
	// catalog that issued them.
	Kind model.FormatKind
	// Expr is passed to the extractor's format option.
	Expr string
	// AudioCodec is set when the extractor should extract and transcode audio.
	AudioCodec   string
	AudioQuality string
	Preset       bool
}

// ExtractAudio reports whether the selection uses audio extraction mode.
func (s Selection) ExtractAudio() bool {
	return s.AudioCodec != ""
}

// Extensions lists the artifact extensions this selection may produce.
func (s Selection) Extensions() []string {
	if s.ExtractAudio() {
		return []string{"." + s.AudioCodec}
	}
	return MediaExtensions
}

var catalogIDPattern = regexp.MustCompile(`^[0-9]{1,6}(\+[0-9]{1,6})?$`)

var videoPresets = map[string]int{
	"2160p": 2160,
	"1440p": 1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

var audioCodecs = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"opus": true,
}

var audioBitrates = map[string]bool{
	"128": true,
	"192": true,
	"256": true,
	"320": true,
}

// Resolve validates token against the catalog identifier shape and the fixed
// preset table. Anything else is rejected, since the result becomes part of
// an extractor command line.
func Resolve(token string) (Selection, error) {
	if token == "best" {
		return Selection{Token: token, Kind: model.FormatKindVideo, Expr: "bv*+ba/b", Preset: true}, nil
	}
	if height, ok := videoPresets[token]; ok {
		return Selection{
			Token:  token,
			Kind:   model.FormatKindVideo,
			Expr:   fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]", height, height),
			Preset: true,
		}, nil
	}
	if token == "bestaudio" {
		return Selection{Token: token, Kind: model.FormatKindAudio, AudioCodec: "mp3", AudioQuality: "0", Preset: true}, nil
	}
	if sel, ok := resolveAudio(token); ok {
		return sel, nil
	}
	if catalogIDPattern.MatchString(token) {
		return Selection{Token: token, Expr: token}, nil
	}
	return Selection{}, model.NewError(model.CodeInvalidRequest, fmt.Sprintf("unsupported format selector %q", token), nil)
}

// resolveAudio accepts "<codec>" and "<codec>-<kbps>".
func resolveAudio(token string) (Selection, bool) {
	codec, bitrate, hasBitrate := strings.Cut(token, "-")
	if !audioCodecs[codec] {
		return Selection{}, false
	}
	quality := "0"
	if hasBitrate {
		if !audioBitrates[bitrate] {
			return Selection{}, false
		}
		quality = bitrate + "K"
	}
	return Selection{
		Token:        token,
		Kind:         model.FormatKindAudio,
		AudioCodec:   codec,
		AudioQuality: quality,
		Preset:       true,
	}, true
}

// ValidSelector reports whether token is acceptable in a request, including
// the discovery sentinel.
func ValidSelector(token string) bool {
	if token == model.FormatAuto {
		return true
	}
	_, err := Resolve(token)
	return err == nil
}

// Presets lists every preset token, sorted.
func Presets() []string {
	presets := []string{"best", "bestaudio"}
	for token := range videoPresets {
		presets = append(presets, token)
	}
	for codec := range audioCodecs {
		presets = append(presets, codec)
		for bitrate := range audioBitrates {
			presets = append(presets, codec+"-"+bitrate)
		}
	}
	sort.Strings(presets)
	return presets
}
