// Package catalog turns the extractor's format listing into selectable
// encodings and validates the format selectors callers may submit.
package catalog

import (
	"strings"

	"github.com/mediagrab/api/internal/model"
)

// Parse converts a raw `-F` listing into a catalog partitioned by kind.
// Lines that do not look like a format row are skipped. Order within each
// group is the listing's order.
//
// Classification is a text sniff: a row whose description mentions "audio"
// in any case is audio, everything else is video. Unusual encodings may land
// in the wrong group.
func Parse(listing string) model.FormatCatalog {
	catalog := model.FormatCatalog{
		VideoFormats: []model.FormatDescriptor{},
		AudioFormats: []model.FormatDescriptor{},
	}

	for _, line := range strings.Split(listing, "\n") {
		desc, ok := ParseLine(line)
		if !ok {
			continue
		}
		if desc.Kind == model.FormatKindAudio {
			catalog.AudioFormats = append(catalog.AudioFormats, desc)
		} else {
			catalog.VideoFormats = append(catalog.VideoFormats, desc)
		}
	}

	return catalog
}

// ParseLine parses one listing row. It reports false for headers, separators
// and any row without a numeric identifier followed by a description.
func ParseLine(line string) (model.FormatDescriptor, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !isNumeric(fields[0]) {
		return model.FormatDescriptor{}, false
	}

	label := strings.Join(fields[1:], " ")
	kind := model.FormatKindVideo
	if strings.Contains(strings.ToLower(label), "audio") {
		kind = model.FormatKindAudio
	}

	return model.FormatDescriptor{
		ID:    fields[0],
		Kind:  kind,
		Label: label,
	}, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
