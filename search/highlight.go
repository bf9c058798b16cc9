package search

import (
	"strings"
)

// HighlightConfig carries the request-level highlighting/cropping knobs
// (§6 "attributesToHighlight, highlightPreTag, highlightPostTag,
// attributesToCrop, cropLength, cropMarker").
type HighlightConfig struct {
	Attributes     map[string]struct{} // nil/empty means none requested
	PreTag         string
	PostTag        string
	CropAttributes map[string]struct{}
	CropLength     int
	CropMarker     string
}

func DefaultHighlightConfig() HighlightConfig {
	return HighlightConfig{PreTag: "<em>", PostTag: "</em>", CropLength: 10, CropMarker: "…"}
}

// Highlight wraps every case-insensitive occurrence of any of words in s
// with cfg's pre/post tags. Occurrences are found independently per word
// and overlapping spans are not merged: a span starting inside one already
// wrapped is skipped, so a region matched by two query words at once is
// wrapped only by the span that starts first.
func Highlight(s string, words []string, cfg HighlightConfig) string {
	if len(words) == 0 || cfg.PreTag == "" && cfg.PostTag == "" {
		return s
	}
	lower := strings.ToLower(s)
	type span struct{ start, end int }
	var spans []span
	for _, w := range words {
		if w == "" {
			continue
		}
		wl := strings.ToLower(w)
		start := 0
		for {
			idx := strings.Index(lower[start:], wl)
			if idx < 0 {
				break
			}
			from := start + idx
			to := from + len(wl)
			spans = append(spans, span{from, to})
			start = to
		}
	}
	if len(spans) == 0 {
		return s
	}
	// sort spans by start position so they can be applied left to right.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}

	var out strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp.start < pos {
			continue // overlapping with an already-wrapped span; skip
		}
		out.WriteString(s[pos:sp.start])
		out.WriteString(cfg.PreTag)
		out.WriteString(s[sp.start:sp.end])
		out.WriteString(cfg.PostTag)
		pos = sp.end
	}
	out.WriteString(s[pos:])
	return out.String()
}

// Crop reduces s to a fixed-length window of whitespace-separated words
// around the first occurrence of any of matchWords, with cfg.CropMarker
// prepended/appended where content was trimmed (§6 "attributesToCrop,
// cropLength").
func Crop(s string, matchWords []string, cfg HighlightConfig) string {
	if cfg.CropLength <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= cfg.CropLength {
		return s
	}

	center := 0
	lowerWords := make([]string, len(words))
	for i, w := range words {
		lowerWords[i] = strings.ToLower(w)
	}
outer:
	for i, w := range lowerWords {
		for _, m := range matchWords {
			if strings.Contains(w, strings.ToLower(m)) {
				center = i
				break outer
			}
		}
	}

	half := cfg.CropLength / 2
	start := center - half
	if start < 0 {
		start = 0
	}
	end := start + cfg.CropLength
	if end > len(words) {
		end = len(words)
		start = end - cfg.CropLength
		if start < 0 {
			start = 0
		}
	}

	cropped := strings.Join(words[start:end], " ")
	if start > 0 {
		cropped = cfg.CropMarker + cropped
	}
	if end < len(words) {
		cropped = cropped + cfg.CropMarker
	}
	return cropped
}
