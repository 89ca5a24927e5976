// Package directive extracts the single machine-actionable instruction a
// model may embed at the end of an otherwise natural-language response.
//
// The protocol asks the model to finish a turn with a line such as
//
//	ACTION: {"tool": "web_search", "args": {"query": "..."}}
//
// but real model output drifts: the marker gets localized, the JSON gets
// wrapped in template-style double braces, string values contain braces of
// their own. Extraction is tolerant of all of these while guaranteeing the
// marker and everything after it never leak into user-visible text.
package directive

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Markers recognised as the start of a directive, checked case-insensitively.
// The first occurrence of any marker in the text is authoritative.
var markers = []string{"ACTION:", "AÇÃO:"}

// Directive is the single machine-actionable instruction of a model turn.
type Directive struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Extract scans fullText for a directive marker and parses the JSON object
// that follows it. It returns the parsed directive (or nil) and the clean
// user-visible text with the marker and everything after it removed.
//
// The marker text is stripped from the clean text even when the payload does
// not parse, so malformed directives never surface in the displayed reply.
func Extract(fullText string) (*Directive, string) {
	idx, markerLen := findMarker(fullText)
	if idx < 0 {
		return nil, fullText
	}

	clean := strings.TrimSpace(fullText[:idx])
	payload := strings.TrimSpace(fullText[idx+markerLen:])

	// Some models wrap the payload in template-style double braces. A doubled
	// opening brace directly after the marker is collapsed before scanning.
	if strings.HasPrefix(payload, "{{") {
		payload = payload[1:]
	}

	if d := parsePayload(payload); d != nil {
		return d, clean
	}

	// Second attempt: collapse {{ and }} outside string literals across the
	// whole payload and rescan. Never done first, so legitimate doubled
	// braces inside string values survive the happy path.
	if d := parsePayload(normalizeBraces(payload)); d != nil {
		return d, clean
	}

	return nil, clean
}

// HasMarker reports whether text contains a directive marker.
func HasMarker(text string) bool {
	idx, _ := findMarker(text)
	return idx >= 0
}

// findMarker returns the byte offset and byte length of the first directive
// marker in text, or (-1, 0) when no marker is present. Matching is
// case-insensitive; the earliest occurrence across all markers wins.
func findMarker(text string) (int, int) {
	best, bestLen := -1, 0
	for _, marker := range markers {
		if idx, n := foldIndex(text, marker); idx >= 0 {
			if best < 0 || idx < best {
				best, bestLen = idx, n
			}
		}
	}
	return best, bestLen
}

// foldIndex is a case-insensitive strings.Index that reports the byte length
// of the matched region (which may differ from len(sub) under folding).
func foldIndex(s, sub string) (int, int) {
	for i := 0; i < len(s); {
		if n, ok := foldPrefixLen(s[i:], sub); ok {
			return i, n
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, 0
}

func foldPrefixLen(s, prefix string) (int, bool) {
	n := 0
	for _, pr := range prefix {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 {
			return 0, false
		}
		if unicode.ToUpper(r) != unicode.ToUpper(pr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

// parsePayload locates the JSON object span in payload via a string-aware
// brace-balance scan and unmarshals it. Returns nil when no balanced object
// is found or the object is not a usable directive.
func parsePayload(payload string) *Directive {
	span, ok := braceSpan(payload)
	if !ok {
		return nil
	}

	var d Directive
	if err := json.Unmarshal([]byte(span), &d); err != nil {
		return nil
	}
	if d.Tool == "" {
		return nil
	}
	if d.Args == nil {
		d.Args = map[string]any{}
	}
	return &d
}

// braceSpan returns the substring of s from the first '{' to the matching
// closing brace. Braces inside string literals do not count toward the
// balance; backslash escapes inside strings are honored.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// normalizeBraces collapses doubled braces outside string literals, turning
// template-style {{...}} payloads into plain JSON. Content inside string
// values is left untouched.
func normalizeBraces(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '{', '}':
			b.WriteByte(c)
			if i+1 < len(s) && s[i+1] == c {
				i++
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
