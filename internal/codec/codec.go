// Package codec packs several subtitle texts into one request payload and
// unpacks the model's reply back into per-record texts.
package codec

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const markerPrefix = "===SUBTITLE_SEPARATOR_"

// Marker returns the separator placed before fragment i (i >= 1).
func Marker(i int) string {
	return fmt.Sprintf("%s%d===", markerPrefix, i)
}

// Encode joins fragments with numbered markers. Fragment 0 has no marker in
// front of it and nothing follows the last fragment.
func Encode(fragments []string) string {
	var b strings.Builder
	for i, f := range fragments {
		if i > 0 {
			b.WriteString("\n")
			b.WriteString(Marker(i))
			b.WriteString("\n")
		}
		b.WriteString(f)
	}
	return b.String()
}

var markerPatterns sync.Map // int -> *regexp.Regexp

// markerPattern matches marker i with any surrounding whitespace, tolerating
// spaces the model sometimes inserts inside the marker itself. Compiled
// patterns are cached per index.
func markerPattern(i int) *regexp.Regexp {
	if re, ok := markerPatterns.Load(i); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(fmt.Sprintf(`\s*={2,}\s*SUBTITLE_SEPARATOR_\s*%d\s*={2,}\s*`, i))
	actual, _ := markerPatterns.LoadOrStore(i, re)
	return actual.(*regexp.Regexp)
}

// Decode splits payload into at most k fragments using markers 1..k-1 in
// order. When marker i+1 is missing the fragments decoded so far are
// returned; callers detect the short result by comparing its length with k.
// Each fragment is scrubbed of residual markers and boilerplate.
func Decode(payload string, k int) []string {
	if k <= 0 {
		return nil
	}

	rest := payload
	out := make([]string, 0, k)
	for i := 1; i < k; i++ {
		loc := markerPattern(i).FindStringIndex(rest)
		if loc == nil {
			out = append(out, Scrub(rest))
			return out
		}
		out = append(out, Scrub(rest[:loc[0]]))
		rest = rest[loc[1]:]
	}

	// A stray marker beyond k-1 means the model appended something after the
	// last fragment; drop it.
	if loc := markerPattern(k).FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	out = append(out, Scrub(rest))

	if len(out) > k {
		out = out[:k]
	}
	return out
}
