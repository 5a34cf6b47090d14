// Package check compares a translated subtitle document against its source:
// every cue must exist on both sides with identical timestamps.
package check

import (
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
)

// Mismatch is a cue present on both sides whose timestamps differ.
type Mismatch struct {
	Index      int
	Source     subtitle.Record
	Translated subtitle.Record
	Issues     []string
}

// Pair is a cue with its translation, used for spot checks.
type Pair struct {
	Source     subtitle.Record
	Translated subtitle.Record
}

type Report struct {
	SourcePath     string
	TranslatedPath string

	SourceCount     int
	TranslatedCount int

	// Extra cues exist only in the translation, Missing only in the source.
	Extra      []subtitle.Record
	Missing    []subtitle.Record
	Mismatches []Mismatch

	// Samples are the first, last and some random matched cues.
	Samples []Pair
}

// OK reports a perfect match.
func (r *Report) OK() bool {
	return r.SourceCount == r.TranslatedCount &&
		len(r.Extra) == 0 && len(r.Missing) == 0 && len(r.Mismatches) == 0
}

// Compare checks translated against source. sampleSize random cues, besides
// the first and the last, are picked for spot checks from rng; a nil rng
// disables random samples.
func Compare(source, translated []subtitle.Record, sampleSize int, rng *rand.Rand) *Report {
	r := &Report{SourceCount: len(source), TranslatedCount: len(translated)}

	src := make(map[int]subtitle.Record, len(source))
	for _, rec := range source {
		src[rec.Index] = rec
	}
	tr := make(map[int]subtitle.Record, len(translated))
	for _, rec := range translated {
		tr[rec.Index] = rec

		s, ok := src[rec.Index]
		if !ok {
			r.Extra = append(r.Extra, rec)
			continue
		}
		var issues []string
		if s.StartTime != rec.StartTime {
			issues = append(issues, fmt.Sprintf("start time differs: source=%s, translated=%s", s.StartTime, rec.StartTime))
		}
		if s.EndTime != rec.EndTime {
			issues = append(issues, fmt.Sprintf("end time differs: source=%s, translated=%s", s.EndTime, rec.EndTime))
		}
		if len(issues) > 0 {
			r.Mismatches = append(r.Mismatches, Mismatch{Index: rec.Index, Source: s, Translated: rec, Issues: issues})
		}
	}
	for _, rec := range source {
		if _, ok := tr[rec.Index]; !ok {
			r.Missing = append(r.Missing, rec)
		}
	}

	sort.Slice(r.Extra, func(i, j int) bool { return r.Extra[i].Index < r.Extra[j].Index })
	sort.Slice(r.Mismatches, func(i, j int) bool { return r.Mismatches[i].Index < r.Mismatches[j].Index })

	r.Samples = samples(source, tr, sampleSize, rng)
	return r
}

func samples(source []subtitle.Record, tr map[int]subtitle.Record, n int, rng *rand.Rand) []Pair {
	if len(source) == 0 {
		return nil
	}
	picked := []int{0}
	if len(source) > 1 {
		if rng != nil && n > 0 && len(source) > 2 {
			middle := rng.Perm(len(source) - 2)
			for _, i := range middle[:min(n, len(middle))] {
				picked = append(picked, i+1)
			}
			sort.Ints(picked)
		}
		picked = append(picked, len(source)-1)
	}

	var out []Pair
	for _, i := range picked {
		if t, ok := tr[source[i].Index]; ok {
			out = append(out, Pair{Source: source[i], Translated: t})
		}
	}
	return out
}

// CompareFiles reads and compares two SRT files.
func CompareFiles(sourcePath, translatedPath string, sampleSize int, rng *rand.Rand) (*Report, error) {
	source, err := subtitle.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	translated, err := subtitle.ReadFile(translatedPath)
	if err != nil {
		return nil, fmt.Errorf("translation: %w", err)
	}
	r := Compare(source.Records, translated.Records, sampleSize, rng)
	r.SourcePath, r.TranslatedPath = sourcePath, translatedPath
	return r, nil
}

func indexes(records []subtitle.Record) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = fmt.Sprint(r.Index)
	}
	return strings.Join(parts, ", ")
}

// WriteMarkdown writes a detailed report.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var b strings.Builder
	b.WriteString("# SRT check report\n\n")
	fmt.Fprintf(&b, "Source: %s\n", r.SourcePath)
	fmt.Fprintf(&b, "Translation: %s\n\n", r.TranslatedPath)

	b.WriteString("## Result\n\n")
	if r.OK() {
		b.WriteString("Perfect match: numbering and timestamps are identical.\n\n")
	} else {
		b.WriteString("Mismatch detected.\n\n")
	}
	fmt.Fprintf(&b, "Source cues: %d\n", r.SourceCount)
	fmt.Fprintf(&b, "Translated cues: %d\n\n", r.TranslatedCount)

	writeRecords := func(title string, records []subtitle.Record) {
		if len(records) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, rec := range records {
			fmt.Fprintf(&b, "#%d: %s --> %s\n%s\n\n", rec.Index, rec.StartTime, rec.EndTime, rec.Text)
		}
	}
	writeRecords("Cues only in the translation", r.Extra)
	writeRecords("Cues missing from the translation", r.Missing)

	if len(r.Mismatches) > 0 {
		b.WriteString("## Timestamp mismatches\n\n")
		for _, m := range r.Mismatches {
			fmt.Fprintf(&b, "### Cue #%d\n\n", m.Index)
			fmt.Fprintf(&b, "**Source**:\n%s --> %s\n%s\n\n", m.Source.StartTime, m.Source.EndTime, m.Source.Text)
			fmt.Fprintf(&b, "**Translation**:\n%s --> %s\n%s\n\n", m.Translated.StartTime, m.Translated.EndTime, m.Translated.Text)
			b.WriteString("**Issues**:\n")
			for _, issue := range m.Issues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary returns a one-line description of the result.
func (r *Report) Summary() string {
	if r.OK() {
		return fmt.Sprintf("perfect match: %d cues", r.SourceCount)
	}
	var parts []string
	if r.SourceCount != r.TranslatedCount {
		parts = append(parts, fmt.Sprintf("cue count differs (%d vs %d)", r.SourceCount, r.TranslatedCount))
	}
	if len(r.Extra) > 0 {
		parts = append(parts, "extra: "+indexes(r.Extra))
	}
	if len(r.Missing) > 0 {
		parts = append(parts, "missing: "+indexes(r.Missing))
	}
	if len(r.Mismatches) > 0 {
		parts = append(parts, fmt.Sprintf("%d timestamp mismatches", len(r.Mismatches)))
	}
	return strings.Join(parts, "; ")
}

// Rows returns the issues as table rows: cue, kind, detail.
func (r *Report) Rows() [][]string {
	var rows [][]string
	for _, rec := range r.Missing {
		rows = append(rows, []string{fmt.Sprint(rec.Index), "missing", rec.StartTime + " --> " + rec.EndTime})
	}
	for _, rec := range r.Extra {
		rows = append(rows, []string{fmt.Sprint(rec.Index), "extra", rec.StartTime + " --> " + rec.EndTime})
	}
	for _, m := range r.Mismatches {
		for _, issue := range m.Issues {
			rows = append(rows, []string{fmt.Sprint(m.Index), "timestamp", issue})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return len(rows[i][0]) < len(rows[j][0]) || (len(rows[i][0]) == len(rows[j][0]) && rows[i][0] < rows[j][0])
	})
	return rows
}
