// Package merge assembles batch artifacts into the final document.
package merge

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/MimeLyc/batch-sub-translator/internal/codec"
	"github.com/MimeLyc/batch-sub-translator/internal/progress"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// Result describes a merge.
type Result struct {
	Records        []subtitle.Record
	MissingBatches []int
}

// Combine reads artifacts 1..totalBatches of layout, skipping missing ones
// and paths that are not regular files, and returns their records sorted by index with residual markers scrubbed.
func Combine(layout progress.Layout, totalBatches int) (*Result, error) {
	result := &Result{}
	for n := 1; n <= totalBatches; n++ {
		path := layout.BatchPath(n)
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
			log.Warn("batch %d artifact %s is missing, skipping", n, path)
			result.MissingBatches = append(result.MissingBatches, n)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat batch %d: %w", n, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read batch %d: %w", n, err)
		}
		text, _, err := subtitle.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode batch %d: %w", n, err)
		}
		result.Records = append(result.Records, subtitle.Parse(text)...)
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].Index < result.Records[j].Index
	})
	for i := range result.Records {
		result.Records[i].Text = codec.Scrub(result.Records[i].Text)
	}
	return result, nil
}

// WriteMerged combines the artifacts of layout and writes them to path.
func WriteMerged(layout progress.Layout, totalBatches int, path string) (*Result, error) {
	result, err := Combine(layout, totalBatches)
	if err != nil {
		return nil, err
	}
	if err := subtitle.WriteFile(path, result.Records); err != nil {
		return nil, err
	}
	log.Info("merged %d records into %s", len(result.Records), path)
	return result, nil
}

// Splice returns a copy of original where records with index in
// [start,end] take their text from translated. Records outside the range, or
// without a translated counterpart, are kept verbatim.
func Splice(original, translated []subtitle.Record, start, end int) []subtitle.Record {
	byIndex := make(map[int]subtitle.Record, len(translated))
	for _, r := range translated {
		byIndex[r.Index] = r
	}

	out := subtitle.Clone(original)
	for i, r := range out {
		if r.Index < start || r.Index > end {
			continue
		}
		if tr, ok := byIndex[r.Index]; ok {
			out[i] = r.WithText(codec.Scrub(tr.Text))
		}
	}
	return out
}
