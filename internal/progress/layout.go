// Package progress tracks which batches of a run are finished, both in a
// JSON state file and through the batch artifacts left on disk.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Layout names every file belonging to one run. OutputBase is the output
// path without extension; RangeTag is empty for whole-document runs.
type Layout struct {
	OutputBase string
	RangeTag   string
}

// RangeTag returns the tag used for a range-limited run.
func RangeTag(start, end int) string {
	return fmt.Sprintf("_%d_%d", start, end)
}

func (l Layout) ProgressPath() string {
	return l.OutputBase + "_progress" + l.RangeTag + ".json"
}

func (l Layout) LockPath() string {
	return l.OutputBase + "_progress" + l.RangeTag + ".lock"
}

// BatchPath is the artifact written when batch n completes. The number is
// separated from the range tag so that "_1_60" batch 11 and "_1_601"
// batch 1 name different files.
func (l Layout) BatchPath(n int) string {
	return l.OutputBase + "_batch" + l.RangeTag + "_" + strconv.Itoa(n) + ".srt"
}

// RangeOutputPath is where the range-only document is written.
func (l Layout) RangeOutputPath() string {
	return l.OutputBase + l.RangeTag + ".srt"
}

// FindBatchFiles maps batch number to artifact path for every artifact of
// this run present on disk.
func (l Layout) FindBatchFiles() (map[int]string, error) {
	dir := filepath.Dir(l.OutputBase)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]string{}, nil
		}
		return nil, fmt.Errorf("list batch files: %w", err)
	}

	prefix := filepath.Base(l.OutputBase) + "_batch" + l.RangeTag
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_([1-9]\d*)\.srt$`)

	found := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found[n] = filepath.Join(dir, e.Name())
	}
	return found, nil
}
