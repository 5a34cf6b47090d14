package subtitle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/pkg/file"
)

// Serialize renders records in SRT form with a single blank line between
// cues and none after the last.
func Serialize(records []Record) string {
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(r.Index))
		b.WriteString("\n")
		b.WriteString(r.StartTime)
		b.WriteString(" --> ")
		b.WriteString(r.EndTime)
		b.WriteString("\n")
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteFile serializes records to path atomically.
func WriteFile(path string, records []Record) error {
	if err := file.WriteAtomic(path, []byte(Serialize(records))); err != nil {
		return fmt.Errorf("write subtitle file: %w", err)
	}
	return nil
}
