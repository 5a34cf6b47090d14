package subtitle

import (
	"errors"

	"golang.org/x/text/language"
)

// ErrEmptyDocument is returned when a document contains no parseable records.
var ErrEmptyDocument = errors.New("no subtitle records found")

// Record is one SRT cue. Timestamps are kept as the raw "HH:MM:SS,mmm"
// strings so they survive translation byte for byte.
type Record struct {
	Index     int    `json:"index"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Text      string `json:"text"`
}

// WithText returns a copy of r carrying text.
func (r Record) WithText(text string) Record {
	r.Text = text
	return r
}

// File is a decoded subtitle document.
type File struct {
	Path     string
	Records  []Record
	Language language.Tag
	Encoding string
}

// Texts returns the text of every record in order.
func Texts(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

// Clone returns an independent copy of records.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
