package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// One cue: number line, time range line, one or more content lines, then a
// blank line or end of input.
var recordPattern = regexp.MustCompile(
	`(?m)(\d+)[ \t]*\n` +
		`(\d{2}:\d{2}:\d{2},\d{3})[ \t]*-->[ \t]*(\d{2}:\d{2}:\d{2},\d{3})[ \t]*\n` +
		`((?:.+\n)+?)` +
		`(?:\n|$)`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// Tried in order when the input is not valid UTF-8.
var fallbackEncodings = []namedEncoding{
	{name: "gbk", enc: simplifiedchinese.GBK},
	{name: "gb18030", enc: simplifiedchinese.GB18030},
	{name: "latin1", enc: charmap.ISO8859_1},
	{name: "cp1252", enc: charmap.Windows1252},
}

// Parse extracts every well-formed cue from text. Malformed groups are
// skipped; Parse never fails.
func Parse(text string) []Record {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	matches := recordPattern.FindAllStringSubmatch(text, -1)
	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		index, err := strconv.Atoi(m[1])
		if err != nil || index <= 0 {
			continue
		}
		records = append(records, Record{
			Index:     index,
			StartTime: m[2],
			EndTime:   m[3],
			Text:      trimBlankLines(m[4]),
		})
	}
	return records
}

// trimBlankLines removes leading and trailing blank lines and trailing
// whitespace on each line, keeping inner line breaks.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// Decode returns data as a string, trying UTF-8 first and then a fixed
// list of legacy encodings. The name of the encoding used is returned.
func Decode(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	for _, fe := range fallbackEncodings {
		decoded, err := fe.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if !utf8.Valid(decoded) || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded), fe.name, nil
	}
	return "", "", fmt.Errorf("unable to decode subtitle data with any supported encoding")
}

// ReadFile decodes and parses the subtitle file at path.
func ReadFile(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitle file: %w", err)
	}

	text, enc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	records := Parse(text)
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDocument)
	}

	return &File{
		Path:     path,
		Records:  records,
		Language: DetectLanguage(records),
		Encoding: enc,
	}, nil
}
