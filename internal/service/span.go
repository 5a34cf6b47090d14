package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/MimeLyc/batch-sub-translator/internal/codec"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/internal/translator"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// span is a half-open range of positions in run.records.
type span struct {
	start, end int
}

func (s span) size() int { return s.end - s.start }

// translateSpan translates records[start:end]. A span whose reply cannot be
// decoded into exactly one fragment per record is bisected; a single record
// that still fails keeps its original text. Spans are processed in order so
// the log reads front to back.
func (c *Coordinator) translateSpan(ctx context.Context, rs *run, batch, start, end int) ([]subtitle.Record, []int, error) {
	out := make([]subtitle.Record, end-start)
	var abandoned []int

	stack := []span{{start, end}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errBatchCancelled, err)
		}
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		records := rs.records[s.start:s.end]
		hint := rs.contextFor(s)

		if s.size() == 1 {
			rec := records[0]
			text, err := c.translateOne(ctx, rec, hint)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, fmt.Errorf("%w: %w", errBatchCancelled, ctx.Err())
				}
				log.Warn("subtitle %d could not be translated, keeping original text: %v", rec.Index, err)
				out[s.start-start] = rec
				abandoned = append(abandoned, rec.Index)
				c.emit(Event{Type: EventRecordAbandoned, Batch: batch, First: rec.Index, Last: rec.Index, Message: err.Error()})
				continue
			}
			out[s.start-start] = rec.WithText(text)
			continue
		}

		fragments, err := c.translateFragments(ctx, records, hint)
		if err == nil {
			for i, text := range fragments {
				out[s.start-start+i] = records[i].WithText(text)
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %w", errBatchCancelled, ctx.Err())
		}

		mid := s.start + s.size()/2
		log.Warn("batch %d: records %d-%d failed (%v), splitting into %d-%d and %d-%d",
			batch, records[0].Index, records[len(records)-1].Index, err,
			rs.records[s.start].Index, rs.records[mid-1].Index,
			rs.records[mid].Index, rs.records[s.end-1].Index)
		c.emit(Event{Type: EventBatchSplit, Batch: batch,
			First: records[0].Index, Last: records[len(records)-1].Index, Message: err.Error()})

		stack = append(stack, span{mid, s.end}, span{s.start, mid})
	}

	return out, abandoned, nil
}

// translateFragments sends records as one encoded payload and decodes the
// reply, failing when the fragment count does not match.
func (c *Coordinator) translateFragments(ctx context.Context, records []subtitle.Record, hint string) ([]string, error) {
	payload := codec.Encode(subtitle.Texts(records))
	reply, err := c.translator.Translate(ctx, payload, hint)
	if err != nil {
		return nil, err
	}
	fragments := codec.Decode(reply, len(records))
	if len(fragments) != len(records) {
		return nil, fmt.Errorf("expected %d fragments, got %d", len(records), len(fragments))
	}
	for i, f := range fragments {
		if f == "" && records[i].Text != "" {
			return nil, fmt.Errorf("fragment %d is empty", i+1)
		}
	}
	return fragments, nil
}

// translateOne translates a single record. An empty reply counts as a
// failure: a cue without text would not survive the batch artifact.
func (c *Coordinator) translateOne(ctx context.Context, rec subtitle.Record, hint string) (string, error) {
	reply, err := c.translator.Translate(ctx, rec.Text, hint)
	if err != nil {
		return "", err
	}
	text := codec.Decode(reply, 1)[0]
	if text == "" && rec.Text != "" {
		return "", fmt.Errorf("empty translation")
	}
	return text, nil
}

// contextFor renders up to ContextSize neighbouring texts on each side of s,
// taken from the selected records.
func (r *run) contextFor(s span) string {
	cs := r.opts.ContextSize
	if cs <= 0 {
		return ""
	}
	before := r.records[max(0, s.start-cs):s.start]
	after := r.records[s.end:min(len(r.records), s.end+cs)]
	return translator.RenderContext(subtitle.Texts(before), subtitle.Texts(after))
}

func sortedInts(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	out := append([]int(nil), in...)
	slices.Sort(out)
	return out
}
