package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/batch-sub-translator/internal/llm"
	"github.com/MimeLyc/batch-sub-translator/internal/merge"
	"github.com/MimeLyc/batch-sub-translator/internal/progress"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/internal/translator"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// RunResult summarises a run.
type RunResult struct {
	TotalBatches int `json:"total_batches"`
	// Completed counts batches done after the run, including resumed ones.
	Completed int `json:"completed"`
	// Skipped counts batches already done when the run started.
	Skipped        int   `json:"skipped"`
	FailedBatches  []int `json:"failed_batches,omitempty"`
	MissingBatches []int `json:"missing_batches,omitempty"`
	// Abandoned lists sequence numbers whose original text was kept.
	Abandoned []int `json:"abandoned,omitempty"`

	// OutputPath is the merged document; RangeOutputPath the range-only one.
	OutputPath      string `json:"output_path,omitempty"`
	RangeOutputPath string `json:"range_output_path,omitempty"`

	// Records is the merged translation of the selected records.
	Records []subtitle.Record `json:"-"`
	// Document is Records spliced into the full input for range runs, and
	// equal to Records otherwise.
	Document []subtitle.Record `json:"-"`
}

// Coordinator splits records into batches, translates them through a
// Translator and checkpoints every finished batch.
type Coordinator struct {
	translator translator.Translator
	observer   Observer

	mu        sync.Mutex
	completed int
	total     int
}

type CoordinatorOption func(*Coordinator)

// WithObserver registers an observer for run events.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

func NewCoordinator(tr translator.Translator, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		translator: tr,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the completed and total batch counts of the current or
// last run.
func (c *Coordinator) Snapshot() (completed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed, c.total
}

func (c *Coordinator) setProgress(completed, total int) {
	c.mu.Lock()
	c.completed, c.total = completed, total
	c.mu.Unlock()
}

func (c *Coordinator) incCompleted() (completed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	return c.completed, c.total
}

func (c *Coordinator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Total == 0 {
		e.Completed, e.Total = c.Snapshot()
	}
	c.observer.OnEvent(e)
}

// run holds the immutable inputs shared by every batch of one Run.
type run struct {
	records []subtitle.Record
	opts    Options
	layout  progress.Layout
	store   *progress.Store

	mu        sync.Mutex
	failed    []int
	abandoned []int
}

func (r *run) addFailed(n int) {
	r.mu.Lock()
	r.failed = append(r.failed, n)
	r.mu.Unlock()
}

func (r *run) addAbandoned(indexes ...int) {
	r.mu.Lock()
	r.abandoned = append(r.abandoned, indexes...)
	r.mu.Unlock()
}

// SelectRange returns the records whose sequence number lies in r. A nil
// range selects everything.
func SelectRange(records []subtitle.Record, r *Range) []subtitle.Record {
	if r == nil {
		return subtitle.Clone(records)
	}
	var out []subtitle.Record
	for _, rec := range records {
		if r.Contains(rec.Index) {
			out = append(out, rec)
		}
	}
	return out
}

// Run translates records (the full document) according to o. Batch
// artifacts and the progress file are named by layout. Completed batches
// are merged into the result even when some batches failed; a cancelled run
// is not merged.
func (c *Coordinator) Run(ctx context.Context, records []subtitle.Record, layout progress.Layout, o Options) (*RunResult, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if c.translator == nil {
		return nil, NewError(ErrConfig, "translator not set")
	}
	if len(records) == 0 {
		return nil, NewErrorWithCause(ErrParse, "nothing to translate", subtitle.ErrEmptyDocument)
	}

	selected := SelectRange(records, o.Range)
	if len(selected) == 0 {
		return nil, NewError(ErrValidation, fmt.Sprintf("no records in range %d-%d", o.Range.Start, o.Range.End))
	}

	total := TotalBatches(len(selected), o.BatchSize)
	store, err := progress.Open(layout, total)
	if err != nil {
		return nil, WrapError(err, ErrStorage, "open progress store")
	}

	if o.Resume {
		if err := store.RecoverFromArtifacts(); err != nil {
			return nil, WrapError(err, ErrStorage, "recover progress from batch files")
		}
	} else {
		if err := store.Reset(); err != nil {
			return nil, WrapError(err, ErrStorage, "reset progress")
		}
	}
	if err := store.SetTotal(total); err != nil {
		return nil, WrapError(err, ErrStorage, "save progress")
	}

	remaining := store.RemainingBatches()
	skipped := total - len(remaining)
	c.setProgress(skipped, total)
	log.Info("%d records in %d batches, %d remaining", len(selected), total, len(remaining))
	c.emit(Event{Type: EventRunStarted, Completed: skipped, Total: total,
		Message: fmt.Sprintf("%d records, %d batches remaining", len(selected), len(remaining))})

	rs := &run{records: selected, opts: o, layout: layout, store: store}

	if o.Workers > 1 {
		c.runParallel(ctx, rs, remaining)
	} else {
		c.runSequential(ctx, rs, remaining)
	}

	completed, _ := c.Snapshot()
	result := &RunResult{
		TotalBatches:  total,
		Completed:     completed,
		Skipped:       skipped,
		FailedBatches: sortedInts(rs.failed),
		Abandoned:     sortedInts(rs.abandoned),
	}

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled with %d/%d batches completed", completed, total)
		c.emit(Event{Type: EventRunCancelled})
		return result, NewErrorWithCause(ErrCancelled, "translation cancelled",
			fmt.Errorf("%w: %w", ErrRunCancelled, err))
	}

	merged, err := merge.Combine(layout, total)
	if err != nil {
		return result, WrapError(err, ErrStorage, "merge batch files")
	}
	result.Records = merged.Records
	result.MissingBatches = merged.MissingBatches
	result.Document = result.Records
	if o.Range != nil {
		result.Document = merge.Splice(records, merged.Records, o.Range.Start, o.Range.End)
	}
	c.emit(Event{Type: EventRunMerged, Message: fmt.Sprintf("%d records merged", len(merged.Records))})

	if len(result.FailedBatches) > 0 {
		return result, NewErrorWithCause(ErrIncomplete,
			fmt.Sprintf("%d of %d batches failed", len(result.FailedBatches), total), ErrRunIncomplete).
			WithContext("batches", result.FailedBatches)
	}
	return result, nil
}

func (c *Coordinator) runSequential(ctx context.Context, rs *run, batches []int) {
	pause := rs.opts.pause()
	for i, n := range batches {
		if ctx.Err() != nil {
			return
		}
		c.handleBatch(ctx, rs, n)

		if i < len(batches)-1 && pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (c *Coordinator) runParallel(ctx context.Context, rs *run, batches []int) {
	log.Info("translating with %d workers", rs.opts.Workers)

	// Batch failures are collected, never returned, so that one failing
	// batch does not stop its siblings.
	var g errgroup.Group
	g.SetLimit(rs.opts.Workers)
	for _, n := range batches {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			c.handleBatch(ctx, rs, n)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) handleBatch(ctx context.Context, rs *run, n int) {
	err := SafeExecute(func() error { return c.processBatch(ctx, rs, n) })
	switch {
	case err == nil:
	case errors.Is(err, errBatchCancelled):
		log.Info("batch %d interrupted by cancellation", n)
	default:
		log.Error("batch %d failed: %v", n, err)
		rs.addFailed(n)
		c.emit(Event{Type: EventBatchFailed, Batch: n, Message: err.Error()})
	}
}

var errBatchCancelled = errors.New("batch cancelled")

// processBatch translates batch n, writes its artifact and marks it done.
func (c *Coordinator) processBatch(ctx context.Context, rs *run, n int) error {
	start := (n - 1) * rs.opts.BatchSize
	end := min(start+rs.opts.BatchSize, len(rs.records))
	if start >= end {
		return fmt.Errorf("batch %d is empty", n)
	}
	first, last := rs.records[start].Index, rs.records[end-1].Index

	log.Info("processing batch %d (records %d-%d)", n, first, last)
	c.emit(Event{Type: EventBatchStarted, Batch: n, First: first, Last: last})

	ctx = llm.WithRetryNotify(ctx, func(attempt int, delay time.Duration, err error) {
		c.emit(Event{Type: EventBatchRetrying, Batch: n, First: first, Last: last,
			Message: fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, err)})
	})

	translated, abandoned, err := c.translateSpan(ctx, rs, n, start, end)
	if err != nil {
		return err
	}
	if len(abandoned) > 0 {
		rs.addAbandoned(abandoned...)
	}

	if err := subtitle.WriteFile(rs.layout.BatchPath(n), translated); err != nil {
		return WrapError(err, ErrStorage, fmt.Sprintf("write batch %d", n))
	}
	if err := rs.store.MarkCompleted(n); err != nil {
		return WrapError(err, ErrStorage, fmt.Sprintf("mark batch %d completed", n))
	}

	completed, total := c.incCompleted()
	log.Info("batch %d completed (%d/%d) -> %s", n, completed, total, rs.layout.BatchPath(n))
	c.emit(Event{Type: EventBatchCompleted, Batch: n, First: first, Last: last, Completed: completed, Total: total})
	return nil
}
