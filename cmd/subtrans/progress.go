package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// progressReporter shows batch progress as a bar on a terminal and as log
// lines otherwise.
type progressReporter struct {
	out         io.Writer
	interactive bool

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	last int
}

func newProgressReporter(out io.Writer, interactive bool) *progressReporter {
	return &progressReporter{out: out, interactive: interactive, last: -1}
}

func (p *progressReporter) Report(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total <= 0 || completed == p.last {
		return
	}
	p.last = completed

	if !p.interactive {
		log.Info("progress: %d/%d batches", completed, total)
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("translating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(completed)
}

func (p *progressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printRunSummary(w io.Writer, result *service.RunResult) {
	fmt.Fprintf(w, "%d/%d batches completed", result.Completed, result.TotalBatches)
	if result.Skipped > 0 {
		fmt.Fprintf(w, " (%d resumed)", result.Skipped)
	}
	fmt.Fprintln(w)

	if result.OutputPath != "" {
		fmt.Fprintf(w, "output: %s\n", result.OutputPath)
	}
	if result.RangeOutputPath != "" {
		fmt.Fprintf(w, "range output: %s\n", result.RangeOutputPath)
	}
	if len(result.FailedBatches) > 0 {
		fmt.Fprintf(w, "failed batches: %s\n", joinInts(result.FailedBatches))
	}
	if len(result.Abandoned) > 0 {
		fmt.Fprintf(w, "kept original text for %d subtitles: %s\n", len(result.Abandoned), joinInts(result.Abandoned))
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
