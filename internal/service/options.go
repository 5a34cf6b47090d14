package service

import (
	"fmt"
	"time"
)

const (
	DefaultBatchSize       = 5
	DefaultContextSize     = 2
	DefaultWorkers         = 1
	DefaultInterBatchPause = time.Second
)

// Range selects cues by sequence number, both ends inclusive.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Contains(index int) bool {
	return index >= r.Start && index <= r.End
}

// Options configures one run. They are consumed by Run, never stored.
type Options struct {
	BatchSize   int    `json:"batch_size"`
	ContextSize int    `json:"context_size"`
	Workers     int    `json:"workers"`
	Resume      bool   `json:"resume"`
	Range       *Range `json:"range,omitempty"`
	// Pause between batches when Workers == 1. Zero means DefaultInterBatchPause;
	// negative disables it.
	InterBatchPause time.Duration `json:"-"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BatchSize:   DefaultBatchSize,
		ContextSize: DefaultContextSize,
		Workers:     DefaultWorkers,
		Resume:      true,
	}
}

func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return NewError(ErrValidation, fmt.Sprintf("batch size must be greater than 0, got %d", o.BatchSize))
	}
	if o.ContextSize < 0 {
		return NewError(ErrValidation, fmt.Sprintf("context size must not be negative, got %d", o.ContextSize))
	}
	if o.Workers < 1 {
		return NewError(ErrValidation, fmt.Sprintf("worker count must be at least 1, got %d", o.Workers))
	}
	if o.Range != nil {
		if o.Range.Start < 1 || o.Range.End < 1 {
			return NewError(ErrValidation, "range bounds must be positive")
		}
		if o.Range.Start > o.Range.End {
			return NewError(ErrValidation, fmt.Sprintf("range start %d is after end %d", o.Range.Start, o.Range.End))
		}
	}
	return nil
}

func (o Options) pause() time.Duration {
	switch {
	case o.InterBatchPause < 0:
		return 0
	case o.InterBatchPause == 0:
		return DefaultInterBatchPause
	default:
		return o.InterBatchPause
	}
}

// TotalBatches is the number of batches n records split into.
func TotalBatches(n, batchSize int) int {
	if n <= 0 || batchSize <= 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}
