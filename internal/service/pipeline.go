package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MimeLyc/batch-sub-translator/internal/progress"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// FileRequest asks for one subtitle file to be translated.
type FileRequest struct {
	InputPath  string  `json:"input_path"`
	OutputPath string  `json:"output_path"`
	Options    Options `json:"options"`
}

// LayoutFor returns the layout of the run req would start.
func (req FileRequest) LayoutFor() progress.Layout {
	layout := progress.Layout{OutputBase: file.TrimExt(req.OutputPath)}
	if r := req.Options.Range; r != nil {
		layout.RangeTag = progress.RangeTag(r.Start, r.End)
	}
	return layout
}

// TranslateFile reads req.InputPath, translates it and writes the result to
// req.OutputPath. For a range run the output holds the full document with
// only the range translated, and the range alone is written next to it.
//
// The batch artifacts and progress file stay on disk after the run so that
// a later run can resume.
func (c *Coordinator) TranslateFile(ctx context.Context, req FileRequest) (*RunResult, error) {
	if req.InputPath == "" || req.OutputPath == "" {
		return nil, NewError(ErrValidation, "input and output paths are required")
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	input, err := subtitle.ReadFile(req.InputPath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, WrapError(err, ErrFileNotFound, "input file not found").WithContext("path", req.InputPath)
		case errors.Is(err, subtitle.ErrEmptyDocument):
			return nil, WrapError(err, ErrParse, "no subtitles in input").WithContext("path", req.InputPath)
		default:
			return nil, WrapError(err, ErrFileRead, "read input").WithContext("path", req.InputPath)
		}
	}
	log.Info("loaded %d subtitles from %s (%s, %s)", len(input.Records), req.InputPath, input.Encoding, input.Language)

	layout := req.LayoutFor()
	lock, err := progress.AcquireLock(layout)
	if err != nil {
		if errors.Is(err, progress.ErrLocked) {
			return nil, WrapError(err, ErrValidation, "another run is translating the same output").
				WithContext("output", req.OutputPath)
		}
		return nil, WrapError(err, ErrStorage, "lock run")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release run lock: %v", err)
		}
	}()

	result, runErr := c.Run(ctx, input.Records, layout, req.Options)
	if result == nil || result.Records == nil {
		return result, runErr
	}

	if req.Options.Range != nil {
		result.RangeOutputPath = layout.RangeOutputPath()
		if err := subtitle.WriteFile(result.RangeOutputPath, result.Records); err != nil {
			return result, WrapError(err, ErrFileWrite, "write range output").WithContext("path", result.RangeOutputPath)
		}
		log.Info("range %d-%d written to %s", req.Options.Range.Start, req.Options.Range.End, result.RangeOutputPath)
	}

	result.OutputPath = req.OutputPath
	if err := subtitle.WriteFile(req.OutputPath, result.Document); err != nil {
		return result, WrapError(err, ErrFileWrite, "write output").WithContext("path", req.OutputPath)
	}
	log.Info("translation written to %s (%d subtitles)", req.OutputPath, len(result.Document))

	if len(result.Abandoned) > 0 {
		log.Warn("%d subtitles kept their original text: %v", len(result.Abandoned), result.Abandoned)
	}
	return result, runErr
}

// Status describes the on-disk progress of a run without starting it.
type Status struct {
	Layout       progress.Layout `json:"-"`
	TotalBatches int             `json:"total_batches"`
	Completed    []int           `json:"completed"`
	Remaining    []int           `json:"remaining"`
}

func (s Status) String() string {
	return fmt.Sprintf("%d/%d batches completed", len(s.Completed), s.TotalBatches)
}

// ReadStatus reports progress for the run req describes, recovering from
// artifacts when the progress file is missing. Nothing is written.
func ReadStatus(req FileRequest) (*Status, error) {
	layout := req.LayoutFor()

	total := 0
	if req.InputPath != "" {
		input, err := subtitle.ReadFile(req.InputPath)
		if err != nil {
			return nil, WrapError(err, ErrFileRead, "read input").WithContext("path", req.InputPath)
		}
		bs := req.Options.BatchSize
		if bs <= 0 {
			bs = DefaultBatchSize
		}
		total = TotalBatches(len(SelectRange(input.Records, req.Options.Range)), bs)
	}

	state, err := progress.Inspect(layout, total)
	if err != nil {
		return nil, WrapError(err, ErrStorage, "read progress")
	}

	st := &Status{Layout: layout, TotalBatches: state.TotalBatches, Completed: state.CompletedBatches}
	done := make(map[int]bool, len(state.CompletedBatches))
	for _, n := range state.CompletedBatches {
		done[n] = true
	}
	for n := 1; n <= state.TotalBatches; n++ {
		if !done[n] {
			st.Remaining = append(st.Remaining, n)
		}
	}
	return st, nil
}
