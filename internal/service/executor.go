package service

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/text/language"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/llm"
	"github.com/MimeLyc/batch-sub-translator/internal/persistence"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/showinfo"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/internal/termmap"
	"github.com/MimeLyc/batch-sub-translator/internal/translator"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

// NewTranslator builds the LLM-backed translator described by cfg.
func NewTranslator(cfg config.Config, stylePrompt string) (translator.Translator, error) {
	pc, err := cfg.ProviderConfig()
	if err != nil {
		return nil, WrapError(err, ErrConfig, "resolve provider")
	}
	var opts []llm.Option
	if cfg.LLM.RetryAttempts > 0 {
		opts = append(opts, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))
	}
	client, err := llm.NewClient(pc, opts...)
	if err != nil {
		return nil, WrapError(err, ErrConfig, "create LLM client")
	}
	return translator.NewLLMTranslator(client, stylePrompt, translator.LanguageName(cfg.TargetTag())), nil
}

// JobRequest turns a job payload into a file request. Zero payload fields
// take the configured defaults.
func JobRequest(cfg config.Config, p jobs.JobPayload) FileRequest {
	opts := Options{
		BatchSize:   cfg.Translate.BatchSize,
		ContextSize: cfg.Translate.ContextSize,
		Workers:     cfg.Translate.Workers,
		Resume:      !p.NoResume,
	}
	if p.BatchSize > 0 {
		opts.BatchSize = p.BatchSize
	}
	if p.ContextSize > 0 {
		opts.ContextSize = p.ContextSize
	}
	if p.Threads > 0 {
		opts.Workers = p.Threads
	}
	if p.Start > 0 || p.End > 0 {
		opts.Range = &Range{Start: p.Start, End: p.End}
	}
	return FileRequest{InputPath: p.InputPath, OutputPath: p.OutputPath, Options: opts}
}

// ConfigSource yields the configuration a job should run with. It is asked
// once per job so that runtime settings changes apply to the next job.
type ConfigSource interface {
	Config() config.Config
}

type ConfigFunc func() config.Config

func (f ConfigFunc) Config() config.Config { return f() }

// EventLog records run events per job.
type EventLog interface {
	AppendEvent(ctx context.Context, ev persistence.JobEvent) error
}

// TranslatorFactory builds the translator for one job.
type TranslatorFactory func(cfg config.Config, stylePrompt string) (translator.Translator, error)

// JobRunner executes queued translation jobs.
type JobRunner struct {
	configs       ConfigSource
	prompts       *prompt.Library
	events        EventLog
	newTranslator TranslatorFactory
}

type JobRunnerOption func(*JobRunner)

func WithEventLog(events EventLog) JobRunnerOption {
	return func(r *JobRunner) {
		r.events = events
	}
}

func WithTranslatorFactory(fn TranslatorFactory) JobRunnerOption {
	return func(r *JobRunner) {
		if fn != nil {
			r.newTranslator = fn
		}
	}
}

func NewJobRunner(configs ConfigSource, prompts *prompt.Library, opts ...JobRunnerOption) *JobRunner {
	r := &JobRunner{
		configs:       configs,
		prompts:       prompts,
		newTranslator: NewTranslator,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one job to completion. It satisfies jobs.Executor.
func (r *JobRunner) Execute(ctx context.Context, job *jobs.TranslationJob, report jobs.ProgressFunc) error {
	_, err := r.Translate(ctx, job.ID, job.Payload, report)
	return err
}

// Translate runs the translation p describes with the current configuration.
// Events are recorded under jobID when an event log is configured.
func (r *JobRunner) Translate(ctx context.Context, jobID string, p jobs.JobPayload, report jobs.ProgressFunc) (*RunResult, error) {
	cfg := r.configs.Config()

	stylePrompt, err := r.resolvePrompt(cfg, p)
	if err != nil {
		return nil, WrapError(err, ErrValidation, "resolve prompt")
	}
	tr, err := r.newTranslator(cfg, stylePrompt)
	if err != nil {
		return nil, err
	}
	if cfg.Translate.ShowInfo {
		if show := loadShowInfo(p.InputPath); show != nil {
			log.Info("job %s: using metadata for %q", jobID, show.Title)
			tr = translator.WithBackground(tr, show.Text())
		}
	}
	terms, err := loadTermMap(cfg, p.InputPath)
	if err != nil {
		return nil, err
	}
	if len(terms) > 0 {
		log.Info("job %s: using %d terminology entries", jobID, len(terms))
		tr = translator.WithTermMap(tr, terms)
	}

	observer := ObserverFunc(func(e Event) {
		if report != nil {
			report(e.Completed, e.Total)
		}
		r.appendEvent(jobID, e)
	})
	coord := NewCoordinator(tr, WithObserver(observer))

	req := JobRequest(cfg, p)
	log.Info("job %s: translating %s -> %s", jobID, req.InputPath, req.OutputPath)
	result, err := coord.TranslateFile(ctx, req)
	if err != nil {
		return result, err
	}
	if len(result.Abandoned) > 0 {
		r.appendEvent(jobID, Event{
			Type:    EventRecordAbandoned,
			Message: fmt.Sprintf("%d subtitles kept their original text", len(result.Abandoned)),
		})
	}
	return result, nil
}

// loadShowInfo returns the NFO metadata describing inputPath, if any.
// Unreadable metadata is skipped with a warning.
func loadShowInfo(inputPath string) *showinfo.Show {
	show, err := showinfo.Lookup(inputPath)
	if err != nil {
		log.Warn("ignoring show metadata for %s: %v", inputPath, err)
		return nil
	}
	return show
}

// loadTermMap returns the configured term map, or the closest
// term_map.<source>-<target>.json above the input. A configured file that
// cannot be read is an error; a discovered one is skipped with a warning.
func loadTermMap(cfg config.Config, inputPath string) (termmap.TermMap, error) {
	if path := cfg.Translate.TermMapFile; path != "" {
		terms, err := termmap.Load(path)
		if err != nil {
			return nil, WrapError(err, ErrConfig, "load term map").WithContext("path", path)
		}
		return terms, nil
	}

	doc, err := subtitle.ReadFile(inputPath)
	if err != nil {
		return nil, nil
	}
	source := subtitle.DetectLanguage(doc.Records)
	if source == language.Und {
		return nil, nil
	}
	path := termmap.FindInAncestors(filepath.Dir(inputPath), source.String(), cfg.TargetTag().String())
	if path == "" {
		return nil, nil
	}
	terms, err := termmap.Load(path)
	if err != nil {
		log.Warn("ignoring term map %s: %v", path, err)
		return nil, nil
	}
	return terms, nil
}

func (r *JobRunner) resolvePrompt(cfg config.Config, p jobs.JobPayload) (string, error) {
	if r.prompts == nil {
		return p.Prompt, nil
	}
	name := p.PromptName
	if p.Prompt == "" && name == "" {
		name = cfg.Translate.PromptName
	}
	return r.prompts.Resolve(p.Prompt, name)
}

func (r *JobRunner) appendEvent(jobID string, e Event) {
	if r.events == nil {
		return
	}
	ev := persistence.JobEvent{
		JobID:     jobID,
		Type:      string(e.Type),
		Batch:     e.Batch,
		Completed: e.Completed,
		Total:     e.Total,
		Message:   e.Message,
		CreatedAt: e.Time,
	}
	// The job context may already be cancelled; the cancellation itself is
	// worth recording.
	if err := r.events.AppendEvent(context.Background(), ev); err != nil {
		log.Warn("job %s: record event %s: %v", jobID, e.Type, err)
	}
}
