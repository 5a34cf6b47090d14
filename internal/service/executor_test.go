package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/persistence"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/internal/termmap"
	"github.com/MimeLyc/batch-sub-translator/internal/translator"
)

type memoryEventLog struct {
	mu     sync.Mutex
	events []persistence.JobEvent
}

func (m *memoryEventLog) AppendEvent(_ context.Context, ev persistence.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryEventLog) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		ret = append(ret, ev.Type)
	}
	return ret
}

func TestJobRequestDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Translate.BatchSize = 7
	cfg.Translate.ContextSize = 3
	cfg.Translate.Workers = 2

	req := JobRequest(cfg, jobs.JobPayload{InputPath: "a.srt", OutputPath: "a.zh.srt"})
	assert.Equal(t, 7, req.Options.BatchSize)
	assert.Equal(t, 3, req.Options.ContextSize)
	assert.Equal(t, 2, req.Options.Workers)
	assert.True(t, req.Options.Resume)
	assert.Nil(t, req.Options.Range)

	req = JobRequest(cfg, jobs.JobPayload{
		InputPath:  "a.srt",
		OutputPath: "a.zh.srt",
		BatchSize:  10,
		Threads:    4,
		NoResume:   true,
		Start:      5,
		End:        8,
	})
	assert.Equal(t, 10, req.Options.BatchSize)
	assert.Equal(t, 4, req.Options.Workers)
	assert.False(t, req.Options.Resume)
	assert.Equal(t, &Range{Start: 5, End: 8}, req.Options.Range)
}

func TestJobRunnerTranslatesFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "movie.srt")
	output := filepath.Join(dir, "movie.zh.srt")
	require.NoError(t, subtitle.WriteFile(input, makeRecords(12)))

	cfg := config.Default()
	cfg.Translate.BatchSize = 5

	library, err := prompt.NewLibrary()
	require.NoError(t, err)

	var gotPrompt string
	events := &memoryEventLog{}
	runner := NewJobRunner(
		ConfigFunc(func() config.Config { return cfg }),
		library,
		WithEventLog(events),
		WithTranslatorFactory(func(_ config.Config, stylePrompt string) (translator.Translator, error) {
			gotPrompt = stylePrompt
			return upper(), nil
		}),
	)

	var mu sync.Mutex
	var lastCompleted, lastTotal int
	job := &jobs.TranslationJob{
		ID: "job-1",
		Payload: jobs.JobPayload{
			InputPath:  input,
			OutputPath: output,
			Threads:    3,
			PromptName: "tech",
		},
	}
	err = runner.Execute(context.Background(), job, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		lastCompleted, lastTotal = completed, total
	})
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "API")
	mu.Lock()
	assert.Equal(t, 3, lastCompleted)
	assert.Equal(t, 3, lastTotal)
	mu.Unlock()

	translated, err := subtitle.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, translated.Records, 12)
	assert.Equal(t, "LINE 1", translated.Records[0].Text)
	assert.Equal(t, "LINE 12", translated.Records[11].Text)

	types := events.types()
	assert.Contains(t, types, string(EventRunStarted))
	assert.Contains(t, types, string(EventBatchCompleted))
	assert.Contains(t, types, string(EventRunMerged))
}

func TestJobRunnerUsesConfiguredPrompt(t *testing.T) {
	cfg := config.Default()
	cfg.Translate.PromptName = "news"

	library, err := prompt.NewLibrary()
	require.NoError(t, err)
	runner := NewJobRunner(ConfigFunc(func() config.Config { return cfg }), library)

	news, err := library.Get("news")
	require.NoError(t, err)

	got, err := runner.resolvePrompt(cfg, jobs.JobPayload{})
	require.NoError(t, err)
	assert.Equal(t, news.Prompt, got)

	got, err = runner.resolvePrompt(cfg, jobs.JobPayload{Prompt: "my own style"})
	require.NoError(t, err)
	assert.Equal(t, "my own style", got)
}

func TestJobRunnerReportsMissingInput(t *testing.T) {
	cfg := config.Default()
	runner := NewJobRunner(
		ConfigFunc(func() config.Config { return cfg }),
		nil,
		WithTranslatorFactory(func(config.Config, string) (translator.Translator, error) {
			return upper(), nil
		}),
	)

	dir := t.TempDir()
	err := runner.Execute(context.Background(), &jobs.TranslationJob{
		ID: "job-1",
		Payload: jobs.JobPayload{
			InputPath:  filepath.Join(dir, "missing.srt"),
			OutputPath: filepath.Join(dir, "missing.zh.srt"),
		},
	}, nil)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrFileNotFound))
}

func TestJobRunnerWithQueue(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, subtitle.WriteFile(input, makeRecords(3)))

	cfg := config.Default()
	runner := NewJobRunner(
		ConfigFunc(func() config.Config { return cfg }),
		nil,
		WithTranslatorFactory(func(config.Config, string) (translator.Translator, error) {
			return upper(), nil
		}),
	)

	q := jobs.NewQueue(1, nil)
	q.Start(runner.Execute)
	t.Cleanup(q.Stop)

	job, created := q.Enqueue(jobs.EnqueueRequest{
		Source:  jobs.SourceAPI,
		Payload: jobs.JobPayload{InputPath: input, OutputPath: filepath.Join(dir, "ep.zh.srt")},
	})
	require.True(t, created)

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == jobs.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, jobs.Progress{Completed: 1, Total: 1}, got.Progress)
}

func TestLoadTermMapDiscoversClosestFile(t *testing.T) {
	root := t.TempDir()
	season := filepath.Join(root, "Season 01")
	require.NoError(t, os.MkdirAll(season, 0o755))
	input := filepath.Join(season, "ep1.srt")
	require.NoError(t, subtitle.WriteFile(input, []subtitle.Record{
		{Index: 1, StartTime: "00:00:01,000", EndTime: "00:00:02,000", Text: "Okarun is running away from the ghost in the old tunnel."},
		{Index: 2, StartTime: "00:00:03,000", EndTime: "00:00:04,000", Text: "We have to find the missing pieces before the night is over."},
		{Index: 3, StartTime: "00:00:05,000", EndTime: "00:00:06,000", Text: "Please tell me what happened to your grandmother yesterday."},
	}))
	require.NoError(t, termmap.Save(termmap.FilePath(root, "en", "zh"), termmap.TermMap{"Okarun": "奥卡轮"}))

	terms, err := loadTermMap(config.Default(), input)
	require.NoError(t, err)
	assert.Equal(t, termmap.TermMap{"Okarun": "奥卡轮"}, terms)

	cfg := config.Default()
	cfg.Translate.TargetLanguage = "ja"
	terms, err = loadTermMap(cfg, input)
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestLoadTermMapConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.json")
	require.NoError(t, termmap.Save(path, termmap.TermMap{"Momo": "桃"}))

	cfg := config.Default()
	cfg.Translate.TermMapFile = path
	terms, err := loadTermMap(cfg, filepath.Join(dir, "missing.srt"))
	require.NoError(t, err)
	assert.Equal(t, "桃", terms["Momo"])

	cfg.Translate.TermMapFile = filepath.Join(dir, "none.json")
	_, err = loadTermMap(cfg, filepath.Join(dir, "missing.srt"))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConfig))
}

type contextRecorder struct {
	mu       sync.Mutex
	contexts []string
}

func (c *contextRecorder) Translate(_ context.Context, text string, contextText string) (string, error) {
	c.mu.Lock()
	c.contexts = append(c.contexts, contextText)
	c.mu.Unlock()
	return text, nil
}

func TestJobRunnerInjectsTerms(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ep.srt")
	require.NoError(t, subtitle.WriteFile(input, makeRecords(3)))
	terms := filepath.Join(dir, "terms.json")
	require.NoError(t, termmap.Save(terms, termmap.TermMap{"line 2": "第二行"}))

	cfg := config.Default()
	cfg.Translate.TermMapFile = terms
	rec := &contextRecorder{}
	runner := NewJobRunner(
		ConfigFunc(func() config.Config { return cfg }),
		nil,
		WithTranslatorFactory(func(config.Config, string) (translator.Translator, error) {
			return rec, nil
		}),
	)

	_, err := runner.Translate(context.Background(), "run-1", jobs.JobPayload{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "ep.zh.srt"),
	}, nil)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.contexts)
	assert.Contains(t, rec.contexts[0], "line 2 => 第二行")
}

func TestJobRunnerAddsShowInfo(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "Season 1", "ep.srt")
	require.NoError(t, os.MkdirAll(filepath.Dir(input), 0o755))
	require.NoError(t, subtitle.WriteFile(input, makeRecords(3)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tvshow.nfo"),
		[]byte("<tvshow><title>Dandadan</title></tvshow>"), 0o644))

	run := func(enabled bool) []string {
		cfg := config.Default()
		cfg.Translate.ShowInfo = enabled
		rec := &contextRecorder{}
		runner := NewJobRunner(
			ConfigFunc(func() config.Config { return cfg }),
			nil,
			WithTranslatorFactory(func(config.Config, string) (translator.Translator, error) {
				return rec, nil
			}),
		)
		_, err := runner.Translate(context.Background(), "run-1", jobs.JobPayload{
			InputPath:  input,
			OutputPath: filepath.Join(t.TempDir(), "ep.zh.srt"),
		}, nil)
		require.NoError(t, err)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.contexts
	}

	contexts := run(true)
	require.NotEmpty(t, contexts)
	assert.Contains(t, contexts[0], "Show Title: Dandadan")

	contexts = run(false)
	require.NotEmpty(t, contexts)
	assert.NotContains(t, contexts[0], "Dandadan")
}
