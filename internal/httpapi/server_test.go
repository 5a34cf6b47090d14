package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/library"
	"github.com/MimeLyc/batch-sub-translator/internal/persistence"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

func initialSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		Provider:       "deepseek",
		APIKey:         "old-ak-1234",
		CronExpr:       "0 0 * * *",
		TargetLanguage: "zh-Hans",
	}
}

func do(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type createJobResponse struct {
	Created bool                 `json:"created"`
	Job     *jobs.TranslationJob `json:"job"`
}

func TestServer_Health(t *testing.T) {
	srv := NewServer(jobs.NewQueue(1, nil))
	rec := do(t, srv.Handler(), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_CreateJob_DerivesOutputAndDedupes(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue, WithOutputSuffix(".chs"))

	body := `{"input_path":"/subs/a.srt","batch_size":20,"start":5,"end":8}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ret createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.True(t, ret.Created)
	require.NotNil(t, ret.Job)
	assert.Equal(t, jobs.SourceAPI, ret.Job.Source)
	assert.Equal(t, "/subs/a.chs.srt", ret.Job.Payload.OutputPath)
	assert.Equal(t, 20, ret.Job.Payload.BatchSize)
	assert.Equal(t, "/subs/a.chs.srt|5-8", ret.Job.DedupeKey)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/jobs", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var again createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.False(t, again.Created)
	assert.Equal(t, ret.Job.ID, again.Job.ID)
	assert.Len(t, queue.List(), 1)
}

func TestServer_CreateJob_Validation(t *testing.T) {
	lib, err := prompt.NewLibrary()
	require.NoError(t, err)
	srv := NewServer(jobs.NewQueue(1, nil), WithPromptLibrary(lib))

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing input", `{"output_path":"/subs/a.zh.srt"}`},
		{"same output", `{"input_path":"/subs/a.srt","output_path":"/subs/a.srt"}`},
		{"start without end", `{"input_path":"/subs/a.srt","start":3}`},
		{"reversed range", `{"input_path":"/subs/a.srt","start":8,"end":5}`},
		{"negative batch", `{"input_path":"/subs/a.srt","batch_size":-1}`},
		{"prompt and name", `{"input_path":"/subs/a.srt","prompt":"x","prompt_name":"news"}`},
		{"unknown prompt", `{"input_path":"/subs/a.srt","prompt_name":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestServer_CancelJob(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue)

	job, _ := queue.Enqueue(jobs.EnqueueRequest{
		Source:  jobs.SourceAPI,
		Payload: jobs.JobPayload{InputPath: "/subs/a.srt", OutputPath: "/subs/a.zh.srt"},
	})

	rec := do(t, srv.Handler(), http.MethodDelete, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got jobs.TranslationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, jobs.StatusCancelled, got.Status)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/jobs/"+job.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv.Handler(), http.MethodDelete, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListJobs(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue)
	for _, name := range []string{"a", "b"} {
		queue.Enqueue(jobs.EnqueueRequest{
			DedupeKey: name,
			Payload:   jobs.JobPayload{InputPath: name + ".srt", OutputPath: name + ".zh.srt"},
		})
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.TranslationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func writeRecords(t *testing.T, path string, texts ...string) {
	t.Helper()
	records := make([]subtitle.Record, len(texts))
	for i, text := range texts {
		records[i] = subtitle.Record{
			Index:     i + 1,
			StartTime: fmt.Sprintf("00:00:%02d,000", i+1),
			EndTime:   fmt.Sprintf("00:00:%02d,500", i+1),
			Text:      text,
		}
	}
	require.NoError(t, subtitle.WriteFile(path, records))
}

func TestServer_JobDetail_PreviewAndStatus(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.srt")
	output := filepath.Join(dir, "a.zh.srt")
	writeRecords(t, input, "one", "two", "three")
	writeRecords(t, output, "一", "two", "三")

	queue := jobs.NewQueue(1, nil)
	var statusFor string
	srv := NewServer(queue, WithJobStatus(func(job *jobs.TranslationJob) (*service.Status, error) {
		statusFor = job.ID
		return &service.Status{TotalBatches: 1, Completed: []int{1}, Remaining: []int{}}, nil
	}))
	job, _ := queue.Enqueue(jobs.EnqueueRequest{
		Payload: jobs.JobPayload{InputPath: input, OutputPath: output},
	})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/jobs/"+job.ID+"?offset=1&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got jobDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, statusFor)
	require.NotNil(t, got.Status)
	assert.Equal(t, 1, got.Status.TotalBatches)
	assert.Equal(t, 3, got.PreviewTotal)
	assert.Equal(t, 1, got.PreviewOffset)
	require.Len(t, got.Preview, 2)
	assert.Equal(t, 2, got.Preview[0].Index)
	assert.Equal(t, "two", got.Preview[0].OriginalText)
	assert.Empty(t, got.Preview[0].TranslatedText)
	assert.Equal(t, "三", got.Preview[1].TranslatedText)
}

func TestServer_JobDetail_MissingInput(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue)
	job, _ := queue.Enqueue(jobs.EnqueueRequest{
		Payload: jobs.JobPayload{InputPath: filepath.Join(t.TempDir(), "gone.srt"), OutputPath: "x.srt"},
	})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got jobDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.PreviewError)
	assert.Empty(t, got.Preview)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobEvents(t *testing.T) {
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "subtrans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue, WithEventLog(store))
	job, _ := queue.Enqueue(jobs.EnqueueRequest{
		Payload: jobs.JobPayload{InputPath: "a.srt", OutputPath: "a.zh.srt"},
	})

	ctx := context.Background()
	require.NoError(t, store.AppendEvent(ctx, persistence.JobEvent{JobID: job.ID, Type: "run_started", Total: 2}))
	require.NoError(t, store.AppendEvent(ctx, persistence.JobEvent{JobID: job.ID, Type: "batch_completed", Batch: 1, Completed: 1, Total: 2}))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/jobs/"+job.ID+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []persistence.JobEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)

	rec = do(t, srv.Handler(), http.MethodGet, fmt.Sprintf("/api/jobs/%s/events?after=%d", job.ID, events[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var later []persistence.JobEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &later))
	require.Len(t, later, 1)
	assert.Equal(t, "batch_completed", later[0].Type)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/jobs/"+job.ID+"/events?after=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeLibrary struct {
	lib         *library.Library
	err         error
	invalidated int
}

func (f *fakeLibrary) Scan(context.Context) (*library.Library, error) {
	return f.lib, f.err
}

func (f *fakeLibrary) Invalidate() {
	f.invalidated++
}

func TestServer_Library(t *testing.T) {
	fake := &fakeLibrary{lib: &library.Library{
		Sources: []library.Source{{ID: "dir1", Name: "tv", Path: "/tv", ItemCount: 1}},
		Items:   []library.Item{{ID: "dir1|/tv/Show", SourceID: "dir1", Name: "Show", Path: "/tv/Show", FileCount: 1}},
		Entries: []library.Entry{{ID: "/tv/Show/ep1.srt", Name: "ep1", Path: "/tv/Show/ep1.srt", Translatable: true}},
	}}
	srv := NewServer(jobs.NewQueue(1, nil), WithLibrary(fake))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/library", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got library.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Entries, 1)
	assert.True(t, got.Entries[0].Translatable)
	assert.Equal(t, 0, fake.invalidated)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/library?refresh=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.invalidated)

	fake.err = errors.New("disk gone")
	rec = do(t, srv.Handler(), http.MethodGet, "/api/library", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Library_NotConfigured(t *testing.T) {
	srv := NewServer(jobs.NewQueue(1, nil))
	rec := do(t, srv.Handler(), http.MethodGet, "/api/library", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_ListPrompts(t *testing.T) {
	lib, err := prompt.NewLibrary()
	require.NoError(t, err)
	require.NoError(t, lib.SetCurrent("film"))
	srv := NewServer(jobs.NewQueue(1, nil), WithPromptLibrary(lib))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/prompts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got promptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "film", got.Current)
	assert.Len(t, got.Presets, 8)

	rec = do(t, NewServer(jobs.NewQueue(1, nil)).Handler(), http.MethodGet, "/api/prompts", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_GetSettings_RedactsKey(t *testing.T) {
	store := &fakeSettingsStore{current: initialSettings()}
	srv := NewServer(jobs.NewQueue(1, nil), WithRuntimeSettingsStore(store))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "*******1234", got.APIKey)
	assert.Equal(t, "0 0 * * *", got.CronExpr)
}

func TestServer_UpdateSettings(t *testing.T) {
	store := &fakeSettingsStore{current: initialSettings()}

	var applied []config.RuntimeSettings
	srv := NewServer(
		jobs.NewQueue(1, nil),
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = append(applied, next)
			return nil
		}),
	)

	body := `{"provider":"custom","api_url":"https://new.example/v1/chat/completions","model":"new-model","cron_expr":"*/10 * * * *","target_language":"en"}`
	rec := do(t, srv.Handler(), http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "old-ak-1234", store.current.APIKey)
	assert.Equal(t, "custom", store.current.Provider)
	assert.Equal(t, "*/10 * * * *", store.current.CronExpr)
	require.Len(t, applied, 1)
	assert.Equal(t, "en", applied[0].TargetLanguage)

	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotContains(t, got.APIKey, "old-ak")
}

func TestServer_UpdateSettings_Errors(t *testing.T) {
	t.Run("invalid settings", func(t *testing.T) {
		store := &fakeSettingsStore{current: initialSettings()}
		srv := NewServer(jobs.NewQueue(1, nil), WithRuntimeSettingsStore(store))
		rec := do(t, srv.Handler(), http.MethodPut, "/api/settings", `{"provider":"deepseek","cron_expr":"whenever","target_language":"en"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, initialSettings(), store.current)
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fakeSettingsStore{current: initialSettings(), updateErr: errors.New("save failed")}
		srv := NewServer(jobs.NewQueue(1, nil), WithRuntimeSettingsStore(store))
		rec := do(t, srv.Handler(), http.MethodPut, "/api/settings", `{"provider":"deepseek","target_language":"en"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		srv := NewServer(jobs.NewQueue(1, nil))
		rec := do(t, srv.Handler(), http.MethodGet, "/api/settings", "")
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestServer_JobStream(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	queue.Enqueue(jobs.EnqueueRequest{
		Payload: jobs.JobPayload{InputPath: "a.srt", OutputPath: "a.zh.srt"},
	})
	ts := httptest.NewServer(NewServer(queue).Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var list []jobs.TranslationJob
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a.srt", list[0].Payload.InputPath)
}

func TestServer_ShutdownEndsJobStream(t *testing.T) {
	srv := NewServer(jobs.NewQueue(1, nil))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/jobs/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(reader)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := NewServer(jobs.NewQueue(1, nil), WithCORSOrigins([]string{"http://ui.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "http://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestServer_ServesSPAFromStaticDir(t *testing.T) {
	staticDir := filepath.Join(t.TempDir(), "web")
	require.NoError(t, os.MkdirAll(staticDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>spa</html>"), 0o644))

	srv := NewServer(jobs.NewQueue(1, nil), WithUI(staticDir, true))
	for _, url := range []string{"/", "/jobs/abc"} {
		rec := do(t, srv.Handler(), http.MethodGet, url, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "spa")
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
