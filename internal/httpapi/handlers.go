package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[jobs.Status]int)
	for _, job := range s.queue.List() {
		counts[job.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   counts,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.List())
}

type enqueueJobRequest struct {
	Source      string `json:"source"`
	DedupeKey   string `json:"dedupe_key"`
	InputPath   string `json:"input_path"`
	OutputPath  string `json:"output_path"`
	BatchSize   int    `json:"batch_size"`
	ContextSize int    `json:"context_size"`
	Threads     int    `json:"threads"`
	NoResume    bool   `json:"no_resume"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Prompt      string `json:"prompt"`
	PromptName  string `json:"prompt_name"`
}

func (s *Server) validateEnqueue(req *enqueueJobRequest) error {
	req.InputPath = strings.TrimSpace(req.InputPath)
	req.OutputPath = strings.TrimSpace(req.OutputPath)
	if req.InputPath == "" {
		return errors.New("input_path is required")
	}
	if req.OutputPath == "" {
		req.OutputPath = file.AddSuffix(req.InputPath, s.outputSuffix)
	}
	if req.OutputPath == req.InputPath {
		return errors.New("output_path must differ from input_path")
	}
	if req.BatchSize < 0 || req.ContextSize < 0 || req.Threads < 0 {
		return errors.New("batch_size, context_size and threads must not be negative")
	}
	if (req.Start > 0) != (req.End > 0) {
		return errors.New("start and end must be given together")
	}
	if req.Start < 0 || req.End < 0 || req.Start > req.End {
		return fmt.Errorf("invalid range %d-%d", req.Start, req.End)
	}
	if strings.TrimSpace(req.Prompt) != "" && strings.TrimSpace(req.PromptName) != "" {
		return errors.New("prompt and prompt_name cannot be used together")
	}
	if req.PromptName != "" && s.prompts != nil {
		if _, err := s.prompts.Get(req.PromptName); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.validateEnqueue(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == "" {
		req.Source = jobs.SourceAPI
	}

	payload := jobs.JobPayload{
		InputPath:   req.InputPath,
		OutputPath:  req.OutputPath,
		BatchSize:   req.BatchSize,
		ContextSize: req.ContextSize,
		Threads:     req.Threads,
		NoResume:    req.NoResume,
		Start:       req.Start,
		End:         req.End,
		Prompt:      req.Prompt,
		PromptName:  req.PromptName,
	}
	if req.DedupeKey == "" {
		req.DedupeKey = payload.DefaultDedupeKey()
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   payload,
	})
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.queue.Cancel(id)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobFinished):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event log is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.queue.Get(id); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = v
	}

	events, err := s.events.ListEvents(r.Context(), id, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleLibrary lists the watched subtitle files. refresh=true skips the
// scan cache.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusNotImplemented, "library is not configured")
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		s.library.Invalidate()
	}
	lib, err := s.library.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

type promptsResponse struct {
	Current string          `json:"current,omitempty"`
	Presets []prompt.Preset `json:"presets"`
}

func (s *Server) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	if s.prompts == nil {
		writeError(w, http.StatusNotImplemented, "prompt library is not configured")
		return
	}
	resp := promptsResponse{Presets: s.prompts.List()}
	if cur, ok := s.prompts.Current(); ok {
		resp.Current = cur.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings.Redacted())
}

// handleUpdateSettings replaces the runtime settings. An empty api_key keeps
// the stored key.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		current, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.APIKey = current.APIKey
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.apply != nil {
		if err := s.apply(saved); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, saved.Redacted())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
