package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

const (
	defaultJobPreviewLimit = 80
	maxJobPreviewLimit     = 500
)

type jobDetailResponse struct {
	Job           *jobs.TranslationJob `json:"job"`
	Status        *service.Status      `json:"status,omitempty"`
	Preview       []jobPreviewLine     `json:"preview"`
	PreviewOffset int                  `json:"preview_offset"`
	PreviewLimit  int                  `json:"preview_limit"`
	PreviewTotal  int                  `json:"preview_total"`
	PreviewError  string               `json:"preview_error,omitempty"`
}

type jobPreviewLine struct {
	Index          int    `json:"index"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text,omitempty"`
}

// handleJobDetail returns a job with its on-disk progress and a page of
// source cues next to their translation, when the output exists.
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit := min(parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultJobPreviewLimit), maxJobPreviewLimit)
	if limit == 0 {
		limit = defaultJobPreviewLimit
	}

	resp := jobDetailResponse{
		Job:           job,
		Preview:       []jobPreviewLine{},
		PreviewOffset: offset,
		PreviewLimit:  limit,
	}

	if s.status != nil {
		status, err := s.status(job)
		if err != nil {
			log.Debug("job %s: read status: %v", job.ID, err)
		} else {
			resp.Status = status
		}
	}

	source, err := subtitle.ReadFile(job.Payload.InputPath)
	if err != nil {
		resp.PreviewError = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	translated := readTranslatedTexts(job.Payload.OutputPath)
	resp.PreviewTotal = len(source.Records)
	resp.Preview = buildPreviewLines(source.Records, translated, offset, limit)
	writeJSON(w, http.StatusOK, resp)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// readTranslatedTexts maps sequence number to text for the output document.
// A missing or unreadable output yields an empty map.
func readTranslatedTexts(path string) map[int]string {
	ret := make(map[int]string)
	if path == "" || !file.Exists(path) {
		return ret
	}
	out, err := subtitle.ReadFile(path)
	if err != nil {
		log.Debug("read output %s: %v", path, err)
		return ret
	}
	for _, rec := range out.Records {
		ret[rec.Index] = rec.Text
	}
	return ret
}

func buildPreviewLines(source []subtitle.Record, translated map[int]string, offset int, limit int) []jobPreviewLine {
	if offset >= len(source) {
		return []jobPreviewLine{}
	}
	end := min(offset+limit, len(source))
	ret := make([]jobPreviewLine, 0, end-offset)
	for _, rec := range source[offset:end] {
		line := jobPreviewLine{
			Index:        rec.Index,
			StartTime:    rec.StartTime,
			EndTime:      rec.EndTime,
			OriginalText: rec.Text,
		}
		// Untranslated cues of a range run carry the source text; leave them
		// blank so clients can tell them apart.
		if text, ok := translated[rec.Index]; ok && text != rec.Text {
			line.TranslatedText = text
		}
		ret = append(ret, line)
	}
	return ret
}
