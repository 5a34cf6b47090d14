package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/subtitle"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
	"github.com/MimeLyc/batch-sub-translator/pkg/icron"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

var (
	batchArtifactPattern = regexp.MustCompile(`_batch(?:_\d+_\d+)?_\d+$`)
	rangeTagPattern      = regexp.MustCompile(`_\d+_\d+$`)
)

// firstSweepWindow bounds how far back the first sweep looks when the
// previous trigger is unknown or very recent.
const firstSweepWindow = 7 * 24 * time.Hour

// WatchService periodically scans directories for new subtitle files and
// enqueues a translation job for each one.
type WatchService struct {
	cron     *cron.Cron
	jobQueue *jobs.Queue
	group    singleflight.Group

	mu              sync.Mutex
	cfg             config.Config
	cronExpr        string
	entryID         cron.EntryID
	scheduled       bool
	ctx             context.Context
	lastTriggerTime time.Time
}

func NewWatchService(cfg config.Config, cron *cron.Cron, queue *jobs.Queue) *WatchService {
	return &WatchService{
		cfg:      cfg,
		cronExpr: cfg.Watch.CronExpr,
		cron:     cron,
		jobQueue: queue,
	}
}

// Config returns a copy of the current configuration, runtime settings
// included.
func (s *WatchService) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Schedule registers the sweep with the cron engine. ctx bounds every sweep.
func (s *WatchService) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.scheduleLocked()
}

func (s *WatchService) scheduleLocked() error {
	if len(s.cfg.Watch.Dirs) == 0 {
		log.Info("no watch directories configured, watch disabled")
		return nil
	}
	id, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.RunOnce(s.sweepContext()); err != nil {
			log.Error("watch sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule watch %q: %w", s.cronExpr, err)
	}
	s.entryID = id
	s.scheduled = true
	log.Info("watching %s on %q", strings.Join(s.cfg.Watch.Dirs, ", "), s.cronExpr)
	return nil
}

func (s *WatchService) sweepContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// ApplyRuntimeSettings updates the configuration used by later sweeps and
// jobs, and reschedules the sweep when the cron expression changed.
func (s *WatchService) ApplyRuntimeSettings(settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ApplyRuntimeSettings(settings)

	if s.cfg.Watch.CronExpr == s.cronExpr {
		return nil
	}
	if _, err := cron.ParseStandard(s.cfg.Watch.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Watch.CronExpr, err)
	}
	previous := s.cronExpr
	s.cronExpr = s.cfg.Watch.CronExpr
	if !s.scheduled {
		return nil
	}
	s.cron.Remove(s.entryID)
	s.scheduled = false
	if err := s.scheduleLocked(); err != nil {
		return err
	}
	log.Info("watch rescheduled from %q to %q", previous, s.cronExpr)
	return nil
}

// RunOnce sweeps every watch directory and returns the number of jobs it
// created. Concurrent calls share one sweep.
func (s *WatchService) RunOnce(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *WatchService) sweep(ctx context.Context) (int, error) {
	cfg := s.Config()
	sweepStart := time.Now()
	since, err := s.startTime(sweepStart)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, dir := range cfg.Watch.Dirs {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		log.Info("scanning %s for subtitles changed after %s", dir, since.Format(time.RFC3339))
		candidates, err := s.findCandidates(cfg, dir, since)
		if err != nil {
			log.Error("failed to scan %s: %v", dir, err)
			continue
		}
		for _, path := range candidates {
			if _, ok := s.enqueueWatchFile(cfg, path); ok {
				created++
			}
		}
	}

	s.mu.Lock()
	s.lastTriggerTime = sweepStart
	s.mu.Unlock()
	log.Info("watch sweep enqueued %d jobs", created)
	return created, nil
}

// startTime is the modification time after which files are picked up: the
// previous sweep, or the previous cron firing on the first sweep.
func (s *WatchService) startTime(now time.Time) (time.Time, error) {
	s.mu.Lock()
	last, expr := s.lastTriggerTime, s.cronExpr
	s.mu.Unlock()
	if !last.IsZero() {
		return last, nil
	}

	info, err := icron.GetTriggerInfo(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("get cron schedule: %w", err)
	}
	if info.Last.IsZero() || now.Add(-24*time.Hour).Before(info.Last) {
		return now.Add(-firstSweepWindow), nil
	}
	return info.Last, nil
}

// findCandidates lists source subtitles in dir changed after since that
// still need a translation.
func (s *WatchService) findCandidates(cfg config.Config, dir string, since time.Time) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("directory %s: %w", dir, err)
	}
	recent, err := file.FindRecentAfter(dir, since, ".srt")
	if err != nil {
		return nil, fmt.Errorf("find recent files: %w", err)
	}

	target := cfg.TargetTag()
	var ret []string
	for _, path := range recent {
		if IsGeneratedFile(path, cfg.Watch.OutputSuffix) {
			continue
		}
		output := watchOutputPath(path, cfg.Watch.OutputSuffix)
		if file.Exists(output) {
			log.Debug("skipping %s: %s exists", path, output)
			continue
		}
		sub, err := subtitle.ReadFile(path)
		if err != nil {
			log.Warn("skipping %s: %v", path, err)
			continue
		}
		if subtitle.SameLanguage(sub.Language, target) {
			log.Debug("skipping %s: already in %s", path, target)
			continue
		}
		ret = append(ret, path)
	}
	return ret, nil
}

func (s *WatchService) enqueueWatchFile(cfg config.Config, path string) (*jobs.TranslationJob, bool) {
	payload := jobs.JobPayload{
		InputPath:  path,
		OutputPath: watchOutputPath(path, cfg.Watch.OutputSuffix),
	}
	job, created := s.jobQueue.Enqueue(jobs.EnqueueRequest{
		Source:    jobs.SourceWatch,
		DedupeKey: payload.DefaultDedupeKey(),
		Payload:   payload,
	})
	if created {
		log.Info("enqueued job %s for %s", job.ID, path)
	}
	return job, created
}

func watchOutputPath(path, suffix string) string {
	return file.AddSuffix(path, suffix)
}

// IsGeneratedFile reports whether path is a translation output or a run
// artifact rather than a source subtitle.
func IsGeneratedFile(path, suffix string) bool {
	base := file.TrimExt(filepath.Base(path))
	if batchArtifactPattern.MatchString(base) {
		return true
	}
	if suffix == "" {
		return false
	}
	if strings.HasSuffix(base, suffix) {
		return true
	}
	return rangeTagPattern.MatchString(base) && strings.HasSuffix(rangeTagPattern.ReplaceAllString(base, ""), suffix)
}
