package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/httpapi"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/library"
	"github.com/MimeLyc/batch-sub-translator/internal/persistence"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr      string
		uiDir     string
		sweepNow  bool
		watchDirs []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API and the watch scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if cmd.Flags().Changed("addr") {
				opts = append(opts, func(c *config.Config) { c.Server.Addr = addr })
			}
			if cmd.Flags().Changed("watch") {
				opts = append(opts, func(c *config.Config) { c.Watch.Dirs = watchDirs })
			}
			cfg, err := ctx.loadConfig(opts...)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, *cfg, uiDir, sweepNow)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&uiDir, "ui-dir", "", "Serve a web UI from this directory")
	cmd.Flags().BoolVar(&sweepNow, "sweep-now", false, "Scan the watch directories once at startup")
	cmd.Flags().StringSliceVar(&watchDirs, "watch", nil, "Directories to watch for new subtitles")

	return cmd
}

// serve wires the job queue, its store, the watch scheduler and the HTTP
// API, and runs them until ctx is done.
func serve(ctx context.Context, cfg config.Config, uiDir string, sweepNow bool) error {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return service.WrapError(err, service.ErrStorage, "open job database")
	}
	defer store.Close()

	saved, err := config.LoadRuntimeSettingsFile(cfg.SettingsPath())
	switch {
	case err == nil:
		cfg.ApplyRuntimeSettings(saved)
		log.Info("loaded runtime settings from %s", cfg.SettingsPath())
	case !errors.Is(err, os.ErrNotExist):
		log.Warn("ignoring runtime settings: %v", err)
	}
	settings, err := config.NewRuntimeSettingsStore(cfg.SettingsPath(), cfg.RuntimeSettings())
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "runtime settings")
	}
	settings.OnUpdate(func(s config.RuntimeSettings) {
		log.Info("runtime settings updated: provider=%s model=%s cron=%q target=%s",
			s.Provider, s.Model, s.CronExpr, s.TargetLanguage)
	})

	prompts, err := prompt.Load(cfg.PromptFilePath())
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "load prompts")
	}

	queue := jobs.NewQueue(cfg.Server.Workers, store)
	cronEng := cron.New()
	watch := service.NewWatchService(cfg, cronEng, queue)
	runner := service.NewJobRunner(watch, prompts, service.WithEventLog(store))

	suffix := cfg.Watch.OutputSuffix
	scanner := library.NewScanner(library.SourcesFromDirs(cfg.Watch.Dirs), cfg.TargetTag(),
		library.WithOutputSuffix(suffix),
		library.WithFilter(func(path string) bool { return !service.IsGeneratedFile(path, suffix) }),
	)
	apply := func(next config.RuntimeSettings) error {
		if err := watch.ApplyRuntimeSettings(next); err != nil {
			return err
		}
		if next.TargetLanguage != "" {
			return scanner.UpdateTargetLanguage(next.TargetLanguage)
		}
		return nil
	}

	queue.Start(runner.Execute)
	defer queue.Stop()

	srv := httpapi.NewServer(queue,
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(apply),
		httpapi.WithPromptLibrary(prompts),
		httpapi.WithLibrary(scanner),
		httpapi.WithEventLog(store),
		httpapi.WithJobStatus(func(job *jobs.TranslationJob) (*service.Status, error) {
			return service.ReadStatus(service.JobRequest(watch.Config(), job.Payload))
		}),
		httpapi.WithOutputSuffix(cfg.Watch.OutputSuffix),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpapi.WithUI(uiDir, uiDir != ""),
	)

	if sweepNow {
		go func() {
			n, err := watch.RunOnce(ctx)
			if err != nil {
				log.Error("initial sweep: %v", err)
				return
			}
			log.Info("initial sweep queued %d files", n)
		}()
	}

	return runWithComponents(ctx, cfg.Server.Addr, watch, cronEng, srv)
}

func runWithComponents(ctx context.Context, addr string, sched scheduler, cronEng cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule watch: %w", err)
	}
	cronEng.Start()
	defer cronEng.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()
	log.Info("HTTP API listening on %s", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
