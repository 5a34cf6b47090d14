package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

type translateFlags struct {
	provider       string
	apiURL         string
	apiKey         string
	model          string
	batchSize      int
	contextSize    int
	threads        int
	noResume       bool
	start          int
	end            int
	prompt         string
	promptName     string
	promptFile     string
	targetLanguage string
	termMap        string
	noShowInfo     bool
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	f := &translateFlags{}

	cmd := &cobra.Command{
		Use:   "translate <input.srt> <output.srt>",
		Short: "Translate an SRT file, resuming a previous run when possible",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(cmd); err != nil {
				return err
			}
			cfg, err := ctx.loadConfig(f.options(cmd)...)
			if err != nil {
				return err
			}
			library, err := prompt.Load(cfg.PromptFilePath())
			if err != nil {
				return service.WrapError(err, service.ErrConfig, "load prompts")
			}

			runner := service.NewJobRunner(service.ConfigFunc(func() config.Config { return *cfg }), library)
			payload := jobs.JobPayload{
				InputPath:  args[0],
				OutputPath: args[1],
				NoResume:   f.noResume,
				Start:      f.start,
				End:        f.end,
				Prompt:     f.prompt,
				PromptName: f.promptName,
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progress := newProgressReporter(cmd.ErrOrStderr(), isTerminal(cmd.ErrOrStderr()))
			result, err := runner.Translate(runCtx, uuid.NewString(), payload, progress.Report)
			progress.Finish()
			if result != nil {
				printRunSummary(cmd.OutOrStdout(), result)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.provider, "provider", "", "LLM provider: deepseek, grok, openrouter or custom")
	flags.StringVar(&f.apiURL, "api-url", "", "Chat completions endpoint")
	flags.StringVar(&f.apiKey, "api-key", "", "API key (default $LLM_API_KEY)")
	flags.StringVar(&f.model, "model", "", "Model name")
	flags.IntVar(&f.batchSize, "batch-size", 0, "Subtitles per request (default 5)")
	flags.IntVar(&f.contextSize, "context-size", 0, "Neighbouring subtitles sent as context (default 2)")
	flags.IntVar(&f.threads, "threads", 0, "Batches translated in parallel (default 1)")
	flags.BoolVar(&f.noResume, "no-resume", false, "Discard previous progress and start over")
	flags.IntVar(&f.start, "start", 0, "First subtitle number to translate")
	flags.IntVar(&f.end, "end", 0, "Last subtitle number to translate")
	flags.StringVar(&f.prompt, "prompt", "", "Custom style prompt")
	flags.StringVar(&f.promptName, "prompt-name", "", "Style prompt preset, see `subtrans prompts`")
	flags.StringVar(&f.promptFile, "prompt-file", "", "User prompt preset file")
	flags.StringVar(&f.targetLanguage, "target-language", "", "Target language as a BCP 47 tag (default zh-Hans)")
	flags.StringVar(&f.termMap, "term-map", "", "Terminology JSON file (default: nearest term_map.<src>-<tgt>.json)")
	flags.BoolVar(&f.noShowInfo, "no-show-info", false, "Do not add NFO show metadata to the prompt")

	return cmd
}

func (f *translateFlags) validate(cmd *cobra.Command) error {
	changed := cmd.Flags().Changed
	if changed("start") != changed("end") {
		return service.NewError(service.ErrValidation, "--start and --end must be given together")
	}
	if changed("start") {
		if f.start < 1 || f.end < 1 {
			return service.NewError(service.ErrValidation, "--start and --end must be positive")
		}
		if f.start > f.end {
			return service.NewError(service.ErrValidation,
				fmt.Sprintf("--start (%d) must not be greater than --end (%d)", f.start, f.end))
		}
	}
	if f.prompt != "" && f.promptName != "" {
		return service.NewError(service.ErrValidation, "--prompt and --prompt-name cannot be used together")
	}
	return nil
}

// options turns the flags the user set into config overrides.
func (f *translateFlags) options(cmd *cobra.Command) []config.Option {
	changed := cmd.Flags().Changed
	var opts []config.Option
	add := func(name string, opt config.Option) {
		if changed(name) {
			opts = append(opts, opt)
		}
	}

	add("provider", func(c *config.Config) { c.LLM.Provider = f.provider })
	add("api-url", func(c *config.Config) { c.LLM.APIURL = f.apiURL })
	add("api-key", func(c *config.Config) { c.LLM.APIKey = f.apiKey })
	add("model", func(c *config.Config) { c.LLM.Model = f.model })
	add("batch-size", func(c *config.Config) { c.Translate.BatchSize = f.batchSize })
	add("context-size", func(c *config.Config) { c.Translate.ContextSize = f.contextSize })
	add("threads", func(c *config.Config) { c.Translate.Workers = f.threads })
	add("prompt-file", func(c *config.Config) { c.Translate.PromptFile = f.promptFile })
	add("target-language", func(c *config.Config) { c.Translate.TargetLanguage = f.targetLanguage })
	add("term-map", func(c *config.Config) { c.Translate.TermMapFile = f.termMap })
	add("no-show-info", func(c *config.Config) { c.Translate.ShowInfo = !f.noShowInfo })
	return opts
}
