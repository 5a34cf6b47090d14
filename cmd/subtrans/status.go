package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		input     string
		start     int
		end       int
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "status <output.srt>",
		Short: "Show the progress of a translation run",
		Long: "Show which batches of a run are done. Without --input the total is taken " +
			"from the progress file or the highest batch artifact on disk.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("start") != cmd.Flags().Changed("end") {
				return service.NewError(service.ErrValidation, "--start and --end must be given together")
			}
			var opts []config.Option
			if cmd.Flags().Changed("batch-size") {
				opts = append(opts, func(c *config.Config) { c.Translate.BatchSize = batchSize })
			}
			cfg, err := ctx.loadConfig(opts...)
			if err != nil {
				return err
			}

			req := service.JobRequest(*cfg, jobs.JobPayload{
				InputPath:  input,
				OutputPath: args[0],
				Start:      start,
				End:        end,
			})
			st, err := service.ReadStatus(req)
			if err != nil {
				return err
			}

			rangeText := "all"
			if req.Options.Range != nil {
				rangeText = fmt.Sprintf("%d-%d", req.Options.Range.Start, req.Options.Range.End)
			}
			remaining := "none"
			if len(st.Remaining) > 0 {
				remaining = joinInts(st.Remaining)
			}
			rows := [][]string{
				{"Output", args[0]},
				{"Range", rangeText},
				{"Progress file", st.Layout.ProgressPath()},
				{"Progress", st.String()},
				{"Remaining", remaining},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Source subtitle file, used to count the batches")
	cmd.Flags().IntVar(&start, "start", 0, "First subtitle number of a range run")
	cmd.Flags().IntVar(&end, "end", 0, "Last subtitle number of a range run")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size the run used (default from config)")

	return cmd
}
