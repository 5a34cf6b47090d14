package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/check"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

var errCheckFailed = errors.New("translation does not match its source")

func newCheckCommand() *cobra.Command {
	var (
		reportPath string
		samples    int
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "check <source.srt> <translated.srt>",
		Short: "Verify that a translation keeps the numbering and timestamps of its source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}
			rng := rand.New(rand.NewPCG(seed, 0))

			report, err := check.CompareFiles(args[0], args[1], samples, rng)
			if err != nil {
				return service.WrapError(err, service.ErrFileRead, "check")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Summary())
			if rows := report.Rows(); len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Cue", "Kind", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
			}
			if len(report.Samples) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Cue", "Source", "Translation"},
					sampleRows(report.Samples),
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
			}

			if reportPath != "" {
				if err := writeReport(reportPath, report); err != nil {
					return err
				}
				fmt.Fprintf(out, "report written to %s\n", reportPath)
			}
			if !report.OK() {
				return fmt.Errorf("%w: %s", errCheckFailed, report.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown report to this file")
	cmd.Flags().IntVar(&samples, "samples", 3, "Random cues to show besides the first and last")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for picking random samples")

	return cmd
}

func sampleRows(pairs []check.Pair) [][]string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{
			fmt.Sprint(p.Source.Index),
			oneLine(p.Source.Text),
			oneLine(p.Translated.Text),
		})
	}
	return rows
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeReport(path string, report *check.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return service.WrapError(err, service.ErrFileWrite, "create report")
	}
	if err := report.WriteMarkdown(f); err != nil {
		f.Close()
		return service.WrapError(err, service.ErrFileWrite, "write report")
	}
	if err := f.Close(); err != nil {
		return service.WrapError(err, service.ErrFileWrite, "write report")
	}
	return nil
}
