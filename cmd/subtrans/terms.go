package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/internal/termmap"
)

func newTermsCommand(ctx *commandContext) *cobra.Command {
	var sourceLang string

	// locate returns the term map file of dir for the configured target
	// language and its current entries; a missing file is an empty map.
	locate := func(dir string) (string, termmap.TermMap, error) {
		cfg, err := ctx.loadConfig()
		if err != nil {
			return "", nil, err
		}
		path := termmap.FilePath(dir, sourceLang, cfg.TargetTag().String())
		terms, err := termmap.Load(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return path, termmap.TermMap{}, nil
		case err != nil:
			return "", nil, service.WrapError(err, service.ErrConfig, "load term map").WithContext("path", path)
		}
		return path, terms, nil
	}
	save := func(path string, terms termmap.TermMap) error {
		if err := termmap.Save(path, terms); err != nil {
			return service.WrapError(err, service.ErrFileWrite, "save term map").WithContext("path", path)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "terms <dir>",
		Short: "Show the term map kept in a show directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, terms, err := locate(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(terms) == 0 {
				fmt.Fprintf(out, "No terms in %s\n", path)
				return nil
			}
			fmt.Fprintln(out, path)
			fmt.Fprintln(out, renderTerms(terms))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&sourceLang, "source-lang", "en", "Language of the subtitles the terms apply to")

	addCmd := &cobra.Command{
		Use:   "add <dir> <source> <target>",
		Short: "Add or replace a fixed translation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := strings.TrimSpace(args[1]), strings.TrimSpace(args[2])
			if source == "" || target == "" {
				return service.NewError(service.ErrValidation, "source and target terms must not be blank")
			}
			path, terms, err := locate(args[0])
			if err != nil {
				return err
			}
			terms[source] = target
			return save(path, terms)
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <dir> <source>",
		Short: "Remove a fixed translation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, terms, err := locate(args[0])
			if err != nil {
				return err
			}
			source := strings.TrimSpace(args[1])
			if _, ok := terms[source]; !ok {
				return service.NewError(service.ErrValidation, fmt.Sprintf("term %q not found", source)).
					WithContext("path", path)
			}
			delete(terms, source)
			return save(path, terms)
		},
	}

	cmd.AddCommand(addCmd, removeCmd)
	return cmd
}

func renderTerms(terms termmap.TermMap) string {
	rows := make([][]string, 0, len(terms))
	for _, source := range slices.Sorted(maps.Keys(terms)) {
		rows = append(rows, []string{source, terms[source]})
	}
	return renderTable([]string{"Source", "Target"}, rows, nil)
}
