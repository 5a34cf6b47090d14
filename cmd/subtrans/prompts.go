package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	var promptFile string

	open := func(cmd *cobra.Command) (*prompt.Library, error) {
		var opts []config.Option
		if cmd.Flags().Changed("prompt-file") {
			opts = append(opts, func(c *config.Config) { c.Translate.PromptFile = promptFile })
		}
		cfg, err := ctx.loadConfig(opts...)
		if err != nil {
			return nil, err
		}
		lib, err := prompt.Load(cfg.PromptFilePath())
		if err != nil {
			return nil, service.WrapError(err, service.ErrConfig, "load prompts")
		}
		return lib, nil
	}
	save := func(lib *prompt.Library) error {
		if err := lib.Save(); err != nil {
			return service.WrapError(err, service.ErrFileWrite, "save prompts")
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List style prompt presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPresets(lib))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&promptFile, "prompt-file", "", "User prompt preset file")

	var title string
	addCmd := &cobra.Command{
		Use:   "add <name> <prompt>",
		Short: "Add or replace a user preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			if err := lib.Put(args[0], title, args[1]); err != nil {
				return service.WrapError(err, service.ErrValidation, "add prompt")
			}
			return save(lib)
		},
	}
	addCmd.Flags().StringVar(&title, "title", "", "Display title")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a user preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			if err := lib.Delete(args[0]); err != nil {
				return service.WrapError(err, service.ErrValidation, "remove prompt")
			}
			return save(lib)
		},
	}

	useCmd := &cobra.Command{
		Use:   "use [name]",
		Short: "Select the preset used when a run names none; no name restores the default style",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open(cmd)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if err := lib.SetCurrent(name); err != nil {
				return service.WrapError(err, service.ErrValidation, "select prompt")
			}
			return save(lib)
		},
	}

	cmd.AddCommand(addCmd, removeCmd, useCmd)
	return cmd
}

func renderPresets(lib *prompt.Library) string {
	current, _ := lib.Current()
	var rows [][]string
	for _, p := range lib.List() {
		marker := ""
		if p.Name == current.Name {
			marker = "*"
		}
		kind := "user"
		if p.Builtin {
			kind = "built-in"
		}
		rows = append(rows, []string{marker, p.Name, p.Title, kind})
	}
	return renderTable([]string{"", "Name", "Title", "Kind"}, rows, nil)
}
