package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/melt"
)

func newCommandCommand(ctx *commandContext) *cobra.Command {
	var target string
	var all bool

	cmd := &cobra.Command{
		Use:   "command <project.json>",
		Short: "Print the melt command line a project compiles to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := ctx.loadProject(args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				b.CreateCommands()
				commands := b.Commands()
				for _, t := range b.Targets() {
					fmt.Fprintf(out, "# %s\n%s\n\n", t, commands[t])
				}
				return nil
			}

			line := b.CommandOutput(target)
			if line == "" {
				return fmt.Errorf("target %q has no options", target)
			}
			fmt.Fprintln(out, line)
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", melt.DefaultTarget, "Target to print")
	cmd.Flags().BoolVar(&all, "all", false, "Print every target")
	return cmd
}
