package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var target string
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "render <project.json>",
		Short: "Launch a project in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, b, err := ctx.loadProject(args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runner, err := ctx.runner(b)
			if err != nil {
				return err
			}
			svc, err := ctx.renderService()
			if err != nil {
				return err
			}

			rd, err := svc.Start(cmd.Context(), runner, target, doc.OutputPath(target))
			if err != nil {
				return fmt.Errorf("render %s: %w", target, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Render %s started\n", rd.ID)
			fmt.Fprintf(out, "  pid: %d\n  log: %s\n", rd.PID, rd.LogPath)
			if rd.OutputPath != "" {
				fmt.Fprintf(out, "  output: %s\n", rd.OutputPath)
			}
			if !wait {
				return nil
			}

			t, err := ctx.tracker()
			if err != nil {
				return err
			}
			h := render.Handle{PID: rd.PID, LogPath: rd.LogPath, RunID: rd.ID}
			if err := followProgress(cmd.Context(), out, t, h, interval); err != nil {
				return err
			}
			_, err = svc.Poll(cmd.Context(), rd.ID)
			return err
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", melt.DefaultTarget, "Target to render")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress until the render finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval when waiting")
	return cmd
}
