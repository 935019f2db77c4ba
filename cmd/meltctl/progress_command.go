package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/renders"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var logPath string
	var pid int
	var follow bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Report the progress of the last or a given render",
		Long: "Without flags the render last launched by `meltctl render` is polled. " +
			"With --log (and optionally --pid) any progress log can be followed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.tracker()
			if err != nil {
				return err
			}
			h := render.Handle{PID: pid, LogPath: logPath}
			out := cmd.OutOrStdout()

			if follow {
				return followProgress(cmd.Context(), out, t, h, interval)
			}

			percent, ok := t.Poll(cmd.Context(), h)
			if !ok {
				fmt.Fprintln(out, "no render in progress")
				return nil
			}
			fmt.Fprintf(out, "%d%%\n", percent)
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log", "", "Progress log to read")
	cmd.Flags().IntVar(&pid, "pid", 0, "Process id of the render")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until the render finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval when following")
	return cmd
}

// followProgress polls until the render reports 100 or disappears. Terminals
// get a single redrawn line; pipes get one line per change.
func followProgress(ctx context.Context, out io.Writer, p renders.Poller, h render.Handle, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	live := isTerminal(out)
	last := -1

	for {
		percent, ok := p.Poll(ctx, h)
		if !ok {
			if last < 0 {
				fmt.Fprintln(out, "no render in progress")
			} else if live {
				fmt.Fprintln(out)
			}
			return nil
		}
		if percent != last {
			if live {
				fmt.Fprintf(out, "\r%s %3d%%", progressBar(percent, 30), percent)
			} else {
				fmt.Fprintf(out, "%d%%\n", percent)
			}
			last = percent
		}
		if percent >= 100 {
			if live {
				fmt.Fprintln(out)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return "[" + string(bar) + "]"
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
