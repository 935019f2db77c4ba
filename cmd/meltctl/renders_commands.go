package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/renders"
)

func newRendersCommand(ctx *commandContext) *cobra.Command {
	rendersCmd := &cobra.Command{
		Use:   "renders",
		Short: "Inspect the render history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent renders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.renderService()
			if err != nil {
				return err
			}
			list, err := svc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no renders recorded")
				return nil
			}
			rows := make([][]string, len(list))
			for i, rd := range list {
				rows[i] = renderRow(rd)
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Target", "PID", "Status", "Progress", "Started"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of renders to show")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Refresh and show one render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.renderService()
			if err != nil {
				return err
			}
			rd, err := svc.Poll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", rd.ID)
			fmt.Fprintf(out, "Target:   %s\n", rd.Target)
			fmt.Fprintf(out, "PID:      %d\n", rd.PID)
			fmt.Fprintf(out, "Status:   %s\n", rd.Status)
			fmt.Fprintf(out, "Progress: %d%%\n", rd.Progress)
			fmt.Fprintf(out, "Log:      %s\n", rd.LogPath)
			if rd.OutputPath != "" {
				fmt.Fprintf(out, "Output:   %s\n", rd.OutputPath)
			}
			if rd.Error != "" {
				fmt.Fprintf(out, "Error:    %s\n", rd.Error)
			}
			fmt.Fprintf(out, "Command:\n%s\n", rd.Command)
			return nil
		},
	}

	rendersCmd.AddCommand(listCmd, showCmd)
	return rendersCmd
}

func renderRow(rd *renders.Render) []string {
	return []string{
		rd.ID,
		rd.Target,
		strconv.Itoa(rd.PID),
		rd.Status,
		strconv.Itoa(rd.Progress) + "%",
		humanize.Time(rd.CreatedAt),
	}
}
