package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/melt"
)

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the known melt profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, p := range melt.Profiles() {
				scan := "interlaced"
				if p.Progressive {
					scan = "progressive"
				}
				name := p.Name
				if name == melt.DefaultProfile {
					name += " *"
				}
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%dx%d", p.Width, p.Height),
					strconv.Itoa(p.Fps()),
					fmt.Sprintf("%d:%d", p.DisplayAspectNum, p.DisplayAspectDen),
					scan,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Profile", "Size", "FPS", "Aspect", "Scan"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
