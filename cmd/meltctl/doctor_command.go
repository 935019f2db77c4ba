package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-render/internal/doctor"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the melt installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prober := doctor.NewMeltProber(ctx.config.Melt().MeltPath)
			if ctx.shell != nil {
				prober.SetShell(ctx.shell)
			}
			caps, err := prober.Probe(cmd.Context())
			if err != nil {
				return fmt.Errorf("melt not usable: %w", err)
			}

			avformat := "missing"
			if caps.HasAvformat {
				avformat = "ok"
			}
			rows := [][]string{
				{"melt", caps.MeltPath},
				{"version", caps.Version},
				{"avformat consumer", avformat},
				{"consumers", strings.Join(caps.Consumers, ", ")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result"}, rows, nil))
			if !caps.HasAvformat {
				return fmt.Errorf("melt has no avformat consumer; renders cannot be encoded")
			}
			return nil
		},
	}
}
