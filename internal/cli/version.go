package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
)

// VersionInfo is the version command output.
type VersionInfo struct {
	Engine string `json:"engine"`
	Plan   string `json:"plan"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the engine and plan format versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			info := VersionInfo{
				Engine: engine.CurrentVersion.String(),
				Plan:   ir.PlanVersion,
			}
			if formatter.Format == "json" {
				return formatter.Success(info)
			}
			fmt.Fprintf(formatter.Writer, "datalogger engine %s, plan format %s\n", info.Engine, info.Plan)
			return nil
		},
	}
}
