package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(build BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "yt-fs %s (commit %s, built %s)\n", build.Version, build.Commit, build.Date)
			return err
		},
	}
}
