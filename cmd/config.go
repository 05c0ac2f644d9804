package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration yt-fs would run with: defaults, then the config
file, then YTFS_* environment variables (YTFS_TIMING__POLL_INTERVAL sets
timing.poll_interval). Secrets are not printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if validateOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "config ok")
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate", false, "only validate the configuration")
	return cmd
}
