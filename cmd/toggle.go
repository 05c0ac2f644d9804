package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xander1421/yt-fs/internal/config"
	"github.com/xander1421/yt-fs/internal/relay"
)

type relayFlags struct {
	url       string
	transport string
}

func (r *relayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.url, "url", "", "yt-fs API base URL (default: discover on relay.ports)")
	cmd.Flags().StringVar(&r.transport, "transport", "", "http or websocket (default relay.transport)")
}

func (r *relayFlags) dial(ctx context.Context, cfg *config.Config) (*relay.Client, error) {
	rc := cfg.Relay
	if r.url != "" {
		rc.URL = r.url
	}
	if r.transport != "" {
		rc.Transport = r.transport
	}
	c, err := relay.Dial(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("connect to yt-fs: %w", err)
	}
	return c, nil
}

func newToggleCmd(flags *rootFlags) *cobra.Command {
	rf := &relayFlags{}
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Toggle tab-fullscreen in the controlled tab",
		Long: `Send the toggle message to a running "yt-fs run". The tab must be on a
YouTube watch page; otherwise the message is refused and nothing changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Relay.Timeout)
			defer cancel()

			c, err := rf.dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ack, err := c.Toggle(ctx)
			if err != nil {
				return fmt.Errorf("toggle: %w", err)
			}
			if !ack.OK {
				return fmt.Errorf("toggle refused: %s", ack.Error)
			}
			if ack.Enabled {
				pterm.Success.Println("Tab-fullscreen enabled")
			} else {
				pterm.Success.Println("Tab-fullscreen disabled")
			}
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}
