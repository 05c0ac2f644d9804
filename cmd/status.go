package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/xander1421/yt-fs/internal/relay"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	rf := &relayFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the controlled tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && output != "json" {
				return fmt.Errorf("unsupported --output value: use json")
			}
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

			st, err := c.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			pterm.Info.Printf("yt-fs at %s\n", c.BaseURL)
			return pterm.DefaultTable.WithHasHeader().WithData(statusRows(st)).Render()
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: json for raw response")
	return cmd
}

func statusRows(st relay.Status) pterm.TableData {
	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"URL", st.Href})
	rows = append(rows, []string{"Watch page", fmt.Sprintf("%t", st.Watch)})
	if !st.Supported {
		rows = append(rows, []string{"Supported site", "false"})
	}
	rows = append(rows, []string{"Enabled", fmt.Sprintf("%t", st.Enabled)})
	rows = append(rows, []string{"Overlay", fmt.Sprintf("%t", st.Overlay)})
	rows = append(rows, []string{"Widget", widgetState(st)})
	rows = append(rows, []string{"Injector", st.Injector})
	rows = append(rows, []string{"Fullscreen", st.Fullscreen})
	rows = append(rows, []string{"Ad skipping", fmt.Sprintf("%t", st.AdSkip)})
	return rows
}

func widgetState(st relay.Status) string {
	switch {
	case !st.WidgetPresent:
		return "absent"
	case st.WidgetActive:
		return "active"
	default:
		return "inactive"
	}
}
