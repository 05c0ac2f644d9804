// Package cmd holds the yt-fs command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xander1421/yt-fs/internal/config"
	"github.com/xander1421/yt-fs/internal/server"
)

// BuildInfo is set from ldflags in main.
type BuildInfo = server.BuildInfo

type rootFlags struct {
	configPath string
	logLevel   string
}

// Root returns the yt-fs command tree.
func Root(build BuildInfo) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "yt-fs",
		Short: "Tab-fullscreen for YouTube, driven over the DevTools protocol",
		Long: `yt-fs attaches to a Chromium tab and keeps YouTube's player filling the
tab ("tab fullscreen") across in-app navigation, player rebuilds and real
fullscreen. A local API lets other tools toggle it.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(flags, build),
		newToggleCmd(flags),
		newStatusCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(build),
	)
	return root
}

// load returns the validated configuration with command-line overrides
// applied.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}
