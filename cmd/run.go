package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xander1421/yt-fs/internal/browser"
	"github.com/xander1421/yt-fs/internal/config"
	"github.com/xander1421/yt-fs/internal/logging"
	"github.com/xander1421/yt-fs/internal/page"
	"github.com/xander1421/yt-fs/internal/page/cdp"
	"github.com/xander1421/yt-fs/internal/server"
	"github.com/xander1421/yt-fs/internal/tabfs"
)

type runFlags struct {
	mode          string
	remoteURL     string
	kernelBrowser string
	startURL      string
	adskip        bool
	headless      bool
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.mode != "" {
		cfg.Browser.Mode = browser.Mode(f.mode)
	}
	if f.remoteURL != "" {
		cfg.Browser.RemoteURL = f.remoteURL
	}
	if f.kernelBrowser != "" {
		cfg.Browser.KernelBrowserID = f.kernelBrowser
	}
	if f.startURL != "" {
		cfg.Browser.StartURL = f.startURL
	}
	if cmd.Flags().Changed("adskip") {
		cfg.AdSkip.Enabled = f.adskip
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = f.headless
	}
}

func newRunCmd(flags *rootFlags, build BuildInfo) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to a tab and keep tab-fullscreen consistent until it closes",
		Long: `Launch or attach to Chromium, install the page bridge and run the
tab-fullscreen controller. The local API is served on the first free port of
server.ports. Stops on SIGINT/SIGTERM, POST /api/1/shutdown, or when the tab
goes away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			rf.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, build)
		},
	}
	cmd.Flags().StringVar(&rf.mode, "mode", "", "browser mode: launch, attach or kernel")
	cmd.Flags().StringVar(&rf.remoteURL, "remote-url", "", "remote debugging address for attach mode")
	cmd.Flags().StringVar(&rf.kernelBrowser, "kernel-browser", "", "Kernel browser session id for kernel mode")
	cmd.Flags().StringVar(&rf.startURL, "open", "", "URL to open in launch and kernel modes")
	cmd.Flags().BoolVar(&rf.adskip, "adskip", false, "skip ads on watch pages")
	cmd.Flags().BoolVar(&rf.headless, "headless", false, "launch Chrome headless")
	return cmd
}

func run(parent context.Context, cfg *config.Config, build BuildInfo) error {
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("starting", zap.String("version", build.Version), zap.String("mode", string(cfg.Browser.Mode)))

	sess, err := browser.Open(ctx, cfg.Browser, log)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer sess.Close()
	if sess.LiveViewURL != "" {
		pterm.Info.Printf("Live view: %s\n", sess.LiveViewURL)
	}

	sheet := cdp.NewStylesheet(cfg.Overlay.CSSFile)
	css, _, err := sheet.Load()
	if err != nil {
		return fmt.Errorf("load overlay stylesheet: %w", err)
	}
	if path := sheet.Path(); path != "" {
		log.Info("overlay stylesheet", zap.String("path", path), zap.Duration("reload_interval", cfg.Overlay.ReloadInterval))
	} else {
		log.Debug("overlay stylesheet built in")
	}

	drv, err := cdp.New(sess.Tab, cdp.Options{
		ContainerSelector:   cfg.Selectors.ControlsContainer,
		HostFullscreenClass: cfg.Selectors.HostFullscreenClass,
		CSS:                 css,
		Logger:              log,
	})
	if err != nil {
		return fmt.Errorf("install page bridge: %w", err)
	}

	opts := tabfs.Options{
		Selectors: cfg.Selectors,
		Timing:    cfg.Timing,
		Logger:    log,
	}
	if cfg.AdSkip.Enabled {
		opts.Player = drv.Player()
		opts.AdSkip = cfg.AdSkip.Config
	}
	ctrl := tabfs.New(drv, opts)

	srv := server.New(cfg.Server, ctrl, build, log)
	srv.SetOnShutdown(cancel)
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		shutCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutCtx)
	}()

	go sheet.Watch(ctx, cfg.Overlay.ReloadInterval, drv.SetCSS, log)

	if err := sess.Start(ctx); err != nil {
		return err
	}
	pterm.Success.Printf("yt-fs running (API on %s:%d, tab %s)\n", cfg.Server.Host, srv.Port(), sess.TargetID)

	err = ctrl.Run(ctx)
	switch {
	case errors.Is(err, page.ErrDetached):
		pterm.Info.Println("Tab closed")
		return nil
	case errors.Is(err, context.Canceled):
		pterm.Info.Println("Stopped")
		return nil
	default:
		return err
	}
}
