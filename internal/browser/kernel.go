package browser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kernel/kernel-go-sdk"
	"github.com/kernel/kernel-go-sdk/option"
	pkgbrowser "github.com/pkg/browser"
	"go.uber.org/zap"
)

// kernelAPIKeyEnv is read when the config carries no key.
const kernelAPIKeyEnv = "KERNEL_API_KEY"

func attachKernel(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	if cfg.KernelBrowserID == "" {
		return nil, errors.New("kernel mode needs browser.kernel_browser_id")
	}
	apiKey := cfg.KernelAPIKey
	if apiKey == "" {
		apiKey = os.Getenv(kernelAPIKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("kernel mode needs an API key (browser.kernel_api_key or %s)", kernelAPIKeyEnv)
	}

	client := kernel.NewClient(option.WithAPIKey(apiKey))
	b, err := client.Browsers.Get(ctx, cfg.KernelBrowserID, kernel.BrowserGetParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to get browser: %w", err)
	}
	if b.CdpWsURL == "" {
		return nil, fmt.Errorf("browser %s has no CDP URL", cfg.KernelBrowserID)
	}
	log.Info("kernel browser", zap.String("id", cfg.KernelBrowserID), zap.String("live_view", b.BrowserLiveViewURL))

	s, err := remote(ctx, b.CdpWsURL, "", cfg.StartURL, cfg, log)
	if err != nil {
		return nil, err
	}
	s.LiveViewURL = b.BrowserLiveViewURL
	if cfg.OpenLiveView && s.LiveViewURL != "" {
		if err := pkgbrowser.OpenURL(s.LiveViewURL); err != nil {
			log.Warn("open live view", zap.Error(err))
		}
	}
	return s, nil
}
