package browser

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"
)

// Config selects how the relay reaches Chrome.
type Config struct {
	// CDPURL attaches to a running browser (ws://, http:// or host:port).
	// Empty launches one.
	CDPURL string

	ExecutablePath string
	Headless       bool
	NoSandbox      bool
	UserDataDir    string
	StartURL       string

	// InsertTimeout bounds one insertion in a tab.
	InsertTimeout time.Duration
	// ProbeTimeout bounds the visibility probe of a single page during an
	// active-tab lookup.
	ProbeTimeout time.Duration
}

// Remote reports whether the config attaches to an existing browser.
func (c Config) Remote() bool {
	return c.CDPURL != ""
}

// launchFlags are the exec allocator options for a launched browser.
func (c Config) launchFlags() ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-popup-blocking", true),
	)

	exe, err := FindChromeExecutable(c.ExecutablePath)
	if err != nil {
		return nil, err
	}
	if exe != nil {
		opts = append(opts, chromedp.ExecPath(exe.Path))
	}

	if c.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.Headless {
		opts = append(opts, chromedp.DisableGPU)
	}
	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if c.UserDataDir != "" {
		if err := os.MkdirAll(c.UserDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create user data dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(c.UserDataDir))
	}
	return opts, nil
}

// NewAllocator returns the chromedp allocator for c: remote when CDPURL is
// set, a launched browser otherwise.
func NewAllocator(ctx context.Context, c Config) (context.Context, context.CancelFunc, error) {
	if c.Remote() {
		wsURL, err := GetChromeWebSocketURL(c.CDPURL, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("chrome not reachable at %s: %w", c.CDPURL, err)
		}
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, wsURL)
		return allocCtx, cancel, nil
	}

	opts, err := c.launchFlags()
	if err != nil {
		return nil, nil, err
	}
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return allocCtx, cancel, nil
}
