package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// SessionEngine hands out isolated render sessions. The production engine is
// one headless Chrome shared by every request; tests substitute fakes.
type SessionEngine interface {
	NewSession(opts Options) (Session, error)
}

// Options configures one session's viewport and identity.
type Options struct {
	Width     int
	Height    int
	UserAgent string
}

// Engine owns the Chrome process. Start once, Close once; NewSession may be
// called concurrently in between.
type Engine struct {
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewEngine returns an engine that has not yet launched Chrome.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Start launches headless Chrome with flags tuned for unattended media
// playback.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-gpu").
		Set("mute-audio").
		Set("disable-dev-shm-usage")

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("capture: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("capture: connect browser: %w", err)
	}

	e.launcher = l
	e.browser = browser
	e.logger.Info("browser started", "control_url", url)
	return nil
}

// NewSession opens a stealth page with the requested viewport and user agent.
func (e *Engine) NewSession(opts Options) (Session, error) {
	e.mu.Lock()
	browser := e.browser
	e.mu.Unlock()
	if browser == nil {
		return nil, fmt.Errorf("capture: engine not started")
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("capture: new page: %w", err)
	}

	if opts.Width > 0 && opts.Height > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
			Mobile:            false,
		})
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("capture: set viewport: %w", err)
		}
	}
	if opts.UserAgent != "" {
		err = proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}.Call(page)
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("capture: set user agent: %w", err)
		}
	}

	return &rodSession{page: page, logger: e.logger}, nil
}

// Close shuts the browser down and cleans up the launcher's temp profile.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.launcher.Cleanup()
	e.browser = nil
	e.launcher = nil
	if err != nil {
		return fmt.Errorf("capture: close browser: %w", err)
	}
	return nil
}
