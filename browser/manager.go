// CLAUDE:SUMMARY Chrome lifecycle for formpilot: launch or connect via Rod, open stealth pages with the formpilot runtime injected.
// Package browser drives a live Chrome tab over the DevTools protocol. A
// Page implements dom.Document and dom.Target, and Page.Recorder returns
// the macro.Hook that captures user interactions and network calls.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	// Headful shows the browser window. Recording needs a human in front
	// of a visible window.
	Headful bool

	// Stealth applies go-rod/stealth evasions to every page. Default true.
	Stealth *bool

	ViewportWidth  int
	ViewportHeight int

	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Stealth == nil {
		on := true
		c.Stealth = &on
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Chrome starts lazily on the first
// Open, or explicitly with Start.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) if it is not
// running yet.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}
	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the current Rod browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Warn("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(!m.cfg.Headful)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

// Open creates a tab, installs the formpilot page runtime and navigates to
// pageURL.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Page, error) {
	b, err := m.Start(ctx)
	if err != nil {
		return nil, err
	}

	var rp *rod.Page
	if *m.cfg.Stealth {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
		if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             m.cfg.ViewportWidth,
			Height:            m.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			m.cfg.Logger.Warn("browser: set viewport failed", "error", err)
		}
	}

	p := &Page{rod: rp, logger: m.cfg.Logger, navTimeout: m.cfg.NavigateTimeout}
	if err := p.installRuntime(); err != nil {
		rp.Close()
		return nil, err
	}
	if err := p.Navigate(ctx, pageURL); err != nil {
		rp.Close()
		return nil, err
	}
	return p, nil
}
