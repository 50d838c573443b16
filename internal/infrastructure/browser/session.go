// Package browser drives Chrome through go-rod for portal scanners. Every
// Open launches (or connects to) a browser that lives only until the
// returned session is closed.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"StudyScanner/internal/config"
	"StudyScanner/internal/scanner"
	"StudyScanner/pkg/logger"
)

// Launcher opens scoped browser sessions.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
	trace  io.Writer
}

var _ scanner.SessionOpener = (*Launcher)(nil)

// NewLauncher builds a launcher; trace receives rod's CDP trace when enabled.
func NewLauncher(cfg config.BrowserConfig, log *slog.Logger, trace io.Writer) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	return &Launcher{cfg: cfg, logger: log, trace: trace}
}

// Open starts Chrome (or connects to RemoteURL) and opens a stealth tab.
func (l *Launcher) Open(ctx context.Context) (scanner.Session, error) {
	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if l.cfg.RemoteURL != "" {
		wsURL = l.cfg.RemoteURL
		l.logger.Debug("browser: connecting to remote", "url", wsURL)
	} else {
		lnch = launcher.New().Context(ctx).Headless(l.cfg.IsHeadless())
		if l.cfg.BinPath != "" {
			lnch = lnch.Bin(l.cfg.BinPath)
		}
		lnch = lnch.Set("disable-blink-features", "AutomationControlled")

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		l.logger.Debug("browser: launched local chrome", "headless", l.cfg.IsHeadless())
	}

	b := rod.New().ControlURL(wsURL)
	if l.cfg.TraceEnabled() {
		b = b.Trace(true).Logger(logger.New("rod", l.trace))
	}
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	s := &Session{browser: b, launcher: lnch, logger: l.logger}

	page, err := stealth.Page(b)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	s.page = page

	if l.cfg.Width > 0 && l.cfg.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  l.cfg.Width,
			Height: l.cfg.Height,
		})
		if err != nil {
			l.logger.Warn("browser: set viewport", "error", err)
		}
	}

	return s, nil
}

// Session is one browser tab plus the browser process that owns it.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	logger   *slog.Logger
	closed   bool
}

var _ scanner.Session = (*Session)(nil)

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// ClearCookies drops every cookie of the browser.
func (s *Session) ClearCookies(ctx context.Context) error {
	if err := s.browser.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// Fill types value into the element matched by selector.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %s: %w", selector, err)
	}
	return nil
}

// Click presses the element matched by selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// WaitURLContains waits until location.href contains fragment, ignoring case.
func (s *Session) WaitURLContains(ctx context.Context, fragment string) error {
	js := `(fragment) => location.href.toLowerCase().includes(fragment)`
	if err := s.page.Context(ctx).Wait(rod.Eval(js, strings.ToLower(fragment))); err != nil {
		return fmt.Errorf("wait for url containing %q: %w", fragment, err)
	}
	return nil
}

// WaitElement blocks until selector matches an element.
func (s *Session) WaitElement(ctx context.Context, selector string) error {
	if _, err := s.page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// HTML returns the serialised document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close shuts the tab and, when launched locally, the browser process.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tab: %w", err))
		}
	}
	// A remote browser is shared; only a locally launched one is shut down.
	if s.launcher != nil {
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		s.launcher.Cleanup()
	}
	return errors.Join(errs...)
}
