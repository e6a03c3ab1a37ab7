// Package browser renders the ticket page in headless Chrome and hands back
// a queryable copy of the resulting DOM. Every Session owns its own Chrome
// process (or remote connection) and must be closed by the caller.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

type Options struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	UserDataDir string
	Stealth     bool
	Lang        string

	WindowWidth  int
	WindowHeight int

	// LoadTimeout bounds navigation plus the settle delay.
	LoadTimeout time.Duration

	// SettleDelay is waited after the load event so client-side scripts can
	// fill in the ticket blocks.
	SettleDelay time.Duration
}

func (o *Options) defaults() {
	if o.Lang == "" {
		o.Lang = "ja-JP"
	}
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = 60 * time.Second
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
}

// Launcher opens browser sessions with fixed options.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	opts.defaults()
	return &Launcher{opts: opts}
}

// Options returns the effective options.
func (l *Launcher) Options() Options {
	return l.opts
}

// Session is one acquired browser.
type Session struct {
	opts    Options
	browser *rod.Browser
	lnch    *launcher.Launcher
	cancel  context.CancelFunc
}

// Open launches Chrome (or connects to the remote one) and returns a session.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	s := &Session{opts: l.opts}

	wsURL := l.opts.RemoteURL
	if wsURL == "" {
		lnch := launcher.New().
			Context(ctx).
			Headless(true).
			NoSandbox(true).
			Set("disable-dev-shm-usage").
			Set("disable-blink-features", "AutomationControlled").
			Set("lang", l.opts.Lang).
			Set("window-size", strconv.Itoa(l.opts.WindowWidth)+","+strconv.Itoa(l.opts.WindowHeight))

		if l.opts.UserDataDir != "" {
			dir, err := filepath.Abs(l.opts.UserDataDir)
			if err != nil {
				return nil, fmt.Errorf("browser: user data dir: %w", err)
			}
			lnch = lnch.UserDataDir(dir)
		}

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = lnch
		slog.Debug("browser: launched local chrome", "url", wsURL)
	} else {
		slog.Debug("browser: connecting to remote", "url", wsURL)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	b := rod.New().Context(connCtx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b

	return s, nil
}

// Render navigates a fresh tab to url, waits for the page to settle and
// returns the rendered DOM.
func (s *Session) Render(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := s.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}

	return ParseHTML(res.Value.Str())
}

// Screenshot navigates to url and returns a PNG of the viewport.
func (s *Session) Screenshot(ctx context.Context, url string) ([]byte, error) {
	page, err := s.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// Close releases the browser. A locally launched Chrome is shut down; a
// remote one is only disconnected. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	if s.browser != nil && s.lnch != nil {
		err = s.browser.Close()
	}
	s.browser = nil

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.lnch != nil {
		s.lnch.Kill()
		// Cleanup also deletes the profile dir, which only a temporary
		// profile may lose.
		if s.opts.UserDataDir == "" {
			s.lnch.Cleanup()
		}
		s.lnch = nil
	}
	return err
}

func (s *Session) openPage(ctx context.Context, url string) (*rod.Page, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("browser: session closed")
	}

	var page *rod.Page
	var err error
	if s.opts.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.opts.WindowWidth,
		Height:            s.opts.WindowHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		slog.Warn("browser: set viewport failed", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.opts.LoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		slog.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	if err := sleepCtx(navCtx, s.opts.SettleDelay); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: settle %s: %w", url, err)
	}

	return page.Context(ctx), nil
}

// ParseHTML wraps raw markup in a goquery document.
func ParseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("browser: parse DOM: %w", err)
	}
	return doc, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
