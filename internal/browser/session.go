// Package browser binds the pipeline's session interface to a headless
// Chrome instance over CDP.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

// Session wraps a dedicated chromedp browser context. It implements
// schemas.BrowserSession; all pipeline components drive the page through it.
type Session struct {
	ctx    context.Context
	logger *zap.Logger

	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	navTimeout time.Duration
}

// NewSession launches a browser process and opens one tab. The returned
// Session owns both; Close tears them down together.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Starting the browser eagerly surfaces launch failures here instead of
	// at the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Named("browser").Info("Browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.WindowWidth),
		zap.Int("height", cfg.WindowHeight))

	return &Session{
		ctx:         browserCtx,
		logger:      logger.Named("browser"),
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		navTimeout:  cfg.NavigationTimeout,
	}, nil
}

// allocatorOptions translates the browser config into exec allocator flags.
// Split out so the flag set is testable without launching Chrome.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		// Required for stability in containers.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// run executes actions in the session's browser context while honoring the
// caller's deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetCookie installs one cookie in the browser's cookie store before any
// navigation touches the target.
func (s *Session) SetCookie(ctx context.Context, cred schemas.Credential) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := network.SetCookie(cred.Name, cred.Value).
			WithDomain(cred.Domain).
			WithPath(cred.Path).
			WithSecure(cred.Secure).
			WithHTTPOnly(cred.HTTPOnly)
		if !cred.ExpiresAt.IsZero() {
			expiry := cdp.TimeSinceEpoch(cred.ExpiresAt)
			p = p.WithExpires(&expiry)
		}
		if cred.SameSite != "" {
			p = p.WithSameSite(network.CookieSameSite(cred.SameSite))
		}
		return p.Do(ctx)
	}))
}

// Cookies reads back the browser's cookie store across all domains.
func (s *Session) Cookies(ctx context.Context) ([]schemas.Credential, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	creds := make([]schemas.Credential, 0, len(cookies))
	for _, c := range cookies {
		creds = append(creds, schemas.Credential{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: schemas.SameSite(c.SameSite),
		})
	}
	return creds, nil
}

// Navigate loads the URL and waits for the page to become ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	s.logger.Debug("Navigating", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page and unmarshals the result
// into out. Pass nil to discard the value.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// Text returns the rendered text of the first match, or "" when the selector
// matches nothing. Absence is not an error; callers poll regions that may not
// have rendered yet.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.innerText : ''; })()`,
		selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// HTML returns the outer HTML of the first match, or "" when the selector
// matches nothing.
func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.outerHTML : ''; })()`,
		selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// SendKeys emits text into the element through the browser's input pipeline,
// firing the same key events a physical keyboard would.
func (s *Session) SendKeys(ctx context.Context, selector, keys string) error {
	return s.run(ctx, chromedp.SendKeys(selector, keys, chromedp.ByQuery))
}

// DispatchKeyEvent sends a raw CDP key event to the focused element,
// bypassing chromedp's higher-level key handling.
func (s *Session) DispatchKeyEvent(ctx context.Context, ev schemas.KeyEvent) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		p := input.DispatchKeyEvent(input.KeyType(ev.Type)).
			WithKey(ev.Key).
			WithCode(ev.Code).
			WithWindowsVirtualKeyCode(int64(ev.VirtualKeyCode)).
			WithNativeVirtualKeyCode(int64(ev.VirtualKeyCode))
		if ev.Text != "" {
			p = p.WithText(ev.Text).WithUnmodifiedText(ev.Text)
		}
		return p.Do(ctx)
	}))
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		png, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return png, nil
}

// Close shuts the tab and the browser process down. Safe to call once.
func (s *Session) Close(ctx context.Context) error {
	err := chromedp.Cancel(s.ctx)
	s.cancelCtx()
	s.cancelAlloc()
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("Browser shutdown reported an error", zap.Error(err))
		return err
	}
	s.logger.Info("Browser session closed")
	return nil
}
