// Package renderer loads pages in a headless browser and returns settled HTML.
package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lioriz/arch-scraper/internal/scraper"
)

// Config controls the chromedp rendering sessions.
type Config struct {
	UserAgent  string
	NavTimeout time.Duration
	SettleWait time.Duration
}

// Chromedp implements scraper.Renderer using headless Chrome. Each run opens
// one session (one browser) and reuses it sequentially across sources.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Chromedp renderer.
func New(cfg Config, logger *zap.Logger) *Chromedp {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg, logger: logger}
}

// NewSession launches a browser and returns a session bound to it. The
// warmup run surfaces missing-Chrome errors before any source is attempted.
func (r *Chromedp) NewSession(ctx context.Context) (scraper.RenderSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &session{
		cfg:           r.cfg,
		logger:        r.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type session struct {
	cfg           Config
	logger        *zap.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Render navigates to the URL in a fresh tab of the session's browser, waits
// for the document plus a fixed settle delay, and returns the outer HTML.
func (s *session) Render(ctx context.Context, rawURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.NavTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	start := time.Now()
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}

	s.logger.Debug("page rendered",
		zap.String("url", rawURL),
		zap.Duration("duration", time.Since(start)),
	)
	return html, nil
}

// Close tears down the browser and allocator contexts.
func (s *session) Close() {
	s.browserCancel()
	s.allocCancel()
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
