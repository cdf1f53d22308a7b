// Package scrape renders channel about pages in a headless Chrome
// session and extracts featured channels, subscriptions and external
// links from the DOM.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

// Options tune the browser session.
type Options struct {
	Headless    bool
	MaxTabs     int64         // concurrent tabs; each holds significant memory
	PageTimeout time.Duration // per-page render budget
	SettleDelay time.Duration // wait after navigation for lazy-loaded tiles
	SubLimit    int           // max channel tiles consumed per list
}

// Browser owns one Chrome process reused across all channel fetches of
// a run. Every page render happens in its own tab context, so a failed
// or timed-out render for channel N cannot corrupt the session used for
// channel N+1.
type Browser struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	tabs          *semaphore.Weighted
	opts          Options
}

// NewBrowser launches Chrome. The caller must Close it on every exit
// path; leaked browser processes exhaust host memory over long batches.
func NewBrowser(ctx context.Context, o Options) (*Browser, error) {
	if o.MaxTabs <= 0 {
		o.MaxTabs = 3
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = 30 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.SubLimit <= 0 {
		o.SubLimit = 50
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=true"),
		chromedp.UserAgent(engine.UserAgentChrome),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the process now so launch failures surface here, not on the
	// first channel of the batch.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	slog.Info("browser session started",
		slog.Int64("max_tabs", o.MaxTabs),
		slog.Duration("page_timeout", o.PageTimeout))
	return &Browser{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		tabs:          semaphore.NewWeighted(o.MaxTabs),
		opts:          o,
	}, nil
}

// Close tears down the browser process.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// RenderAboutPage renders the channel's about page and extracts its
// links and channel tiles, plus a viewport screenshot. Admission is
// gated by the tab semaphore; the render itself is bounded by
// PageTimeout and fails closed to an error the caller treats as
// "no evidence", never a hang.
func (b *Browser) RenderAboutPage(ctx context.Context, identifier string) (engine.AboutPage, error) {
	if err := b.tabs.Acquire(ctx, 1); err != nil {
		return engine.AboutPage{}, fmt.Errorf("acquire tab: %w", err)
	}
	defer b.tabs.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, b.opts.PageTimeout)
	defer timeoutCancel()

	// Propagate caller cancellation into the tab.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	url := engine.ChannelURL(identifier, "/about")
	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return engine.AboutPage{}, fmt.Errorf("render %s: %w", url, err)
	}

	page := ParseAboutHTML(html, b.opts.SubLimit)

	// Screenshot of the already-rendered page; failures are normal for
	// slow channels and never fail the render.
	var shot []byte
	if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		slog.Warn("screenshot capture failed",
			slog.String("channel", identifier), slog.Any("error", err))
	} else {
		page.Screenshot = shot
	}
	return page, nil
}
