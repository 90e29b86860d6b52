package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/config"
)

// Browser is the shared headless pool: one long-lived allocator, a
// fresh tab per fetch, and a semaphore capping concurrent tabs.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sem         chan struct{}
	navTimeout  time.Duration
	log         zerolog.Logger
}

// NewBrowser starts the allocator. The first tab launches the actual
// Chrome process lazily.
func NewBrowser(cfg config.BrowserConfig, log zerolog.Logger) *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("lang", "pt-BR"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		sem:         make(chan struct{}, cfg.PoolSize),
		navTimeout:  cfg.NavTimeout,
		log:         log.With().Str("component", "browser").Logger(),
	}
}

// Close tears down the allocator and every Chrome it spawned.
func (b *Browser) Close() {
	b.allocCancel()
}

// Page is one fetched retailer page.
type Page struct {
	HTML       string
	Screenshot []byte
	FinalURL   string
}

// Fetch navigates a fresh tab to the URL and returns the settled HTML
// plus a full-page screenshot. The navigation timeout bounds the whole
// tab lifetime.
func (b *Browser) Fetch(ctx context.Context, url string) (*Page, error) {
	var page Page
	err := b.Do(ctx,
		chromedp.Navigate(url),
		// Let late JS price widgets settle before reading the DOM.
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&page.FinalURL),
		chromedp.OuterHTML("html", &page.HTML),
		chromedp.FullScreenshot(&page.Screenshot, 80),
	)
	if err != nil {
		return nil, fmt.Errorf("navegação falhou para %s: %w", url, err)
	}
	return &page, nil
}

// Do runs actions in a fresh tab under the pool semaphore. Callers with
// bespoke flows (the FIPE evidence capture) build their own action
// list.
func (b *Browser) Do(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.sem }()

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.navTimeout)
	defer cancelTimeout()

	// The tab descends from the allocator, not the caller; propagate
	// caller cancellation by hand.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-done:
		}
	}()

	start := time.Now()
	err := chromedp.Run(tabCtx, actions...)
	b.log.Debug().Dur("elapsed", time.Since(start)).Err(err).Msg("browser tab finished")
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
