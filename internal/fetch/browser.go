package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	logx "meetwatch/pkg/logx"
)

// browserFetcher drives one Chrome tab. The whole browser is torn down and
// relaunched on Reset; partial repair of a broken session is not attempted.
type browserFetcher struct {
	cfg Config
	log logx.Logger

	mu          sync.Mutex
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

func openBrowser(ctx context.Context, cfg Config, log logx.Logger) (*browserFetcher, error) {
	b := &browserFetcher{cfg: cfg, log: log}
	if err := b.start(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *browserFetcher) Backend() string { return "chromedp" }

func (b *browserFetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.cfg.UserDataDir))
	}
	return opts
}

func (b *browserFetcher) start(ctx context.Context) error {
	// The browser outlives ctx: it is owned by the fetcher until Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// First Run launches the browser; bound it by the caller and the fetch timeout.
	launchCtx, cancel := context.WithTimeout(tab, 2*b.cfg.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(launchCtx)
	stop()
	cancel()
	if err != nil {
		tabCancel()
		allocCancel()
		return sessionInvalid(err)
	}

	b.mu.Lock()
	b.tab, b.tabCancel, b.allocCancel = tab, tabCancel, allocCancel
	b.mu.Unlock()
	b.log.Info("browser started",
		logx.Bool("headless", b.cfg.Headless),
		logx.Bool("profile", b.cfg.UserDataDir != ""),
	)
	return nil
}

func (b *browserFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	b.mu.Lock()
	tab := b.tab
	b.mu.Unlock()
	if tab == nil || tab.Err() != nil {
		return Page{}, ErrSessionInvalid
	}

	// Derived contexts time out the actions without closing the tab.
	fctx, cancel := context.WithTimeout(tab, b.cfg.Timeout+b.cfg.Settle)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var html, title string
	err := chromedp.Run(fctx,
		chromedp.Navigate(url),
		chromedp.Sleep(b.cfg.Settle),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if tab.Err() != nil || errors.Is(err, chromedp.ErrInvalidContext) {
			return Page{}, sessionInvalid(err)
		}
		return Page{}, classify(err)
	}
	if title == "" {
		title = extractTitle(html)
	}
	return Page{
		URL:       url,
		HTML:      html,
		Title:     title,
		FetchedAt: start,
		Took:      time.Since(start),
	}, nil
}

func (b *browserFetcher) Reset(ctx context.Context) error {
	b.shutdown()
	b.log.Debug("browser restarting")
	return b.start(ctx)
}

func (b *browserFetcher) Close() error {
	b.shutdown()
	return nil
}

func (b *browserFetcher) shutdown() {
	b.mu.Lock()
	tabCancel, allocCancel := b.tabCancel, b.allocCancel
	b.tab, b.tabCancel, b.allocCancel = nil, nil, nil
	b.mu.Unlock()
	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
}
