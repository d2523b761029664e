package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	logx "meetwatch/pkg/logx"
)

const maxBodyBytes = 4 << 20

type httpFetcher struct {
	cfg Config
	log logx.Logger

	mu     sync.Mutex
	client *http.Client
	closed bool
}

func openHTTP(cfg Config, log logx.Logger) *httpFetcher {
	h := &httpFetcher{cfg: cfg, log: log}
	h.client = h.newClient()
	return h
}

func (h *httpFetcher) Backend() string { return "http" }

func (h *httpFetcher) newClient() *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{Timeout: h.cfg.Timeout, Jar: jar}
}

func (h *httpFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	h.mu.Lock()
	client, closed := h.client, h.closed
	h.mu.Unlock()
	if closed || client == nil {
		return Page{}, ErrSessionInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, classify(err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, classify(err)
	}
	if resp.StatusCode >= 500 {
		return Page{}, classify(fmt.Errorf("server returned %s", resp.Status))
	}

	html := string(b)
	return Page{
		URL:       url,
		HTML:      html,
		Title:     extractTitle(html),
		Status:    resp.StatusCode,
		FetchedAt: start,
		Took:      time.Since(start),
	}, nil
}

func (h *httpFetcher) Reset(ctx context.Context) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
	h.client = h.newClient()
	h.closed = false
	h.log.Debug("http session reset")
	return nil
}

func (h *httpFetcher) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		h.client.CloseIdleConnections()
	}
	h.client = nil
	h.closed = true
	return nil
}
