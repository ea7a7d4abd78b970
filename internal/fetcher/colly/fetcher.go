// Package collyfetcher fetches pages directly with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/fetcher/htmlpage"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements curator.Fetcher using a Colly collector per request.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

var _ curator.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher with a pooled transport shared by all requests.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch downloads url and extracts its metadata and readable text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (curator.Page, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		page     curator.Page
		fetchErr error
	)
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		page = htmlpage.FromSelection(e.DOM)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return curator.Page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return curator.Page{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return curator.Page{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if strings.TrimSpace(page.Content) == "" {
		return curator.Page{}, curator.ErrMissingContent
	}
	return page, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
