package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/dispatcher"
	"github.com/JakeFAU/linkcurator/internal/metrics"
)

// Archiver keeps a copy of scraped content outside the link store.
type Archiver interface {
	Store(ctx context.Context, url, content string) (string, error)
}

// Scraper fetches content for links whose crawl status is pending.
type Scraper struct {
	store      curator.CrawlStore
	fetcher    curator.Fetcher
	dispatcher *dispatcher.Dispatcher
	clock      curator.Clock
	archiver   Archiver
	logger     *zap.Logger
}

// ScraperOption customizes a Scraper.
type ScraperOption func(*Scraper)

// WithArchiver stores every successfully scraped page through a.
func WithArchiver(a Archiver) ScraperOption {
	return func(s *Scraper) {
		s.archiver = a
	}
}

// NewScraper constructs a Scraper.
func NewScraper(
	store curator.CrawlStore,
	fetcher curator.Fetcher,
	d *dispatcher.Dispatcher,
	clock curator.Clock,
	logger *zap.Logger,
	opts ...ScraperOption,
) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		store:      store,
		fetcher:    fetcher,
		dispatcher: d,
		clock:      clock,
		logger:     logger.Named("scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scrapes every pending link and returns once all of them have settled.
// Only a failure to list pending links is returned.
func (s *Scraper) Run(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("scrape", time.Since(start)) }()

	links, err := s.store.ListPendingCrawl(ctx)
	if err != nil {
		return fmt.Errorf("list pending links: %w", err)
	}
	if len(links) == 0 {
		s.logger.Info("no pending links to scrape")
		return nil
	}
	s.logger.Info("scraping links", zap.Int("count", len(links)), zap.Int("concurrency", s.dispatcher.Limit()))

	dispatcher.Each(ctx, s.dispatcher, links, s.scrape)

	s.logger.Info("scrape finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scraper) scrape(ctx context.Context, link curator.Link) {
	defer metrics.TrackInFlight("scrape")()
	logger := s.logger.With(zap.Int64("link_id", link.ID), zap.String("url", link.URL))
	logger.Debug("scraping link")

	page, err := s.fetcher.Fetch(ctx, link.URL)
	if err == nil && page.Content == "" {
		err = curator.ErrMissingContent
	}
	if err != nil {
		metrics.ObserveCrawl(link.URL, string(curator.CrawlFailed))
		logger.Warn("scrape failed", zap.Error(err))
		if uerr := s.store.MarkCrawlFailed(ctx, link.ID, err.Error(), s.clock.Now()); uerr != nil {
			logger.Error("record scrape failure", zap.Error(uerr))
		}
		return
	}

	result := curator.CrawlResult{
		Content:     page.Content,
		Title:       page.Title,
		Description: page.Description,
		ImageURL:    page.ImageURL,
		Keywords:    SplitKeywords(page.Keywords),
		CrawledAt:   s.clock.Now(),
	}
	if err := s.store.MarkCrawlSucceeded(ctx, link.ID, result); err != nil {
		metrics.ObserveCrawl(link.URL, "store_error")
		logger.Error("record scrape result", zap.Error(err))
		return
	}
	metrics.ObserveCrawl(link.URL, string(curator.CrawlSuccess))
	logger.Info("scraped link", zap.Int("content_chars", len(page.Content)))

	if s.archiver != nil {
		uri, err := s.archiver.Store(ctx, link.URL, page.Content)
		if err != nil {
			logger.Warn("archive content", zap.Error(err))
			return
		}
		logger.Debug("archived content", zap.String("uri", uri))
	}
}

// SplitKeywords splits a comma separated keyword list, trimming entries and
// dropping empty ones. It returns nil when nothing remains.
func SplitKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
