package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/clock/system"
	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/dispatcher"
	"github.com/JakeFAU/linkcurator/internal/storage/memory"
)

func seedPending(t *testing.T, store *memory.LinkStore, urls ...string) {
	t.Helper()
	links := make([]curator.ExtractedLink, 0, len(urls))
	for _, u := range urls {
		links = append(links, curator.ExtractedLink{URL: u, SourceFile: "seed.md"})
	}
	_, err := store.InsertLinks(context.Background(), links)
	require.NoError(t, err)
}

func linkByURL(t *testing.T, store *memory.LinkStore, url string) curator.Link {
	t.Helper()
	id, err := store.FindLinkID(context.Background(), url)
	require.NoError(t, err)
	link, ok := store.Link(id)
	require.True(t, ok)
	return link
}

func TestScraperIsolatesFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	seedPending(t, store, "https://a.example", "https://b.example", "https://c.example")
	fetcher := &fakeFetcher{
		pages: map[string]curator.Page{
			"https://a.example": {Content: "# A", Title: "A", Keywords: " go, ,db "},
			"https://c.example": {Content: "# C", ImageURL: "https://c.example/og.png"},
		},
		errs: map[string]error{"https://b.example": errors.New("firecrawl status 500: boom")},
	}

	s := NewScraper(store, fetcher, dispatcher.New(2), system.NewFixed(testNow), zap.NewNop())
	require.NoError(t, s.Run(context.Background()))

	a := linkByURL(t, store, "https://a.example")
	require.Equal(t, curator.CrawlSuccess, a.CrawlStatus)
	require.Equal(t, "# A", *a.Content)
	require.Equal(t, "A", a.Title)
	require.Equal(t, []string{"go", "db"}, a.Keywords)
	require.Equal(t, testNow, *a.CrawledAt)
	require.Nil(t, a.CrawlError)

	b := linkByURL(t, store, "https://b.example")
	require.Equal(t, curator.CrawlFailed, b.CrawlStatus)
	require.Equal(t, "firecrawl status 500: boom", *b.CrawlError)
	require.Nil(t, b.Content)

	c := linkByURL(t, store, "https://c.example")
	require.Equal(t, curator.CrawlSuccess, c.CrawlStatus)
	require.Nil(t, c.Keywords)
	require.Equal(t, "https://c.example/og.png", c.ImageURL)
}

func TestScraperTreatsEmptyContentAsFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	seedPending(t, store, "https://empty.example")
	fetcher := &fakeFetcher{pages: map[string]curator.Page{"https://empty.example": {Title: "t"}}}

	s := NewScraper(store, fetcher, dispatcher.New(1), system.NewFixed(testNow), zap.NewNop())
	require.NoError(t, s.Run(context.Background()))

	link := linkByURL(t, store, "https://empty.example")
	require.Equal(t, curator.CrawlFailed, link.CrawlStatus)
	require.Equal(t, curator.ErrMissingContent.Error(), *link.CrawlError)
}

func TestScraperRespectsConcurrency(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	urls := []string{"https://1.example", "https://2.example", "https://3.example", "https://4.example", "https://5.example"}
	seedPending(t, store, urls...)
	pages := map[string]curator.Page{}
	for _, u := range urls {
		pages[u] = curator.Page{Content: "x"}
	}
	fetcher := &fakeFetcher{pages: pages, delay: 20 * time.Millisecond}

	s := NewScraper(store, fetcher, dispatcher.New(2), system.NewFixed(testNow), zap.NewNop())
	require.NoError(t, s.Run(context.Background()))

	require.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	pending, err := store.ListPendingCrawl(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestScraperArchivesSuccessfulPages(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	seedPending(t, store, "https://a.example", "https://b.example")
	fetcher := &fakeFetcher{
		pages: map[string]curator.Page{"https://a.example": {Content: "# A"}},
		errs:  map[string]error{"https://b.example": errors.New("nope")},
	}
	archiver := &recordingArchiver{}

	s := NewScraper(store, fetcher, dispatcher.New(2), system.NewFixed(testNow), zap.NewNop(), WithArchiver(archiver))
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, map[string]string{"https://a.example": "# A"}, archiver.stored)
}

func TestScraperIgnoresArchiveFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewLinkStore()
	seedPending(t, store, "https://a.example")
	fetcher := &fakeFetcher{pages: map[string]curator.Page{"https://a.example": {Content: "# A"}}}
	archiver := &recordingArchiver{err: errors.New("disk full")}

	s := NewScraper(store, fetcher, dispatcher.New(1), system.NewFixed(testNow), zap.NewNop(), WithArchiver(archiver))
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, curator.CrawlSuccess, linkByURL(t, store, "https://a.example").CrawlStatus)
}

func TestSplitKeywords(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b c"}, SplitKeywords(" a ,, b c ,"))
	require.Nil(t, SplitKeywords(""))
	require.Nil(t, SplitKeywords(" , "))
}
