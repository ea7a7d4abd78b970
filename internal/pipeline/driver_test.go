package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/clock/system"
	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/dispatcher"
	"github.com/JakeFAU/linkcurator/internal/extract"
	"github.com/JakeFAU/linkcurator/internal/storage/memory"
	"github.com/JakeFAU/linkcurator/internal/worker"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) (curator.Page, error) {
	if url == "https://broken.example" {
		return curator.Page{}, errors.New("unreachable")
	}
	return curator.Page{Content: "# " + url, Title: "T", Keywords: "k1, k2"}, nil
}

type stubBackend struct{}

func (stubBackend) Summarize(_ context.Context, req curator.SummaryRequest) (curator.Summary, error) {
	return curator.Summary{Summary: "About " + req.URL, Tags: []string{"web"}}, nil
}

type countingStage struct {
	runs int
	err  error
}

func (s *countingStage) Run(context.Context) error {
	s.runs++
	return s.err
}

func newDriver(t *testing.T, store *memory.LinkStore, baseDir string) *Driver {
	t.Helper()
	logger := zap.NewNop()
	clock := system.NewFixed(system.New().Now())
	d := dispatcher.New(2)
	return New(
		extract.New(extract.Config{BaseDir: baseDir}, logger),
		worker.NewIngester(store, worker.IngestConfig{}, logger),
		worker.NewScraper(store, stubFetcher{}, d, clock, logger),
		worker.NewSummarizer(store, stubBackend{}, d, clock, logger),
		logger,
	)
}

func TestRunNDJSONEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rows := `{"text":"see [a](https://a.example) and https://broken.example","tags":["go","links"]}
{"text":"again [a](https://a.example) and [c](http://c.example)","tags":[]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bookmarks.ndjson"), []byte(rows), 0o600))

	store := memory.NewLinkStore()
	report := newDriver(t, store, dir).Run(context.Background(), Options{NDJSONDir: dir})
	require.NoError(t, report.Err())
	require.Equal(t, 3, report.Extracted)
	require.Equal(t, 3, report.Inserted.Inserted)
	require.Equal(t, 2, report.Tagged)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Links)
	require.Equal(t, 2, stats.Crawl[curator.CrawlSuccess])
	require.Equal(t, 1, stats.Crawl[curator.CrawlFailed])
	require.Equal(t, 2, stats.Summary[curator.SummarySuccess])
	require.Equal(t, 1, stats.Summary[curator.SummaryPending])

	id, err := store.FindLinkID(context.Background(), "https://a.example")
	require.NoError(t, err)
	require.Equal(t, []string{"web"}, store.LinkTagNames(id))
}

func TestRunMarkdownIsRerunnable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("[x](https://x.example) [m](mailto:a@b.c)"), 0o600))

	store := memory.NewLinkStore()
	driver := newDriver(t, store, dir)

	first := driver.Run(context.Background(), Options{MarkdownDir: dir})
	require.NoError(t, first.Err())
	require.Equal(t, 1, first.Inserted.Inserted)
	require.Zero(t, first.Tagged)

	second := driver.Run(context.Background(), Options{MarkdownDir: dir})
	require.NoError(t, second.Err())
	require.Equal(t, curator.InsertResult{Existing: 1}, second.Inserted)
}

func TestRunHonorsSkipFlags(t *testing.T) {
	t.Parallel()

	scraper := &countingStage{}
	summarizer := &countingStage{}
	d := New(nil, nil, scraper, summarizer, zap.NewNop())

	report := d.Run(context.Background(), Options{SkipExtraction: true, SkipSummary: true})
	require.NoError(t, report.Err())
	require.Equal(t, 1, scraper.runs)
	require.Zero(t, summarizer.runs)
}

func TestRunContinuesAfterStageFailure(t *testing.T) {
	t.Parallel()

	scraper := &countingStage{err: errors.New("select failed")}
	summarizer := &countingStage{}
	d := New(extract.New(extract.Config{}, zap.NewNop()), nil, scraper, summarizer, zap.NewNop())

	report := d.Run(context.Background(), Options{MarkdownDir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, report.ExtractErr)
	require.ErrorContains(t, report.ScrapeErr, "select failed")
	require.NoError(t, report.SummarizeErr)
	require.Equal(t, 1, summarizer.runs)
}
