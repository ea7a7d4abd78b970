// Package pipeline sequences the extraction, scrape and summarize stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/extract"
	"github.com/JakeFAU/linkcurator/internal/metrics"
)

const tracerName = "github.com/JakeFAU/linkcurator/internal/pipeline"

// Extractor discovers candidate links in a corpus directory.
type Extractor interface {
	FromMarkdown(ctx context.Context, dir string) ([]curator.ExtractedLink, error)
	FromNDJSON(ctx context.Context, dir string) ([]curator.ExtractedLink, error)
}

// Ingester persists candidate links and their inline tags.
type Ingester interface {
	InsertLinks(ctx context.Context, links []curator.ExtractedLink) (curator.InsertResult, error)
	ImportTags(ctx context.Context, links []curator.ExtractedLink) (int, error)
}

// Stage is a store-driven stage such as the scraper or the summarizer.
type Stage interface {
	Run(ctx context.Context) error
}

// Options selects the source and the stages to run.
type Options struct {
	MarkdownDir    string
	NDJSONDir      string
	SkipExtraction bool
	SkipCrawl      bool
	SkipSummary    bool
}

// Report carries the outcome of each stage. A nil error means the stage
// succeeded or was skipped.
type Report struct {
	Extracted    int
	Inserted     curator.InsertResult
	Tagged       int
	ExtractErr   error
	ScrapeErr    error
	SummarizeErr error
}

// Err joins the stage errors.
func (r Report) Err() error {
	return errors.Join(r.ExtractErr, r.ScrapeErr, r.SummarizeErr)
}

// Driver runs the stages in order. It keeps no state of its own; stages talk
// to each other only through the store.
type Driver struct {
	extractor  Extractor
	ingester   Ingester
	scraper    Stage
	summarizer Stage
	logger     *zap.Logger
}

// New constructs a Driver.
func New(extractor Extractor, ingester Ingester, scraper, summarizer Stage, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		extractor:  extractor,
		ingester:   ingester,
		scraper:    scraper,
		summarizer: summarizer,
		logger:     logger.Named("pipeline"),
	}
}

// Run executes every stage that is not skipped. A failing stage is logged and
// the next stage still runs.
func (d *Driver) Run(ctx context.Context, opts Options) Report {
	var report Report
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.run")
	defer span.End()

	if opts.SkipExtraction {
		d.logger.Info("skipping extraction")
	} else {
		report.ExtractErr = d.stage(ctx, "extract", func(ctx context.Context) error {
			return d.extract(ctx, opts, &report)
		})
	}

	if opts.SkipCrawl || d.scraper == nil {
		d.logger.Info("skipping scrape")
	} else {
		report.ScrapeErr = d.stage(ctx, "scrape", d.scraper.Run)
	}

	if opts.SkipSummary || d.summarizer == nil {
		d.logger.Info("skipping summarize")
	} else {
		report.SummarizeErr = d.stage(ctx, "summarize", d.summarizer.Run)
	}

	span.SetAttributes(
		attribute.Int("links.extracted", report.Extracted),
		attribute.Int("links.inserted", report.Inserted.Inserted),
	)
	d.logger.Info("pipeline finished",
		zap.Int("extracted", report.Extracted),
		zap.Int("inserted", report.Inserted.Inserted),
		zap.Int("tagged", report.Tagged),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report
}

// stage runs fn inside a span and logs its failure.
func (d *Driver) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage."+name, trace.WithAttributes(attribute.String("stage", name)))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error(name+" stage failed", zap.Error(err))
	}
	return err
}

func (d *Driver) extract(ctx context.Context, opts Options, report *Report) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("extract", time.Since(start)) }()

	var (
		links []curator.ExtractedLink
		mode  string
		err   error
	)
	switch {
	case opts.NDJSONDir != "":
		mode = "ndjson"
		links, err = d.extractor.FromNDJSON(ctx, opts.NDJSONDir)
	case opts.MarkdownDir != "":
		mode = "markdown"
		links, err = d.extractor.FromMarkdown(ctx, opts.MarkdownDir)
	default:
		return errors.New("no source directory configured")
	}
	if err != nil {
		return fmt.Errorf("extract %s links: %w", mode, err)
	}

	links = extract.UniqueLinks(links)
	report.Extracted = len(links)
	metrics.ObserveExtracted(mode, len(links))
	d.logger.Info("links extracted", zap.String("mode", mode), zap.Int("unique", len(links)))
	if len(links) == 0 {
		return nil
	}

	report.Inserted, err = d.ingester.InsertLinks(ctx, links)
	if err != nil {
		return err
	}
	if mode == "ndjson" {
		report.Tagged, err = d.ingester.ImportTags(ctx, links)
		if err != nil {
			return fmt.Errorf("import tags: %w", err)
		}
	}
	return nil
}
