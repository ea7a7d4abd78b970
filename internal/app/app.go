// Package app wires configuration into long-lived services: the link store,
// fetch and summarization backends, the archive and the notification topic.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/archive"
	"github.com/JakeFAU/linkcurator/internal/clock/system"
	"github.com/JakeFAU/linkcurator/internal/config"
	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/dispatcher"
	"github.com/JakeFAU/linkcurator/internal/extract"
	collyfetcher "github.com/JakeFAU/linkcurator/internal/fetcher/colly"
	"github.com/JakeFAU/linkcurator/internal/fetcher/firecrawl"
	"github.com/JakeFAU/linkcurator/internal/fetcher/headless"
	"github.com/JakeFAU/linkcurator/internal/hash/sha256"
	"github.com/JakeFAU/linkcurator/internal/id/uuid"
	"github.com/JakeFAU/linkcurator/internal/llm"
	"github.com/JakeFAU/linkcurator/internal/pipeline"
	pspublisher "github.com/JakeFAU/linkcurator/internal/publisher/pubsub"
	"github.com/JakeFAU/linkcurator/internal/storage/gcs"
	"github.com/JakeFAU/linkcurator/internal/storage/local"
	"github.com/JakeFAU/linkcurator/internal/storage/memory"
	"github.com/JakeFAU/linkcurator/internal/storage/postgres"
	"github.com/JakeFAU/linkcurator/internal/storage/sqlite"
	"github.com/JakeFAU/linkcurator/internal/worker"
)

// SummaryEventName tags Pub/Sub messages announcing a finished summary.
const SummaryEventName = "link.summarized"

// App holds the services shared by every command.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	store   curator.LinkStore
	closers []func()
}

// New opens the configured store and verifies connectivity. A failed ping is
// returned as an error so callers can exit before any stage runs.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", runID))

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("store connection check: %w", err)
	}
	logger.Info("store ready", zap.String("backend", cfg.Store.Backend))

	return &App{
		cfg:     cfg,
		logger:  logger,
		runID:   runID,
		store:   store,
		closers: []func(){store.Close},
	}, nil
}

// NewWithStore builds an App around an existing store.
func NewWithStore(cfg config.Config, store curator.LinkStore, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, store: store}
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the link store.
func (a *App) Store() curator.LinkStore { return a.store }

// RunID identifies this process in logs.
func (a *App) RunID() string { return a.runID }

// Pipeline assembles the stage driver. Backends for skipped stages are not built.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Driver, error) {
	cfg := a.cfg
	d := dispatcher.New(cfg.Pipeline.Concurrency)
	clock := system.New()

	extractor := extract.New(extract.Config{
		Extensions:  cfg.Source.Extensions,
		LenientRows: !cfg.Source.StrictRows,
	}, a.logger)
	ingester := worker.NewIngester(a.store, worker.IngestConfig{TagBlacklist: cfg.Tags.Blacklist}, a.logger)

	var scraper, summarizer pipeline.Stage
	if !cfg.Stages.SkipCrawl {
		fetcher, err := a.fetcher()
		if err != nil {
			return nil, err
		}
		var opts []worker.ScraperOption
		archiver, err := a.archiver(ctx)
		if err != nil {
			return nil, err
		}
		if archiver != nil {
			opts = append(opts, worker.WithArchiver(archiver))
		}
		scraper = worker.NewScraper(a.store, fetcher, d, clock, a.logger, opts...)
	}
	if !cfg.Stages.SkipSummary {
		backend, err := a.summaryBackend()
		if err != nil {
			return nil, err
		}
		var opts []worker.SummarizerOption
		pub, err := a.publisher(ctx)
		if err != nil {
			return nil, err
		}
		if pub != nil {
			opts = append(opts, worker.WithPublisher(pub))
		}
		summarizer = worker.NewSummarizer(a.store, backend, d, clock, a.logger, opts...)
	}
	return pipeline.New(extractor, ingester, scraper, summarizer, a.logger), nil
}

// Close releases every service in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (curator.LinkStore, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		s, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		return memory.NewLinkStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *App) fetcher() (curator.Fetcher, error) {
	cfg := a.cfg
	switch cfg.Fetch.Backend {
	case config.FetchFirecrawl:
		if cfg.Firecrawl.APIKey == "" {
			a.logger.Warn("FIRECRAWL_API_KEY not set; relying on a self-hosted endpoint")
		}
		c, err := firecrawl.New(firecrawl.Config{
			BaseURL: cfg.Firecrawl.APIURL,
			APIKey:  cfg.Firecrawl.APIKey,
			Timeout: cfg.FetchTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("firecrawl client: %w", err)
		}
		return c, nil
	case config.FetchColly:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
		}), nil
	case config.FetchHeadless:
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Fetch.HeadlessParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: secondsOr(cfg.Fetch.HeadlessNavTimeout, cfg.FetchTimeout()),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.Fetch.Backend)
	}
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func (a *App) summaryBackend() (curator.SummaryBackend, error) {
	cfg := a.cfg.LLM
	var completer llm.Completer
	switch cfg.Provider {
	case config.ProviderOpenAI:
		completer = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case config.ProviderOllama:
		completer = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OllamaBaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case config.ProviderAnthropic:
		model := cfg.Model
		if model == "" || model == llm.DefaultOpenAIModel {
			model = llm.DefaultAnthropicModel
		}
		completer = llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       model,
			Temperature: float64(cfg.Temperature),
			MaxTokens:   int64(cfg.MaxTokens),
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	a.logger.Info("summarization backend", zap.String("provider", completer.Name()), zap.String("model", cfg.Model))
	return llm.NewSummarizer(completer, llm.Config{
		MaxContentChars: cfg.MaxContentChars,
		Attempts:        cfg.Attempts,
		RetryDelay:      a.cfg.RetryDelay(),
	}, a.logger), nil
}

func (a *App) archiver(ctx context.Context) (*archive.Archiver, error) {
	cfg := a.cfg.Archive
	var blobs curator.BlobStore
	prefix := cfg.Prefix
	switch cfg.Backend {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveMemory:
		blobs = memory.NewBlobStore()
	case config.ArchiveLocal:
		s, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		blobs = s
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		blobs = s
		prefix = ""
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
	a.logger.Info("archiving scraped content", zap.String("backend", cfg.Backend))
	return archive.New(blobs, sha256.New(), prefix), nil
}

func (a *App) publisher(ctx context.Context) (curator.Publisher, error) {
	cfg := a.cfg.Notify
	if cfg.PubSubTopic == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pspublisher.New(client.Topic(cfg.PubSubTopic), SummaryEventName)
	a.closers = append(a.closers, func() {
		pub.Close()
		_ = client.Close()
	})
	a.logger.Info("publishing summary events", zap.String("topic", cfg.PubSubTopic))
	return pub, nil
}

// PipelineOptions derives driver options from configuration.
func PipelineOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		MarkdownDir:    cfg.Source.MarkdownDir,
		NDJSONDir:      cfg.Source.NDJSONDir,
		SkipExtraction: cfg.Stages.SkipExtraction,
		SkipCrawl:      cfg.Stages.SkipCrawl,
		SkipSummary:    cfg.Stages.SkipSummary,
	}
}
