package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/dispatcher"
	"github.com/JakeFAU/linkcurator/internal/metrics"
)

// Defaults substituted into summary requests for links without metadata.
const (
	NoTitle       = "No title available"
	NoDescription = "No description available"
)

// SummaryStore is the subset of the store used by the Summarizer.
type SummaryStore interface {
	curator.SummaryStore
	curator.TagStore
}

// SummaryEvent is published after a link has been summarized.
type SummaryEvent struct {
	LinkID       int64     `json:"link_id"`
	URL          string    `json:"url"`
	Tags         []string  `json:"tags"`
	SummarizedAt time.Time `json:"summarized_at"`
}

// Summarizer generates summaries and tags for scraped links.
type Summarizer struct {
	store      SummaryStore
	backend    curator.SummaryBackend
	dispatcher *dispatcher.Dispatcher
	clock      curator.Clock
	publisher  curator.Publisher
	logger     *zap.Logger
}

// SummarizerOption customizes a Summarizer.
type SummarizerOption func(*Summarizer)

// WithPublisher announces every successful summary through p.
func WithPublisher(p curator.Publisher) SummarizerOption {
	return func(s *Summarizer) {
		s.publisher = p
	}
}

// NewSummarizer constructs a Summarizer.
func NewSummarizer(
	store SummaryStore,
	backend curator.SummaryBackend,
	d *dispatcher.Dispatcher,
	clock curator.Clock,
	logger *zap.Logger,
	opts ...SummarizerOption,
) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Summarizer{
		store:      store,
		backend:    backend,
		dispatcher: d,
		clock:      clock,
		logger:     logger.Named("summarizer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run summarizes every scraped link whose summary is pending. The tag
// vocabulary is read once up front and offered to the model for every link.
func (s *Summarizer) Run(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ObserveStage("summarize", time.Since(start)) }()

	known, err := s.store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("list known tags: %w", err)
	}
	knownNames := curator.TagNames(known)
	s.logger.Info("loaded known tags", zap.Int("count", len(knownNames)))

	links, err := s.store.ListSummarizable(ctx)
	if err != nil {
		return fmt.Errorf("list summarizable links: %w", err)
	}
	if len(links) == 0 {
		s.logger.Info("no links to summarize")
		return nil
	}
	s.logger.Info("summarizing links", zap.Int("count", len(links)), zap.Int("concurrency", s.dispatcher.Limit()))

	dispatcher.Each(ctx, s.dispatcher, links, func(ctx context.Context, link curator.Link) {
		s.summarize(ctx, link, knownNames)
	})

	s.logger.Info("summarize finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Summarizer) summarize(ctx context.Context, link curator.Link, knownTags []string) {
	defer metrics.TrackInFlight("summarize")()
	logger := s.logger.With(zap.Int64("link_id", link.ID), zap.String("url", link.URL))

	tags, err := s.apply(ctx, link, knownTags)
	if err != nil {
		metrics.ObserveSummary(string(curator.SummaryFailed))
		logger.Warn("summarize failed", zap.Error(err))
		if uerr := s.store.MarkSummaryFailed(ctx, link.ID, err.Error(), s.clock.Now()); uerr != nil {
			logger.Error("record summary failure", zap.Error(uerr))
		}
		return
	}
	metrics.ObserveSummary(string(curator.SummarySuccess))
	logger.Info("summarized link", zap.Strings("tags", tags))
	s.publish(ctx, logger, link, tags)
}

// apply runs the model and writes tags then summary for one link.
func (s *Summarizer) apply(ctx context.Context, link curator.Link, knownTags []string) ([]string, error) {
	if link.Content == nil {
		return nil, curator.ErrMissingContent
	}
	req := curator.SummaryRequest{
		URL:         link.URL,
		Content:     *link.Content,
		Title:       orDefault(link.Title, NoTitle),
		Description: orDefault(link.Description, NoDescription),
		KnownTags:   knownTags,
	}
	summary, err := s.backend.Summarize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	var rows []curator.Tag
	if len(summary.Tags) > 0 {
		rows, err = s.store.UpsertTags(ctx, summary.Tags)
		if err != nil {
			return nil, fmt.Errorf("upsert tags: %w", err)
		}
		metrics.ObserveTagsUpserted("summary", len(rows))
	}
	if err := s.store.ReplaceLinkTags(ctx, link.ID, curator.TagIDs(rows)); err != nil {
		return nil, fmt.Errorf("replace link tags: %w", err)
	}
	if err := s.store.MarkSummarySucceeded(ctx, link.ID, summary.Summary, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("store summary: %w", err)
	}
	return curator.TagNames(rows), nil
}

func (s *Summarizer) publish(ctx context.Context, logger *zap.Logger, link curator.Link, tags []string) {
	if s.publisher == nil {
		return
	}
	event := SummaryEvent{
		LinkID:       link.ID,
		URL:          link.URL,
		Tags:         tags,
		SummarizedAt: s.clock.Now(),
	}
	id, err := s.publisher.Publish(ctx, event)
	if err != nil {
		logger.Warn("publish summary event", zap.Error(err))
		return
	}
	logger.Debug("summary event published", zap.String("message_id", id))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
