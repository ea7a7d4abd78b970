package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/metrics"
)

// DefaultTagBlacklist lists inline tags that are never imported.
var DefaultTagBlacklist = []string{"links"}

const defaultProgressEvery = 50

// IngestStore is the subset of the store used by the Ingester.
type IngestStore interface {
	curator.LinkWriter
	curator.TagStore
}

// IngestConfig controls tag import.
type IngestConfig struct {
	// TagBlacklist entries are matched case-insensitively against whole tag names.
	TagBlacklist []string
	// ProgressEvery controls how often tag import progress is logged.
	ProgressEvery int
}

// Ingester persists extracted links and their inline NDJSON tags.
type Ingester struct {
	store         IngestStore
	blacklist     map[string]struct{}
	progressEvery int
	logger        *zap.Logger
}

// NewIngester builds an Ingester. A nil blacklist selects DefaultTagBlacklist.
func NewIngester(store IngestStore, cfg IngestConfig, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	list := cfg.TagBlacklist
	if list == nil {
		list = DefaultTagBlacklist
	}
	blacklist := make(map[string]struct{}, len(list))
	for _, b := range list {
		blacklist[strings.ToLower(b)] = struct{}{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	return &Ingester{
		store:         store,
		blacklist:     blacklist,
		progressEvery: cfg.ProgressEvery,
		logger:        logger.Named("ingest"),
	}
}

// InsertLinks bulk inserts links. URLs already in the store are left as they are.
func (i *Ingester) InsertLinks(ctx context.Context, links []curator.ExtractedLink) (curator.InsertResult, error) {
	if len(links) == 0 {
		i.logger.Info("no links to insert")
		return curator.InsertResult{}, nil
	}
	res, err := i.store.InsertLinks(ctx, links)
	if err != nil {
		return res, fmt.Errorf("insert links: %w", err)
	}
	metrics.ObserveInserted(res.Inserted, res.Existing)
	if res.Existing > 0 {
		i.logger.Info("skipped links already in store", zap.Int("existing", res.Existing))
	}
	i.logger.Info("links inserted", zap.Int("inserted", res.Inserted), zap.Int("candidates", len(links)))
	return res, nil
}

// ImportTags associates inline record tags with their links and returns how
// many links received tags. Associations are only ever added.
func (i *Ingester) ImportTags(ctx context.Context, links []curator.ExtractedLink) (int, error) {
	tagged := 0
	for _, link := range links {
		if link.SourceJSON == "" {
			continue
		}
		tags := i.filterBlacklisted(link.URL, recordTags(link.SourceJSON))
		if len(tags) == 0 {
			continue
		}

		id, err := i.store.FindLinkID(ctx, link.URL)
		if err != nil {
			if errors.Is(err, curator.ErrNotFound) {
				i.logger.Warn("link not found for tag import", zap.String("url", link.URL))
				continue
			}
			i.logger.Error("look up link for tag import", zap.String("url", link.URL), zap.Error(err))
			continue
		}

		rows, err := i.store.UpsertTags(ctx, tags)
		if err != nil {
			i.logger.Error("upsert imported tags", zap.Int64("link_id", id), zap.Error(err))
			continue
		}
		metrics.ObserveTagsUpserted("import", len(rows))
		if err := i.store.AddLinkTags(ctx, id, curator.TagIDs(rows)); err != nil {
			i.logger.Error("associate imported tags", zap.Int64("link_id", id), zap.Error(err))
			continue
		}

		tagged++
		if tagged%i.progressEvery == 0 {
			i.logger.Info("tag import progress", zap.Int("tagged", tagged))
		}
	}
	i.logger.Info("tag import finished", zap.Int("tagged", tagged))
	return tagged, nil
}

func (i *Ingester) filterBlacklisted(url string, tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	kept := make([]string, 0, len(tags))
	var removed []string
	for _, t := range tags {
		if _, ok := i.blacklist[strings.ToLower(t)]; ok {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) > 0 {
		i.logger.Info("filtered blacklisted tags", zap.String("url", url), zap.Strings("removed", removed))
	}
	return kept
}

// recordTags reads the tags array of an NDJSON record. Non-string elements are
// rendered as their JSON text; empty names are dropped.
func recordTags(sourceJSON string) []string {
	var record struct {
		Tags []json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal([]byte(sourceJSON), &record); err != nil {
		return nil
	}
	tags := make([]string, 0, len(record.Tags))
	for _, raw := range record.Tags {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(bytes.TrimSpace(raw))
		}
		if s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}
