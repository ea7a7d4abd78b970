// Package postgres provides the Postgres-backed link store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

const (
	insertChunkSize    = 500
	uniqueViolation    = "23505"
	defaultMaxConns    = 10
	defaultConnTimeout = 10 * time.Second
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store persists links, tags and their associations in Postgres.
type Store struct {
	pool pool
}

var _ curator.LinkStore = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.ConnConfig.ConnectTimeout = defaultConnTimeout
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InsertLinks inserts links in chunks. Rows whose URL already exists are left untouched.
func (s *Store) InsertLinks(ctx context.Context, links []curator.ExtractedLink) (curator.InsertResult, error) {
	var res curator.InsertResult
	for start := 0; start < len(links); start += insertChunkSize {
		end := min(start+insertChunkSize, len(links))
		chunk := links[start:end]
		urls := make([]string, len(chunk))
		files := make([]string, len(chunk))
		sources := make([]string, len(chunk))
		for i, l := range chunk {
			urls[i], files[i], sources[i] = l.URL, l.SourceFile, l.SourceJSON
		}
		tag, err := s.pool.Exec(ctx, `
INSERT INTO links (url, source_file, source_json)
SELECT u, f, NULLIF(j, '')
FROM unnest($1::text[], $2::text[], $3::text[]) AS t(u, f, j)
ON CONFLICT (url) DO NOTHING`, urls, files, sources)
		if err != nil {
			return res, fmt.Errorf("insert links: %w", err)
		}
		inserted := int(tag.RowsAffected())
		res.Inserted += inserted
		res.Existing += len(chunk) - inserted
	}
	return res, nil
}

// FindLinkID returns the id of the link with url or curator.ErrNotFound.
func (s *Store) FindLinkID(ctx context.Context, url string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM links WHERE url = $1`, url).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, curator.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find link %s: %w", url, err)
	}
	return id, nil
}

// ListPendingCrawl returns links that have not been scraped yet.
func (s *Store) ListPendingCrawl(ctx context.Context) ([]curator.Link, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url FROM links WHERE crawl_status = $1 ORDER BY id`, string(curator.CrawlPending))
	if err != nil {
		return nil, fmt.Errorf("select pending links: %w", err)
	}
	defer rows.Close()
	var links []curator.Link
	for rows.Next() {
		link := curator.Link{CrawlStatus: curator.CrawlPending}
		if err := rows.Scan(&link.ID, &link.URL); err != nil {
			return nil, fmt.Errorf("scan pending link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending links: %w", err)
	}
	return links, nil
}

// MarkCrawlSucceeded stores scraped content and clears any prior crawl error.
func (s *Store) MarkCrawlSucceeded(ctx context.Context, linkID int64, r curator.CrawlResult) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE links SET
	crawl_status = $2,
	crawled_at = $3,
	markdown_content = $4,
	crawl_error = NULL,
	title = $5,
	description = $6,
	image_url = $7,
	keywords = $8
WHERE id = $1`,
		linkID, string(curator.CrawlSuccess), r.CrawledAt, r.Content,
		nullable(r.Title), nullable(r.Description), nullable(r.ImageURL), r.Keywords)
	return affected(tag, err, "mark crawl succeeded", linkID)
}

// MarkCrawlFailed records a fetch failure; existing content is kept.
func (s *Store) MarkCrawlFailed(ctx context.Context, linkID int64, errText string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE links SET crawl_status = $2, crawled_at = $3, crawl_error = $4 WHERE id = $1`,
		linkID, string(curator.CrawlFailed), at, errText)
	return affected(tag, err, "mark crawl failed", linkID)
}

// ListSummarizable returns scraped links still waiting for a summary.
func (s *Store) ListSummarizable(ctx context.Context) ([]curator.Link, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, url, markdown_content, COALESCE(title, ''), COALESCE(description, '')
FROM links
WHERE crawl_status = $1 AND summary_status = $2 AND markdown_content IS NOT NULL
ORDER BY id`, string(curator.CrawlSuccess), string(curator.SummaryPending))
	if err != nil {
		return nil, fmt.Errorf("select summarizable links: %w", err)
	}
	defer rows.Close()
	var links []curator.Link
	for rows.Next() {
		link := curator.Link{CrawlStatus: curator.CrawlSuccess, SummaryStatus: curator.SummaryPending}
		var content string
		if err := rows.Scan(&link.ID, &link.URL, &content, &link.Title, &link.Description); err != nil {
			return nil, fmt.Errorf("scan summarizable link: %w", err)
		}
		link.Content = &content
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summarizable links: %w", err)
	}
	return links, nil
}

// MarkSummarySucceeded stores the summary text and clears any prior error.
func (s *Store) MarkSummarySucceeded(ctx context.Context, linkID int64, summary string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE links SET
	summary = $2,
	summary_status = $3,
	summary_error = NULL,
	summary_created_at = $4,
	summary_updated_at = $4
WHERE id = $1`, linkID, summary, string(curator.SummarySuccess), at)
	return affected(tag, err, "mark summary succeeded", linkID)
}

// MarkSummaryFailed records a summarization failure; any existing summary text is kept.
func (s *Store) MarkSummaryFailed(ctx context.Context, linkID int64, errText string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE links SET summary_status = $2, summary_error = $3, summary_updated_at = $4 WHERE id = $1`,
		linkID, string(curator.SummaryFailed), errText, at)
	return affected(tag, err, "mark summary failed", linkID)
}

// ListTags returns the full tag vocabulary ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]curator.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	return collectTags(rows)
}

// UpsertTags creates missing tag names and returns every requested tag.
func (s *Store) UpsertTags(ctx context.Context, names []string) ([]curator.Tag, error) {
	names = dedupe(names)
	if len(names) == 0 {
		return nil, nil
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO tags (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`, names); err != nil {
		return nil, fmt.Errorf("upsert tags: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM tags WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, fmt.Errorf("select upserted tags: %w", err)
	}
	return collectTags(rows)
}

// AddLinkTags inserts each association on its own; pairs that already exist are skipped.
func (s *Store) AddLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		_, err := s.pool.Exec(ctx, `INSERT INTO link_tags (link_id, tag_id) VALUES ($1, $2)`, linkID, tagID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("associate tag %d with link %d: %w", tagID, linkID, err)
		}
	}
	return nil
}

// ReplaceLinkTags deletes every association of the link, then inserts tagIDs.
// The two statements are not atomic.
func (s *Store) ReplaceLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM link_tags WHERE link_id = $1`, linkID); err != nil {
		return fmt.Errorf("delete link tags for %d: %w", linkID, err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `
INSERT INTO link_tags (link_id, tag_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`, linkID, tagIDs); err != nil {
		return fmt.Errorf("insert link tags for %d: %w", linkID, err)
	}
	return nil
}

// Stats counts links by crawl and summary status.
func (s *Store) Stats(ctx context.Context) (curator.Stats, error) {
	stats := curator.Stats{
		Crawl:   map[curator.CrawlStatus]int{},
		Summary: map[curator.SummaryStatus]int{},
	}
	rows, err := s.pool.Query(ctx,
		`SELECT crawl_status, summary_status, count(*) FROM links GROUP BY crawl_status, summary_status`)
	if err != nil {
		return stats, fmt.Errorf("select link stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var crawl, summary string
		var n int64
		if err := rows.Scan(&crawl, &summary, &n); err != nil {
			return stats, fmt.Errorf("scan link stats: %w", err)
		}
		stats.Links += int(n)
		stats.Crawl[curator.CrawlStatus(crawl)] += int(n)
		stats.Summary[curator.SummaryStatus(summary)] += int(n)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate link stats: %w", err)
	}
	var tags int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tags`).Scan(&tags); err != nil {
		return stats, fmt.Errorf("count tags: %w", err)
	}
	stats.Tags = int(tags)
	return stats, nil
}

// ListTagged returns every summarized link with its tag names.
func (s *Store) ListTagged(ctx context.Context) ([]curator.TaggedLink, error) {
	rows, err := s.pool.Query(ctx, `
SELECT l.id, l.url, COALESCE(l.title, ''), COALESCE(l.description, ''), COALESCE(l.image_url, ''),
	COALESCE(l.summary, ''), COALESCE(l.summary_updated_at, l.created_at),
	COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
FROM links l
LEFT JOIN link_tags lt ON lt.link_id = l.id
LEFT JOIN tags t ON t.id = lt.tag_id
WHERE l.summary_status = $1
GROUP BY l.id
ORDER BY l.id`, string(curator.SummarySuccess))
	if err != nil {
		return nil, fmt.Errorf("select tagged links: %w", err)
	}
	defer rows.Close()
	var out []curator.TaggedLink
	for rows.Next() {
		var l curator.TaggedLink
		if err := rows.Scan(&l.ID, &l.URL, &l.Title, &l.Description, &l.ImageURL,
			&l.Summary, &l.SummarizedAt, &l.Tags); err != nil {
			return nil, fmt.Errorf("scan tagged link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tagged links: %w", err)
	}
	return out, nil
}

func collectTags(rows pgx.Rows) ([]curator.Tag, error) {
	defer rows.Close()
	var tags []curator.Tag
	for rows.Next() {
		var t curator.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func affected(tag pgconn.CommandTag, err error, op string, linkID int64) error {
	if err != nil {
		return fmt.Errorf("%s for link %d: %w", op, linkID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s for link %d: %w", op, linkID, curator.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
