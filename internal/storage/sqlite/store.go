// Package sqlite provides a single-file link store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

//go:embed schema.sql
var schema string

// Store persists links, tags and associations in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ curator.LinkStore = (*Store)(nil)

// New opens (or creates) the database at path. Writes are serialized over one connection.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping verifies the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// InsertLinks inserts links in one transaction; existing URLs are skipped.
func (s *Store) InsertLinks(ctx context.Context, links []curator.ExtractedLink) (res curator.InsertResult, err error) {
	if len(links) == 0 {
		return res, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin insert links: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO links (url, source_file, source_json, created_at)
VALUES (?, ?, NULLIF(?, ''), ?)
ON CONFLICT (url) DO NOTHING`)
	if err != nil {
		return res, fmt.Errorf("prepare insert links: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	now := s.now().UTC()
	for _, l := range links {
		r, err := stmt.ExecContext(ctx, l.URL, l.SourceFile, l.SourceJSON, now)
		if err != nil {
			return res, fmt.Errorf("insert link %s: %w", l.URL, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Inserted++
		} else {
			res.Existing++
		}
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit insert links: %w", err)
	}
	return res, nil
}

// FindLinkID returns the id of the link with url or curator.ErrNotFound.
func (s *Store) FindLinkID(ctx context.Context, url string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM links WHERE url = ?", url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, curator.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find link %s: %w", url, err)
	}
	return id, nil
}

// ListPendingCrawl returns links that have not been scraped yet.
func (s *Store) ListPendingCrawl(ctx context.Context) ([]curator.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, url FROM links WHERE crawl_status = ? ORDER BY id", string(curator.CrawlPending))
	if err != nil {
		return nil, fmt.Errorf("list pending links: %w", err)
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
	return links, rows.Err()
}

// MarkCrawlSucceeded stores scraped content and clears any prior crawl error.
func (s *Store) MarkCrawlSucceeded(ctx context.Context, linkID int64, r curator.CrawlResult) error {
	var keywords any
	if r.Keywords != nil {
		raw, err := json.Marshal(r.Keywords)
		if err != nil {
			return fmt.Errorf("encode keywords: %w", err)
		}
		keywords = string(raw)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE links SET
    crawl_status = ?, crawled_at = ?, markdown_content = ?, crawl_error = NULL,
    title = NULLIF(?, ''), description = NULLIF(?, ''), image_url = NULLIF(?, ''), keywords = ?
WHERE id = ?`,
		string(curator.CrawlSuccess), r.CrawledAt.UTC(), r.Content,
		r.Title, r.Description, r.ImageURL, keywords, linkID)
	return affected(res, err, "mark crawl succeeded", linkID)
}

// MarkCrawlFailed records a fetch failure; existing content is kept.
func (s *Store) MarkCrawlFailed(ctx context.Context, linkID int64, errText string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE links SET crawl_status = ?, crawled_at = ?, crawl_error = ? WHERE id = ?",
		string(curator.CrawlFailed), at.UTC(), errText, linkID)
	return affected(res, err, "mark crawl failed", linkID)
}

// ListSummarizable returns scraped links still waiting for a summary.
func (s *Store) ListSummarizable(ctx context.Context) ([]curator.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, markdown_content, COALESCE(title, ''), COALESCE(description, '')
FROM links
WHERE crawl_status = ? AND summary_status = ? AND markdown_content IS NOT NULL
ORDER BY id`, string(curator.CrawlSuccess), string(curator.SummaryPending))
	if err != nil {
		return nil, fmt.Errorf("list summarizable links: %w", err)
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
	return links, rows.Err()
}

// MarkSummarySucceeded stores the summary text and clears any prior error.
func (s *Store) MarkSummarySucceeded(ctx context.Context, linkID int64, summary string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE links SET
    summary = ?, summary_status = ?, summary_error = NULL,
    summary_created_at = ?, summary_updated_at = ?
WHERE id = ?`, summary, string(curator.SummarySuccess), at.UTC(), at.UTC(), linkID)
	return affected(res, err, "mark summary succeeded", linkID)
}

// MarkSummaryFailed records a summarization failure; any existing summary text is kept.
func (s *Store) MarkSummaryFailed(ctx context.Context, linkID int64, errText string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE links SET summary_status = ?, summary_error = ?, summary_updated_at = ? WHERE id = ?",
		string(curator.SummaryFailed), errText, at.UTC(), linkID)
	return affected(res, err, "mark summary failed", linkID)
}

// ListTags returns the full tag vocabulary ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]curator.Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return collectTags(rows)
}

// UpsertTags creates missing tag names and returns every requested tag.
func (s *Store) UpsertTags(ctx context.Context, names []string) ([]curator.Tag, error) {
	names = dedupe(names)
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	values := strings.TrimSuffix(strings.Repeat("(?),", len(names)), ",")
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name) VALUES "+values+" ON CONFLICT (name) DO NOTHING", args...); err != nil {
		return nil, fmt.Errorf("upsert tags: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name FROM tags WHERE name IN ("+placeholders+") ORDER BY name", args...)
	if err != nil {
		return nil, fmt.Errorf("select upserted tags: %w", err)
	}
	return collectTags(rows)
}

// AddLinkTags inserts each association on its own; pairs that already exist are skipped.
func (s *Store) AddLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		_, err := s.db.ExecContext(ctx, "INSERT INTO link_tags (link_id, tag_id) VALUES (?, ?)", linkID, tagID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("associate tag %d with link %d: %w", tagID, linkID, err)
		}
	}
	return nil
}

// ReplaceLinkTags deletes every association of the link, then inserts tagIDs.
func (s *Store) ReplaceLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM link_tags WHERE link_id = ?", linkID); err != nil {
		return fmt.Errorf("delete link tags for %d: %w", linkID, err)
	}
	for _, tagID := range tagIDs {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO link_tags (link_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING", linkID, tagID); err != nil {
			return fmt.Errorf("insert link tag %d for %d: %w", tagID, linkID, err)
		}
	}
	return nil
}

// Stats counts links by crawl and summary status.
func (s *Store) Stats(ctx context.Context) (curator.Stats, error) {
	stats := curator.Stats{
		Crawl:   map[curator.CrawlStatus]int{},
		Summary: map[curator.SummaryStatus]int{},
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT crawl_status, summary_status, COUNT(*) FROM links GROUP BY crawl_status, summary_status")
	if err != nil {
		return stats, fmt.Errorf("link stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var crawl, summary string
		var n int
		if err := rows.Scan(&crawl, &summary, &n); err != nil {
			return stats, fmt.Errorf("scan link stats: %w", err)
		}
		stats.Links += n
		stats.Crawl[curator.CrawlStatus(crawl)] += n
		stats.Summary[curator.SummaryStatus(summary)] += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate link stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags").Scan(&stats.Tags); err != nil {
		return stats, fmt.Errorf("count tags: %w", err)
	}
	return stats, nil
}

// ListTagged returns every summarized link with its tag names.
func (s *Store) ListTagged(ctx context.Context) ([]curator.TaggedLink, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT l.id, l.url, COALESCE(l.title, ''), COALESCE(l.description, ''), COALESCE(l.image_url, ''),
    COALESCE(l.summary, ''), l.summary_updated_at, l.created_at,
    COALESCE((SELECT json_group_array(name) FROM (
        SELECT t.name FROM link_tags lt JOIN tags t ON t.id = lt.tag_id
        WHERE lt.link_id = l.id ORDER BY t.name)), '[]')
FROM links l
WHERE l.summary_status = ?
ORDER BY l.id`, string(curator.SummarySuccess))
	if err != nil {
		return nil, fmt.Errorf("list tagged links: %w", err)
	}
	defer rows.Close()

	var out []curator.TaggedLink
	for rows.Next() {
		var (
			l         curator.TaggedLink
			updatedAt sql.NullTime
			createdAt time.Time
			tags      string
		)
		if err := rows.Scan(&l.ID, &l.URL, &l.Title, &l.Description, &l.ImageURL,
			&l.Summary, &updatedAt, &createdAt, &tags); err != nil {
			return nil, fmt.Errorf("scan tagged link: %w", err)
		}
		l.SummarizedAt = createdAt
		if updatedAt.Valid {
			l.SummarizedAt = updatedAt.Time
		}
		if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for link %d: %w", l.ID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func collectTags(rows *sql.Rows) ([]curator.Tag, error) {
	defer rows.Close()
	var tags []curator.Tag
	for rows.Next() {
		var t curator.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func affected(res sql.Result, err error, op string, linkID int64) error {
	if err != nil {
		return fmt.Errorf("%s for link %d: %w", op, linkID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s for link %d: %w", op, linkID, curator.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
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
