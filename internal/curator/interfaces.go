package curator

import (
	"context"
	"io"
	"time"
)

// LinkWriter persists candidate links. Existing URLs are left untouched.
type LinkWriter interface {
	InsertLinks(ctx context.Context, links []ExtractedLink) (InsertResult, error)
	FindLinkID(ctx context.Context, url string) (int64, error)
}

// TagStore resolves tag names and maintains link-tag associations.
type TagStore interface {
	ListTags(ctx context.Context) ([]Tag, error)
	// UpsertTags creates missing tags and returns the rows for every requested name.
	UpsertTags(ctx context.Context, names []string) ([]Tag, error)
	// AddLinkTags inserts associations, ignoring pairs that already exist.
	AddLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error
	// ReplaceLinkTags deletes every association for the link and inserts tagIDs.
	ReplaceLinkTags(ctx context.Context, linkID int64, tagIDs []int64) error
}

// CrawlStore exposes the crawl-side state transitions of links.
type CrawlStore interface {
	ListPendingCrawl(ctx context.Context) ([]Link, error)
	MarkCrawlSucceeded(ctx context.Context, linkID int64, result CrawlResult) error
	MarkCrawlFailed(ctx context.Context, linkID int64, errText string, at time.Time) error
}

// SummaryStore exposes the summary-side state transitions of links.
type SummaryStore interface {
	ListSummarizable(ctx context.Context) ([]Link, error)
	MarkSummarySucceeded(ctx context.Context, linkID int64, summary string, at time.Time) error
	MarkSummaryFailed(ctx context.Context, linkID int64, errText string, at time.Time) error
}

// LinkStore is the full persistent store used by the pipeline.
type LinkStore interface {
	LinkWriter
	TagStore
	CrawlStore
	SummaryStore
	Stats(ctx context.Context) (Stats, error)
	ListTagged(ctx context.Context) ([]TaggedLink, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Fetcher retrieves live content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// SummaryBackend produces a validated summary and tags for scraped content.
type SummaryBackend interface {
	Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests used to derive archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
