package curator

import "time"

// CrawlStatus is the state of the content-fetch attempt for a link.
type CrawlStatus string

// Crawl status values persisted in links.crawl_status.
const (
	CrawlPending CrawlStatus = "pending"
	CrawlSuccess CrawlStatus = "success"
	CrawlFailed  CrawlStatus = "failed"
)

// SummaryStatus is the state of the summarization attempt for a link.
type SummaryStatus string

// Summary status values persisted in links.summary_status.
const (
	SummaryPending SummaryStatus = "pending"
	SummarySuccess SummaryStatus = "success"
	SummaryFailed  SummaryStatus = "failed"
)

// ExtractedLink is a candidate link discovered in the source corpus before it is persisted.
type ExtractedLink struct {
	URL        string
	SourceFile string
	// SourceJSON holds the originating NDJSON record, empty in markdown mode.
	SourceJSON string
}

// Link is a persisted URL together with its crawl and summary state.
type Link struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	SourceFile string    `json:"source_file"`
	SourceJSON *string   `json:"source_json,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	CrawlStatus CrawlStatus `json:"crawl_status"`
	CrawledAt   *time.Time  `json:"crawled_at,omitempty"`
	Content     *string     `json:"markdown_content,omitempty"`
	CrawlError  *string     `json:"crawl_error,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`

	Summary          *string       `json:"summary,omitempty"`
	SummaryStatus    SummaryStatus `json:"summary_status"`
	SummaryError     *string       `json:"summary_error,omitempty"`
	SummaryCreatedAt *time.Time    `json:"summary_created_at,omitempty"`
	SummaryUpdatedAt *time.Time    `json:"summary_updated_at,omitempty"`
}

// Summarizable reports whether the link has scraped content that can be summarized.
func (l Link) Summarizable() bool {
	return l.CrawlStatus == CrawlSuccess && l.Content != nil
}

// Tag is a named topical label. Names are unique and compared case-sensitively.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TagNames returns the names of tags in order.
func TagNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// TagIDs returns the ids of tags in order.
func TagIDs(tags []Tag) []int64 {
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// Page is the payload returned by a Fetcher on success.
type Page struct {
	Content     string
	Title       string
	Description string
	ImageURL    string
	// Keywords is the raw comma separated keyword string reported by the backend.
	Keywords string
}

// CrawlResult is written to a link after a successful scrape.
type CrawlResult struct {
	Content     string
	Title       string
	Description string
	ImageURL    string
	// Keywords is nil when the page reported none.
	Keywords  []string
	CrawledAt time.Time
}

// SummaryRequest carries everything the language model needs for one link.
type SummaryRequest struct {
	URL         string
	Content     string
	Title       string
	Description string
	KnownTags   []string
}

// Summary is a validated language model response.
type Summary struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// InsertResult reports the outcome of a bulk link insert.
type InsertResult struct {
	Inserted int
	Existing int
}

// Stats aggregates link counts by status for operators.
type Stats struct {
	Links   int                   `json:"links"`
	Tags    int                   `json:"tags"`
	Crawl   map[CrawlStatus]int   `json:"crawl"`
	Summary map[SummaryStatus]int `json:"summary"`
}

// TaggedLink is a summarized link with its associated tag names, used for exports.
type TaggedLink struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Summary      string    `json:"summary"`
	Tags         []string  `json:"tags"`
	SummarizedAt time.Time `json:"summarized_at"`
}
