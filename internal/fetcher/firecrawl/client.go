// Package firecrawl fetches page content through the Firecrawl scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	fc "github.com/mendableai/firecrawl-go"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

const (
	defaultTimeout = 60 * time.Second
	// selfHostedKey is sent when no key is configured. The SDK refuses an empty
	// key, and self-hosted deployments without auth ignore the header.
	selfHostedKey = "self-hosted"
)

// Config identifies the Firecrawl deployment.
type Config struct {
	// BaseURL is the API root, e.g. https://api.firecrawl.dev or http://localhost:3002.
	BaseURL string
	// APIKey is sent as a bearer token. Self-hosted deployments may not need one.
	APIKey  string
	Timeout time.Duration
}

// Scraper is the part of the Firecrawl SDK the client uses.
type Scraper interface {
	ScrapeURL(url string, params *fc.ScrapeParams) (*fc.FirecrawlDocument, error)
}

// Client implements curator.Fetcher on top of the Firecrawl SDK.
type Client struct {
	app     Scraper
	timeout time.Duration
}

var _ curator.Fetcher = (*Client)(nil)

// New creates a Client for cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("firecrawl base url is required")
	}
	key := cfg.APIKey
	if key == "" {
		key = selfHostedKey
	}
	app, err := fc.NewFirecrawlApp(key, base)
	if err != nil {
		return nil, fmt.Errorf("create firecrawl app: %w", err)
	}
	return NewWithScraper(app, cfg.Timeout), nil
}

// NewWithScraper wraps an existing SDK client.
func NewWithScraper(app Scraper, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{app: app, timeout: timeout}
}

type scrapeResult struct {
	doc *fc.FirecrawlDocument
	err error
}

// Fetch scrapes url as markdown. A success response without markdown is an error.
// The SDK call takes no context, so cancellation and the timeout abandon the call
// rather than abort it.
func (c *Client) Fetch(ctx context.Context, url string) (curator.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan scrapeResult, 1)
	go func() {
		doc, err := c.app.ScrapeURL(url, &fc.ScrapeParams{Formats: []string{"markdown"}})
		done <- scrapeResult{doc: doc, err: err}
	}()

	var res scrapeResult
	select {
	case <-ctx.Done():
		return curator.Page{}, fmt.Errorf("firecrawl scrape %s: %w", url, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return curator.Page{}, fmt.Errorf("firecrawl scrape %s: %w", url, res.err)
	}
	if res.doc == nil || res.doc.Markdown == "" {
		return curator.Page{}, curator.ErrMissingContent
	}

	md, err := decodeMetadata(res.doc.Metadata)
	if err != nil {
		return curator.Page{}, err
	}
	return curator.Page{
		Content:     res.doc.Markdown,
		Title:       string(md.Title),
		Description: string(md.Description),
		ImageURL:    string(md.OGImage),
		Keywords:    string(md.Keywords),
	}, nil
}

type metadata struct {
	Title       flexString `json:"title"`
	Description flexString `json:"description"`
	OGImage     flexString `json:"ogImage"`
	Keywords    flexString `json:"keywords"`
}

// decodeMetadata normalizes the SDK metadata through its JSON form, so unset
// and null fields both read as empty strings.
func decodeMetadata(v any) (metadata, error) {
	var md metadata
	raw, err := json.Marshal(v)
	if err != nil {
		return md, fmt.Errorf("encode firecrawl metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return md, fmt.Errorf("decode firecrawl metadata: %w", err)
	}
	return md, nil
}

// flexString accepts either a JSON string or an array of strings; arrays are
// joined with commas.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*f = flexString(strings.Join(list, ","))
	return nil
}
