// Package memory provides in-memory stores for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

// LinkStore keeps links, tags and associations in maps guarded by a RWMutex.
type LinkStore struct {
	mu       sync.RWMutex
	nextLink int64
	nextTag  int64
	links    map[int64]curator.Link
	byURL    map[string]int64
	tags     map[string]curator.Tag
	linkTags map[int64]map[int64]struct{}
	now      func() time.Time
}

var _ curator.LinkStore = (*LinkStore)(nil)

// NewLinkStore constructs an empty LinkStore.
func NewLinkStore() *LinkStore {
	return &LinkStore{
		links:    make(map[int64]curator.Link),
		byURL:    make(map[string]int64),
		tags:     make(map[string]curator.Tag),
		linkTags: make(map[int64]map[int64]struct{}),
		now:      time.Now,
	}
}

// Migrate is a no-op.
func (s *LinkStore) Migrate(context.Context) error { return nil }

// Ping always succeeds.
func (s *LinkStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *LinkStore) Close() {}

// InsertLinks adds links whose URL is not yet known.
func (s *LinkStore) InsertLinks(_ context.Context, links []curator.ExtractedLink) (curator.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res curator.InsertResult
	for _, l := range links {
		if _, ok := s.byURL[l.URL]; ok {
			res.Existing++
			continue
		}
		s.nextLink++
		link := curator.Link{
			ID:            s.nextLink,
			URL:           l.URL,
			SourceFile:    l.SourceFile,
			CreatedAt:     s.now().UTC(),
			CrawlStatus:   curator.CrawlPending,
			SummaryStatus: curator.SummaryPending,
		}
		if l.SourceJSON != "" {
			link.SourceJSON = ptr(l.SourceJSON)
		}
		s.links[link.ID] = link
		s.byURL[l.URL] = link.ID
		res.Inserted++
	}
	return res, nil
}

// FindLinkID returns the id for url or curator.ErrNotFound.
func (s *LinkStore) FindLinkID(_ context.Context, url string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return 0, curator.ErrNotFound
	}
	return id, nil
}

// Link returns a copy of the stored link.
func (s *LinkStore) Link(id int64) (curator.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[id]
	return link, ok
}

// LinkTagNames returns the sorted tag names associated with a link.
func (s *LinkStore) LinkTagNames(id int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagNamesLocked(id)
}

// SetLink overwrites a stored link; tests use it to seed arbitrary states.
func (s *LinkStore) SetLink(link curator.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == 0 {
		s.nextLink++
		link.ID = s.nextLink
	} else if link.ID > s.nextLink {
		s.nextLink = link.ID
	}
	s.links[link.ID] = link
	s.byURL[link.URL] = link.ID
}

// ListPendingCrawl returns links with crawl status pending ordered by id.
func (s *LinkStore) ListPendingCrawl(context.Context) ([]curator.Link, error) {
	return s.filter(func(l curator.Link) bool { return l.CrawlStatus == curator.CrawlPending }), nil
}

// MarkCrawlSucceeded stores scraped content.
func (s *LinkStore) MarkCrawlSucceeded(_ context.Context, linkID int64, r curator.CrawlResult) error {
	return s.update(linkID, func(l *curator.Link) {
		l.CrawlStatus = curator.CrawlSuccess
		l.CrawledAt = ptr(r.CrawledAt)
		l.Content = ptr(r.Content)
		l.CrawlError = nil
		l.Title = r.Title
		l.Description = r.Description
		l.ImageURL = r.ImageURL
		l.Keywords = slices.Clone(r.Keywords)
	})
}

// MarkCrawlFailed records a crawl error without touching content.
func (s *LinkStore) MarkCrawlFailed(_ context.Context, linkID int64, errText string, at time.Time) error {
	return s.update(linkID, func(l *curator.Link) {
		l.CrawlStatus = curator.CrawlFailed
		l.CrawledAt = ptr(at)
		l.CrawlError = ptr(errText)
	})
}

// ListSummarizable returns scraped links whose summary is pending.
func (s *LinkStore) ListSummarizable(context.Context) ([]curator.Link, error) {
	return s.filter(func(l curator.Link) bool {
		return l.Summarizable() && l.SummaryStatus == curator.SummaryPending
	}), nil
}

// MarkSummarySucceeded stores summary text.
func (s *LinkStore) MarkSummarySucceeded(_ context.Context, linkID int64, summary string, at time.Time) error {
	return s.update(linkID, func(l *curator.Link) {
		l.Summary = ptr(summary)
		l.SummaryStatus = curator.SummarySuccess
		l.SummaryError = nil
		l.SummaryCreatedAt = ptr(at)
		l.SummaryUpdatedAt = ptr(at)
	})
}

// MarkSummaryFailed records a summary error without touching summary text.
func (s *LinkStore) MarkSummaryFailed(_ context.Context, linkID int64, errText string, at time.Time) error {
	return s.update(linkID, func(l *curator.Link) {
		l.SummaryStatus = curator.SummaryFailed
		l.SummaryError = ptr(errText)
		l.SummaryUpdatedAt = ptr(at)
	})
}

// ListTags returns all tags ordered by name.
func (s *LinkStore) ListTags(context.Context) ([]curator.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]curator.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(a, b curator.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return tags, nil
}

// UpsertTags creates missing tags and returns every requested tag.
func (s *LinkStore) UpsertTags(_ context.Context, names []string) ([]curator.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []curator.Tag
	seen := map[string]struct{}{}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tag, ok := s.tags[name]
		if !ok {
			s.nextTag++
			tag = curator.Tag{ID: s.nextTag, Name: name}
			s.tags[name] = tag
		}
		out = append(out, tag)
	}
	return out, nil
}

// AddLinkTags adds associations; existing pairs are ignored.
func (s *LinkStore) AddLinkTags(_ context.Context, linkID int64, tagIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[linkID]; !ok {
		return curator.ErrNotFound
	}
	set := s.linkTags[linkID]
	if set == nil {
		set = make(map[int64]struct{})
		s.linkTags[linkID] = set
	}
	for _, id := range tagIDs {
		set[id] = struct{}{}
	}
	return nil
}

// ReplaceLinkTags swaps the association set for a link.
func (s *LinkStore) ReplaceLinkTags(_ context.Context, linkID int64, tagIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[linkID]; !ok {
		return curator.ErrNotFound
	}
	set := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		set[id] = struct{}{}
	}
	s.linkTags[linkID] = set
	return nil
}

// Stats counts links by status.
func (s *LinkStore) Stats(context.Context) (curator.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := curator.Stats{
		Links:   len(s.links),
		Tags:    len(s.tags),
		Crawl:   map[curator.CrawlStatus]int{},
		Summary: map[curator.SummaryStatus]int{},
	}
	for _, l := range s.links {
		stats.Crawl[l.CrawlStatus]++
		stats.Summary[l.SummaryStatus]++
	}
	return stats, nil
}

// ListTagged returns summarized links with their tag names.
func (s *LinkStore) ListTagged(context.Context) ([]curator.TaggedLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []curator.TaggedLink
	for _, l := range s.sortedLocked() {
		if l.SummaryStatus != curator.SummarySuccess {
			continue
		}
		tl := curator.TaggedLink{
			ID:           l.ID,
			URL:          l.URL,
			Title:        l.Title,
			Description:  l.Description,
			ImageURL:     l.ImageURL,
			Tags:         s.tagNamesLocked(l.ID),
			SummarizedAt: l.CreatedAt,
		}
		if l.Summary != nil {
			tl.Summary = *l.Summary
		}
		if l.SummaryUpdatedAt != nil {
			tl.SummarizedAt = *l.SummaryUpdatedAt
		}
		out = append(out, tl)
	}
	return out, nil
}

func (s *LinkStore) update(linkID int64, fn func(*curator.Link)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[linkID]
	if !ok {
		return curator.ErrNotFound
	}
	fn(&link)
	s.links[linkID] = link
	return nil
}

func (s *LinkStore) filter(keep func(curator.Link) bool) []curator.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []curator.Link
	for _, l := range s.sortedLocked() {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func (s *LinkStore) sortedLocked() []curator.Link {
	links := make([]curator.Link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	slices.SortFunc(links, func(a, b curator.Link) int { return cmp.Compare(a.ID, b.ID) })
	return links
}

func (s *LinkStore) tagNamesLocked(linkID int64) []string {
	names := []string{}
	for _, t := range s.tags {
		if _, ok := s.linkTags[linkID][t.ID]; ok {
			names = append(names, t.Name)
		}
	}
	slices.Sort(names)
	return names
}

func ptr[T any](v T) *T {
	return &v
}
