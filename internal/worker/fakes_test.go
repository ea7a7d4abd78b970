package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]curator.Page
	errs   map[string]error
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

// enter counts one in-flight call, raises peak if needed and returns the matching exit.
func enter(active, peak *atomic.Int32) func() {
	n := active.Add(1)
	for {
		p := peak.Load()
		if n <= p || peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { active.Add(-1) }
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (curator.Page, error) {
	defer enter(&f.active, &f.peak)()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return curator.Page{}, err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return curator.Page{}, errors.New("no such page")
}

type fakeBackend struct {
	mu       sync.Mutex
	results  map[string]curator.Summary
	errs     map[string]error
	requests []curator.SummaryRequest
	delay    time.Duration
	active   atomic.Int32
	peak     atomic.Int32
}

func (b *fakeBackend) Summarize(_ context.Context, req curator.SummaryRequest) (curator.Summary, error) {
	defer enter(&b.active, &b.peak)()
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if err, ok := b.errs[req.URL]; ok {
		return curator.Summary{}, err
	}
	return b.results[req.URL], nil
}

type recordingArchiver struct {
	mu     sync.Mutex
	stored map[string]string
	err    error
}

func (a *recordingArchiver) Store(_ context.Context, url, content string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.stored == nil {
		a.stored = map[string]string{}
	}
	a.stored[url] = content
	return "memory://" + url, nil
}

func strPtr(s string) *string { return &s }
