package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (c *scriptedCompleter) Name() string { return "scripted" }

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.text, r.err
}

func (c *scriptedCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func TestSummarizeRetriesUntilValid(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []reply{
		{err: errors.New("503 from provider")},
		{text: `{"summary": 1}`},
		{text: `{"summary":"Fine.","tags":["go"]}`},
	}}
	s := NewSummarizer(completer, Config{RetryDelay: time.Millisecond}, zap.NewNop())

	got, err := s.Summarize(context.Background(), curator.SummaryRequest{URL: "https://a", Content: "body"})
	require.NoError(t, err)
	require.Equal(t, curator.Summary{Summary: "Fine.", Tags: []string{"go"}}, got)
	require.Equal(t, 3, completer.calls())
}

func TestSummarizeReturnsLastError(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []reply{
		{err: errors.New("first")},
		{err: errors.New("second")},
		{text: `{"summary":"","tags":[]}`},
		{text: `{"summary":"never reached","tags":[]}`},
	}}
	s := NewSummarizer(completer, Config{Attempts: 3, RetryDelay: time.Millisecond}, zap.NewNop())

	_, err := s.Summarize(context.Background(), curator.SummaryRequest{URL: "https://a", Content: "body"})
	require.ErrorIs(t, err, ErrEmptyResult)
	require.ErrorContains(t, err, "summarize https://a")
	require.Equal(t, 3, completer.calls())
}

func TestSummarizeTruncatesContent(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{replies: []reply{{text: `{"summary":"ok","tags":[]}`}}}
	s := NewSummarizer(completer, Config{MaxContentChars: 4}, zap.NewNop())

	_, err := s.Summarize(context.Background(), curator.SummaryRequest{URL: "u", Content: "abcdefgh"})
	require.NoError(t, err)
	require.Contains(t, completer.prompts[0], "Content:\nabcd"+TruncationMarker)
	require.NotContains(t, completer.prompts[0], "abcde")
}

func TestSummarizeStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := &scriptedCompleter{replies: []reply{{err: context.Canceled}, {err: context.Canceled}}}
	s := NewSummarizer(completer, Config{Attempts: 5, RetryDelay: time.Hour}, zap.NewNop())

	start := time.Now()
	_, err := s.Summarize(ctx, curator.SummaryRequest{URL: "u", Content: "x"})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
