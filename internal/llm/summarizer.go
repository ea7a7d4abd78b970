package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/curator"
	"github.com/JakeFAU/linkcurator/internal/metrics"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxContentChars = 10000
	DefaultAttempts        = 3
	DefaultRetryDelay      = time.Second
)

// Completer sends one prompt to a chat model and returns the raw reply text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes prompt size and retries.
type Config struct {
	MaxContentChars int
	Attempts        int
	RetryDelay      time.Duration
}

// Summarizer implements curator.SummaryBackend on top of a Completer.
type Summarizer struct {
	completer Completer
	cfg       Config
	logger    *zap.Logger
}

var _ curator.SummaryBackend = (*Summarizer)(nil)

// NewSummarizer wraps completer with prompt building, validation and fixed-delay retries.
func NewSummarizer(completer Completer, cfg Config, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Summarizer{
		completer: completer,
		cfg:       cfg,
		logger:    logger.Named("llm").With(zap.String("provider", completer.Name())),
	}
}

// Summarize calls the model until it returns a valid response or the attempts
// run out; the last error is returned.
func (s *Summarizer) Summarize(ctx context.Context, req curator.SummaryRequest) (curator.Summary, error) {
	req.Content = Truncate(req.Content, s.cfg.MaxContentChars)
	prompt := BuildPrompt(req)
	attempts := uint(s.cfg.Attempts)

	result, err := retry.DoWithData(
		func() (curator.Summary, error) {
			text, err := s.completer.Complete(ctx, prompt)
			metrics.ObserveLLMAttempt(s.completer.Name(), err)
			if err != nil {
				if ctx.Err() != nil {
					return curator.Summary{}, retry.Unrecoverable(err)
				}
				return curator.Summary{}, err
			}
			return ParseResponse(text)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(s.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			fields := []zap.Field{
				zap.String("url", req.URL),
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", attempts),
				zap.Error(err),
			}
			if n+1 < attempts {
				s.logger.Warn("summary attempt failed, retrying", append(fields, zap.Duration("delay", s.cfg.RetryDelay))...)
				return
			}
			s.logger.Error("summary attempts exhausted", fields...)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (last error: %v)", ctxErr, err)
		}
		return curator.Summary{}, fmt.Errorf("summarize %s: %w", req.URL, err)
	}
	return result, nil
}
