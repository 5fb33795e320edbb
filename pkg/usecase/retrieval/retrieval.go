package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/metrics"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultLimit   = 5
)

// Engine encodes a query once and searches the index once, keeping the index ranking
type Engine struct {
	encoder interfaces.Encoder
	index   interfaces.VectorIndex
	timeout time.Duration
	limit   int
	metrics *metrics.Metrics
}

// Option is a functional option for Engine
type Option func(*Engine)

// WithTimeout bounds the encode and search round trip
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithDefaultLimit sets the number of passages returned when the caller passes limit <= 0
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		e.limit = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates a new retrieval Engine
func New(encoder interfaces.Encoder, index interfaces.VectorIndex, opts ...Option) *Engine {
	e := &Engine{
		encoder: encoder,
		index:   index,
		timeout: DefaultTimeout,
		limit:   DefaultLimit,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Retrieve returns up to limit passages relevant to query. Timeouts and index
// outages are reported as model.ErrServiceUnavailable.
func (e *Engine) Retrieve(ctx context.Context, query string, limit int) ([]*model.RetrievalResult, error) {
	if limit <= 0 {
		limit = e.limit
	}

	start := time.Now()
	defer func() {
		e.metrics.ObserveRetrieval(time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.encoder.Encode(ctx, query)
	if err != nil {
		return nil, e.classify(ctx, err, "failed to encode query")
	}

	results, err := e.index.Search(ctx, vec, limit)
	if err != nil {
		return nil, e.classify(ctx, err, "failed to search index")
	}

	logging.From(ctx).Debug("retrieved passages",
		"count", len(results),
		"limit", limit,
		"elapsed", time.Since(start))

	return results, nil
}

func (e *Engine) classify(ctx context.Context, err error, msg string) error {
	switch {
	case errors.Is(err, model.ErrServiceUnavailable):
		return goerr.Wrap(err, msg)
	case ctx.Err() != nil:
		return goerr.Wrap(model.ErrServiceUnavailable, msg,
			goerr.V("timeout", e.timeout),
			goerr.V("error", err.Error()))
	default:
		return goerr.Wrap(err, msg)
	}
}
