package embedding

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/model"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiEncoder encodes text with a Gemini embedding model.
//
// gemini-embedding-001 on Vertex AI accepts a single input per request, so
// texts are sent one by one unless WithRequestBatch allows more.
type GeminiEncoder struct {
	client       adapter.Gemini
	dimension    int
	ceiling      *Ceiling
	requestBatch int
}

// NewGeminiEncoder creates an encoder requesting vectors of the given dimension
func NewGeminiEncoder(client adapter.Gemini, dimension int, opts ...Option) (*GeminiEncoder, error) {
	cfg := newConfig(opts)
	if dimension <= 0 {
		return nil, goerr.Wrap(model.ErrValidation, "dimension must be positive", goerr.V("dimension", dimension))
	}
	if cfg.requestBatch <= 0 {
		return nil, goerr.Wrap(model.ErrValidation, "request batch must be positive", goerr.V("batch", cfg.requestBatch))
	}

	ceiling, err := NewCeiling(cfg.tokenCeiling)
	if err != nil {
		return nil, err
	}

	return &GeminiEncoder{
		client:       client,
		dimension:    dimension,
		ceiling:      ceiling,
		requestBatch: cfg.requestBatch,
	}, nil
}

func (x *GeminiEncoder) Dimension() int { return x.dimension }

func (x *GeminiEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := x.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (x *GeminiEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	for i, text := range texts {
		if _, err := x.ceiling.Check(text); err != nil {
			return nil, goerr.Wrap(err, "rejected batch item", goerr.V("index", i))
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += x.requestBatch {
		end := min(start+x.requestBatch, len(texts))
		chunk, err := x.request(ctx, texts[start:end])
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode batch", goerr.V("offset", start))
		}
		vectors = append(vectors, chunk...)
	}
	return vectors, nil
}

func (x *GeminiEncoder) request(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := x.client.Embedding(ctx, texts, x.dimension)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "embedding request interrupted")
		}
		if isUnavailable(err) {
			return nil, goerr.Wrap(model.ErrServiceUnavailable, "embedding backend unavailable", goerr.V("error", err.Error()))
		}
		return nil, goerr.Wrap(model.ErrEncodingFailure, "embedding request rejected", goerr.V("error", err.Error()))
	}

	if len(vectors) != len(texts) {
		return nil, goerr.Wrap(model.ErrEncodingFailure, "unexpected embedding count",
			goerr.V("expected", len(texts)),
			goerr.V("actual", len(vectors)))
	}
	for i, vec := range vectors {
		if len(vec) != x.dimension {
			return nil, goerr.Wrap(model.ErrEncodingFailure, "unexpected embedding dimension",
				goerr.V("index", i),
				goerr.V("expected", x.dimension),
				goerr.V("actual", len(vec)))
		}
	}
	return vectors, nil
}

// isUnavailable reports whether err means the backend could not serve the
// request, as opposed to rejecting the input
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
