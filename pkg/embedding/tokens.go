package embedding

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultTokenCeiling is the largest input accepted by encoders unless configured otherwise
const DefaultTokenCeiling = 256

// Ceiling rejects inputs the embedding model would silently truncate
type Ceiling struct {
	codec tokenizer.Codec
	max   int
}

// NewCeiling creates a token ceiling backed by the o200k_base codec
func NewCeiling(limit int) (*Ceiling, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tokenizer")
	}
	if limit <= 0 {
		limit = DefaultTokenCeiling
	}
	return &Ceiling{codec: codec, max: limit}, nil
}

// Max returns the configured ceiling
func (c *Ceiling) Max() int { return c.max }

// Check tokenizes text and fails with ErrEncodingFailure when it is empty or too long
func (c *Ceiling) Check(text string) ([]uint, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrEncodingFailure, "input is empty")
	}

	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return nil, goerr.Wrap(model.ErrEncodingFailure, "failed to tokenize input", goerr.V("error", err.Error()))
	}
	if len(ids) > c.max {
		return nil, goerr.Wrap(model.ErrEncodingFailure, "input exceeds token ceiling",
			goerr.V("tokens", len(ids)),
			goerr.V("max", c.max))
	}
	return ids, nil
}

// Count returns the number of tokens in text
func (c *Ceiling) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to tokenize input")
	}
	return len(ids), nil
}
