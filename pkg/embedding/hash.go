package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
)

// HashEncoder is an offline encoder. Token ids and word bigrams are feature-hashed
// into a fixed number of buckets with a signed hash, then L2-normalized.
type HashEncoder struct {
	dimension int
	ceiling   *Ceiling
}

// NewHashEncoder creates a HashEncoder of the given dimension
func NewHashEncoder(dimension int, opts ...Option) (*HashEncoder, error) {
	cfg := newConfig(opts)
	if dimension <= 0 {
		return nil, goerr.Wrap(model.ErrValidation, "dimension must be positive", goerr.V("dimension", dimension))
	}

	ceiling, err := NewCeiling(cfg.tokenCeiling)
	if err != nil {
		return nil, err
	}

	return &HashEncoder{dimension: dimension, ceiling: ceiling}, nil
}

func (x *HashEncoder) Dimension() int { return x.dimension }

func (x *HashEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	normalized := strings.ToLower(text)
	ids, err := x.ceiling.Check(normalized)
	if err != nil {
		return nil, err
	}

	vec := make([]float64, x.dimension)
	for _, id := range ids {
		x.add(vec, "t:"+strconv.FormatUint(uint64(id), 10))
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i := 1; i < len(words); i++ {
		x.add(vec, "b:"+words[i-1]+" "+words[i])
	}

	return normalize(vec), nil
}

func (x *HashEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := x.Encode(ctx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode batch item", goerr.V("index", i))
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (x *HashEncoder) add(vec []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(x.dimension))
	if sum>>63 == 1 {
		vec[bucket]--
	} else {
		vec[bucket]++
	}
}

func normalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
