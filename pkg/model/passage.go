package model

import (
	"math"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

// DefaultDimension is the platform-wide embedding dimensionality
const DefaultDimension = 384

type PassageID string

// NewPassageID generates a new unique PassageID
func NewPassageID() PassageID {
	return PassageID(uuid.New().String())
}

// Passage is a unit of indexed course content
type Passage struct {
	ID        PassageID          `json:"id" yaml:"id"`
	Embedding firestore.Vector32 `json:"-" yaml:"-"`
	Text      string             `json:"text" yaml:"text"`
	Metadata  map[string]any     `json:"metadata" yaml:"metadata"`
	UpdatedAt time.Time          `json:"updated_at" yaml:"-"`

	// Seq is the index-local insertion counter used for recency tie-breaks
	Seq int64 `json:"-" yaml:"-"`
}

// RetrievalResult is a ranked passage returned by similarity search
type RetrievalResult struct {
	ID       PassageID      `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`

	seq int64
}

// NewRetrievalResult builds a result from a passage and its similarity score
func NewRetrievalResult(p *Passage, score float64) *RetrievalResult {
	return &RetrievalResult{
		ID:       p.ID,
		Text:     p.Text,
		Metadata: p.Metadata,
		Score:    score,
		seq:      p.Seq,
	}
}

// Source returns the passage metadata used as a context source reference
func (r *RetrievalResult) Source() Source {
	src := make(Source, len(r.Metadata))
	for k, v := range r.Metadata {
		src[k] = v
	}
	return src
}

// RankResults sorts by score descending; equal scores put the most recently
// inserted passage first.
func RankResults(results []*RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].seq > results[j].seq
	})
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors.
// Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp rounding drift
	return math.Max(-1, math.Min(1, sim))
}
