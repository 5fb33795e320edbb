package ingest

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

// DefaultBatchSize is the number of texts sent to the encoder at once
const DefaultBatchSize = 32

// Document is one course passage to index
type Document struct {
	ID       model.PassageID `yaml:"id" json:"id"`
	Text     string          `yaml:"text" json:"text"`
	Content  string          `yaml:"content" json:"content,omitempty"`
	Metadata map[string]any  `yaml:"metadata" json:"metadata"`
}

// body returns Text, falling back to Content
func (d *Document) body() string {
	if d.Text != "" {
		return d.Text
	}
	return d.Content
}

// UseCase indexes course content
type UseCase struct {
	encoder   interfaces.Encoder
	index     interfaces.VectorIndex
	batchSize int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

func WithBatchSize(n int) Option {
	return func(uc *UseCase) {
		if n > 0 {
			uc.batchSize = n
		}
	}
}

// New creates a new ingest UseCase instance
func New(encoder interfaces.Encoder, index interfaces.VectorIndex, opts ...Option) *UseCase {
	uc := &UseCase{
		encoder:   encoder,
		index:     index,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// LoadCorpus reads a YAML list of documents
func LoadCorpus(path string) ([]*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read corpus", goerr.V("path", path))
	}

	var docs []*Document
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, goerr.Wrap(err, "failed to parse corpus", goerr.V("path", path))
	}

	for i, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.body()) == "" {
			return nil, goerr.Wrap(model.ErrValidation, "document has no text",
				goerr.V("path", path),
				goerr.V("index", i))
		}
	}
	return docs, nil
}

// Ingest encodes documents in batches and upserts them. Documents without an ID get a generated one.
// Returns the IDs in input order.
func (uc *UseCase) Ingest(ctx context.Context, docs []*Document) ([]model.PassageID, error) {
	ids := make([]model.PassageID, 0, len(docs))

	for start := 0; start < len(docs); start += uc.batchSize {
		end := min(start+uc.batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, 0, len(batch))
		for _, doc := range batch {
			texts = append(texts, doc.body())
		}

		vectors, err := uc.encoder.EncodeBatch(ctx, texts)
		if err != nil {
			return ids, goerr.Wrap(err, "failed to encode batch",
				goerr.V("offset", start),
				goerr.V("size", len(batch)))
		}

		for i, doc := range batch {
			id := doc.ID
			if id == "" {
				id = model.NewPassageID()
			}

			if err := uc.index.Upsert(ctx, &model.Passage{
				ID:        id,
				Embedding: vectors[i],
				Text:      doc.body(),
				Metadata:  doc.Metadata,
			}); err != nil {
				return ids, goerr.Wrap(err, "failed to upsert passage", goerr.V("passage_id", id))
			}
			ids = append(ids, id)
		}

		logging.From(ctx).Debug("ingested batch", "offset", start, "size", len(batch))
	}

	logging.From(ctx).Info("ingested passages", "count", len(ids))
	return ids, nil
}

// Remove deletes passages by ID. Unknown IDs are ignored.
func (uc *UseCase) Remove(ctx context.Context, ids []model.PassageID) error {
	for _, id := range ids {
		if err := uc.index.Delete(ctx, id); err != nil {
			return goerr.Wrap(err, "failed to delete passage", goerr.V("passage_id", id))
		}
	}
	return nil
}

// Get returns an indexed passage
func (uc *UseCase) Get(ctx context.Context, id model.PassageID) (*model.Passage, error) {
	p, err := uc.index.GetPassage(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get passage")
	}
	return p, nil
}
