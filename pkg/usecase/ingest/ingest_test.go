package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/embedding"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/repository"
	"github.com/m-mizutani/lectern/pkg/usecase/ingest"
)

type batchCounter struct {
	*embedding.HashEncoder
	sizes []int
}

func (x *batchCounter) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	x.sizes = append(x.sizes, len(texts))
	return x.HashEncoder.EncodeBatch(ctx, texts)
}

func writeCorpus(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	gt.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadCorpus(t *testing.T) {
	path := writeCorpus(t, `
- id: ik-01
  text: Inverse kinematics solves joint angles for a target pose.
  metadata:
    module: kinematics
    week: 3
- content: ROS topics carry messages between nodes.
  metadata:
    module: middleware
`)

	docs, err := ingest.LoadCorpus(path)
	gt.NoError(t, err)
	gt.A(t, docs).Length(2)
	gt.Equal(t, docs[0].ID, model.PassageID("ik-01"))
	gt.Equal(t, docs[0].Metadata["week"], any(3))
	gt.Equal(t, docs[1].Content, "ROS topics carry messages between nodes.")
}

func TestLoadCorpusInvalid(t *testing.T) {
	_, err := ingest.LoadCorpus(writeCorpus(t, "- id: x\n  metadata: {}\n"))
	gt.True(t, errors.Is(err, model.ErrValidation))

	_, err = ingest.LoadCorpus(writeCorpus(t, "not: [a list"))
	gt.Error(t, err)

	_, err = ingest.LoadCorpus(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	enc, err := embedding.NewHashEncoder(32)
	gt.NoError(t, err)
	counter := &batchCounter{HashEncoder: enc}
	index := repository.NewMemoryIndex(32)
	uc := ingest.New(counter, index, ingest.WithBatchSize(2))

	docs := []*ingest.Document{
		{ID: "a", Text: "PID control", Metadata: map[string]any{"module": "control"}},
		{Text: "Kalman filter"},
		{ID: "c", Content: "Lidar mapping"},
	}

	ids, err := uc.Ingest(ctx, docs)
	gt.NoError(t, err)
	gt.A(t, ids).Length(3)
	gt.Equal(t, ids[0], model.PassageID("a"))
	gt.NotEqual(t, ids[1], model.PassageID(""))
	gt.Equal(t, counter.sizes, []int{2, 1})

	p, err := uc.Get(ctx, "c")
	gt.NoError(t, err)
	gt.Equal(t, p.Text, "Lidar mapping")

	results, err := index.Search(ctx, mustEncode(t, enc, "PID control"), 1)
	gt.NoError(t, err)
	gt.Equal(t, results[0].ID, model.PassageID("a"))
	gt.Equal(t, results[0].Metadata["module"], any("control"))
}

func TestIngestEncodingFailure(t *testing.T) {
	enc, err := embedding.NewHashEncoder(32, embedding.WithTokenCeiling(3))
	gt.NoError(t, err)
	uc := ingest.New(enc, repository.NewMemoryIndex(32))

	_, err = uc.Ingest(context.Background(), []*ingest.Document{
		{ID: "long", Text: "this passage is much longer than three tokens"},
	})
	gt.True(t, errors.Is(err, model.ErrEncodingFailure))
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	enc, err := embedding.NewHashEncoder(32)
	gt.NoError(t, err)
	uc := ingest.New(enc, repository.NewMemoryIndex(32))

	_, err = uc.Ingest(ctx, []*ingest.Document{{ID: "a", Text: "PID control"}})
	gt.NoError(t, err)

	gt.NoError(t, uc.Remove(ctx, []model.PassageID{"a", "never-existed"}))
	_, err = uc.Get(ctx, "a")
	gt.True(t, errors.Is(err, model.ErrPassageNotFound))
}

func mustEncode(t *testing.T, enc *embedding.HashEncoder, text string) []float32 {
	t.Helper()
	vec, err := enc.Encode(context.Background(), text)
	gt.NoError(t, err)
	return vec
}
