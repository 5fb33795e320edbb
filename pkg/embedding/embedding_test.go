package embedding_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/embedding"
	"github.com/m-mizutani/lectern/pkg/model"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCeiling(t *testing.T) {
	ceiling, err := embedding.NewCeiling(8)
	gt.NoError(t, err)
	gt.Equal(t, ceiling.Max(), 8)

	ids, err := ceiling.Check("hello world")
	gt.NoError(t, err)
	gt.A(t, ids).Longer(0)

	_, err = ceiling.Check("   ")
	gt.True(t, errors.Is(err, model.ErrEncodingFailure))

	_, err = ceiling.Check(strings.Repeat("robot ", 50))
	gt.True(t, errors.Is(err, model.ErrEncodingFailure))
}

func TestHashEncoder(t *testing.T) {
	ctx := context.Background()
	enc, err := embedding.NewHashEncoder(64)
	gt.NoError(t, err)
	gt.Equal(t, enc.Dimension(), 64)

	t.Run("deterministic and normalized", func(t *testing.T) {
		v1, err := enc.Encode(ctx, "Inverse kinematics for a planar arm")
		gt.NoError(t, err)
		v2, err := enc.Encode(ctx, "Inverse kinematics for a planar arm")
		gt.NoError(t, err)
		gt.A(t, v1).Length(64)
		gt.Equal(t, v1, v2)

		var norm float64
		for _, v := range v1 {
			norm += float64(v) * float64(v)
		}
		gt.True(t, norm > 0.999 && norm < 1.001)
	})

	t.Run("batch matches single", func(t *testing.T) {
		texts := []string{"sensor fusion", "PID controller tuning", "sensor fusion"}
		batch, err := enc.EncodeBatch(ctx, texts)
		gt.NoError(t, err)
		gt.A(t, batch).Length(3)

		for i, text := range texts {
			single, err := enc.Encode(ctx, text)
			gt.NoError(t, err)
			gt.Equal(t, batch[i], single)
		}
	})

	t.Run("related text is closer", func(t *testing.T) {
		enc, err := embedding.NewHashEncoder(512)
		gt.NoError(t, err)
		q, err := enc.Encode(ctx, "how does a PID controller work")
		gt.NoError(t, err)
		near, err := enc.Encode(ctx, "a PID controller uses proportional integral derivative terms")
		gt.NoError(t, err)
		far, err := enc.Encode(ctx, "lidar point clouds for mapping")
		gt.NoError(t, err)

		gt.True(t, model.CosineSimilarity(q, near) > model.CosineSimilarity(q, far))
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := enc.Encode(ctx, "")
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))

		_, err = enc.EncodeBatch(ctx, []string{"ok", ""})
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))
	})

	t.Run("token ceiling", func(t *testing.T) {
		small, err := embedding.NewHashEncoder(64, embedding.WithTokenCeiling(4))
		gt.NoError(t, err)
		_, err = small.Encode(ctx, "one two three four five six seven")
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))
	})

	t.Run("invalid dimension", func(t *testing.T) {
		_, err := embedding.NewHashEncoder(0)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})
}

type mockGemini struct {
	embedding func(ctx context.Context, texts []string, dimension int) ([][]float32, error)
	calls     int
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
	m.calls++
	return m.embedding(ctx, texts, dimension)
}

func TestGeminiEncoder(t *testing.T) {
	ctx := context.Background()

	// letterVectors marks the position of each text's first letter
	letterVectors := func(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := make([]float32, dimension)
			v[int(text[0]-'a')] = 1
			out[i] = v
		}
		return out, nil
	}

	t.Run("one text per request by default", func(t *testing.T) {
		mock := &mockGemini{embedding: letterVectors}
		enc, err := embedding.NewGeminiEncoder(mock, 4)
		gt.NoError(t, err)

		vectors, err := enc.EncodeBatch(ctx, []string{"a", "b", "c"})
		gt.NoError(t, err)
		gt.Equal(t, mock.calls, 3)
		gt.A(t, vectors).Length(3)
		gt.Equal(t, vectors[0][0], float32(1))
		gt.Equal(t, vectors[2][2], float32(1))
	})

	t.Run("order preserved across request batches", func(t *testing.T) {
		mock := &mockGemini{embedding: letterVectors}
		enc, err := embedding.NewGeminiEncoder(mock, 4, embedding.WithRequestBatch(2))
		gt.NoError(t, err)

		vectors, err := enc.EncodeBatch(ctx, []string{"a", "b", "c", "d"})
		gt.NoError(t, err)
		gt.Equal(t, mock.calls, 2)
		gt.A(t, vectors).Length(4)
		for i, vec := range vectors {
			gt.Equal(t, vec[i], float32(1))
		}
	})

	t.Run("invalid request batch", func(t *testing.T) {
		_, err := embedding.NewGeminiEncoder(&mockGemini{}, 4, embedding.WithRequestBatch(0))
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("wrong dimension", func(t *testing.T) {
		mock := &mockGemini{
			embedding: func(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
				return [][]float32{make([]float32, dimension+1)}, nil
			},
		}
		enc, err := embedding.NewGeminiEncoder(mock, 4)
		gt.NoError(t, err)

		_, err = enc.Encode(ctx, "kinematics")
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))
	})

	t.Run("wrong count", func(t *testing.T) {
		mock := &mockGemini{
			embedding: func(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
				return [][]float32{make([]float32, dimension)}, nil
			},
		}
		enc, err := embedding.NewGeminiEncoder(mock, 4, embedding.WithRequestBatch(2))
		gt.NoError(t, err)

		_, err = enc.EncodeBatch(ctx, []string{"a", "b"})
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))
	})

	t.Run("ceiling checked before request", func(t *testing.T) {
		mock := &mockGemini{
			embedding: func(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
				return nil, errors.New("should not be called")
			},
		}
		enc, err := embedding.NewGeminiEncoder(mock, 4, embedding.WithTokenCeiling(2))
		gt.NoError(t, err)

		_, err = enc.Encode(ctx, "this sentence is longer than two tokens")
		gt.True(t, errors.Is(err, model.ErrEncodingFailure))
		gt.Equal(t, mock.calls, 0)
	})

	t.Run("upstream failure", func(t *testing.T) {
		testCases := []struct {
			name        string
			err         error
			unavailable bool
		}{
			{"grpc unavailable", status.Error(codes.Unavailable, "backend down"), true},
			{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow backend"), true},
			{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, true},
			{"rate limited", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
			{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
			{"invalid argument", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false},
			{"unclassified", errors.New("malformed response"), false},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				mock := &mockGemini{
					embedding: func(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
						return nil, tc.err
					},
				}
				enc, err := embedding.NewGeminiEncoder(mock, 4)
				gt.NoError(t, err)

				_, err = enc.Encode(ctx, "kinematics")
				gt.Error(t, err)
				gt.Equal(t, errors.Is(err, model.ErrServiceUnavailable), tc.unavailable)
				gt.Equal(t, errors.Is(err, model.ErrEncodingFailure), !tc.unavailable)
			})
		}
	})
}
