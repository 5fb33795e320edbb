package synth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/synth"
	"google.golang.org/genai"
)

func samplePassages() []*model.RetrievalResult {
	return []*model.RetrievalResult{
		{ID: "p1", Text: "A PID controller combines three terms.", Metadata: map[string]any{"title": "Control Basics"}, Score: 0.9},
		{ID: "p2", Text: "Tuning starts with the proportional gain.", Metadata: map[string]any{"module": "control"}, Score: 0.7},
		{ID: "p3", Text: "Anti-windup limits the integral term.", Metadata: map[string]any{}, Score: 0.5},
	}
}

func TestTemplate(t *testing.T) {
	ctx := context.Background()
	tmpl := synth.NewTemplate()

	t.Run("with passages", func(t *testing.T) {
		resp, err := tmpl.Synthesize(ctx, "How do I tune a PID controller?", samplePassages())
		gt.NoError(t, err)
		gt.S(t, resp).Contains("I found information related to your query.")
		gt.S(t, resp).Contains("How do I tune a PID controller?...")
		gt.S(t, resp).Contains("1. Control Basics")
		gt.S(t, resp).Contains("2. control")
		gt.S(t, resp).Contains("3. p3")
	})

	t.Run("without passages", func(t *testing.T) {
		resp, err := tmpl.Synthesize(ctx, "anything", nil)
		gt.NoError(t, err)
		gt.S(t, resp).Contains("could not find related course content")
	})

	t.Run("long query is cut at 100 runes", func(t *testing.T) {
		query := strings.Repeat("ロ", 150)
		resp, err := tmpl.Synthesize(ctx, query, samplePassages())
		gt.NoError(t, err)
		gt.S(t, resp).Contains(strings.Repeat("ロ", 100) + "...")
		gt.False(t, strings.Contains(resp, strings.Repeat("ロ", 101)))
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt, err := synth.BuildSystemPrompt(samplePassages())
	gt.NoError(t, err)
	gt.S(t, prompt).Contains("[1] Control Basics")
	gt.S(t, prompt).Contains("A PID controller combines three terms.")
	gt.S(t, prompt).Contains("[3] p3")

	empty, err := synth.BuildSystemPrompt(nil)
	gt.NoError(t, err)
	gt.S(t, empty).Contains("No course passages matched")
}

type mockGemini struct {
	generate func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generate(ctx, contents, config)
}

func (m *mockGemini) Embedding(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestGemini(t *testing.T) {
	ctx := context.Background()

	t.Run("answer from first candidate", func(t *testing.T) {
		var gotSystem, gotQuery string
		mock := &mockGemini{
			generate: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				gotQuery = contents[0].Parts[0].Text
				gotSystem = config.SystemInstruction.Parts[0].Text
				return &genai.GenerateContentResponse{
					Candidates: []*genai.Candidate{
						{Content: genai.NewContentFromText("Start with the P gain [2].", genai.RoleModel)},
					},
				}, nil
			},
		}

		resp, err := synth.NewGemini(mock).Synthesize(ctx, "How to tune PID?", samplePassages())
		gt.NoError(t, err)
		gt.Equal(t, resp, "Start with the P gain [2].")
		gt.Equal(t, gotQuery, "How to tune PID?")
		gt.S(t, gotSystem).Contains("Tuning starts with the proportional gain.")
	})

	t.Run("empty response", func(t *testing.T) {
		mock := &mockGemini{
			generate: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{}, nil
			},
		}
		_, err := synth.NewGemini(mock).Synthesize(ctx, "q", nil)
		gt.Error(t, err)
	})

	t.Run("upstream error", func(t *testing.T) {
		mock := &mockGemini{
			generate: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, errors.New("quota")
			},
		}
		_, err := synth.NewGemini(mock).Synthesize(ctx, "q", nil)
		gt.Error(t, err)
	})
}

type mockGenerator struct {
	system, prompt string
	answer         string
	err            error
}

func (m *mockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.system, m.prompt = system, prompt
	return m.answer, m.err
}

func TestLLM(t *testing.T) {
	ctx := context.Background()

	gen := &mockGenerator{answer: "Use anti-windup [3]."}
	resp, err := synth.NewLLM(gen, "claude").Synthesize(ctx, "Why does my arm overshoot?", samplePassages())
	gt.NoError(t, err)
	gt.Equal(t, resp, "Use anti-windup [3].")
	gt.Equal(t, gen.prompt, "Why does my arm overshoot?")
	gt.S(t, gen.system).Contains("Anti-windup limits the integral term.")

	_, err = synth.NewLLM(&mockGenerator{err: errors.New("rate limited")}, "openai").Synthesize(ctx, "q", nil)
	gt.Error(t, err)

	_, err = synth.NewLLM(&mockGenerator{}, "openai").Synthesize(ctx, "q", nil)
	gt.Error(t, err)
}
