package synth

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
)

// TextGenerator is a chat model taking a system instruction and one user prompt.
// adapter.Claude and adapter.OpenAI satisfy it.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// LLM generates answers with any TextGenerator
type LLM struct {
	generator TextGenerator
	name      string
}

// NewLLM creates a synthesizer. name identifies the provider in errors.
func NewLLM(generator TextGenerator, name string) *LLM {
	return &LLM{generator: generator, name: name}
}

func (x *LLM) Synthesize(ctx context.Context, query string, passages []*model.RetrievalResult) (string, error) {
	systemPrompt, err := BuildSystemPrompt(passages)
	if err != nil {
		return "", err
	}

	answer, err := x.generator.Generate(ctx, systemPrompt, query)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate answer", goerr.V("provider", x.name))
	}
	if answer == "" {
		return "", goerr.New("empty answer", goerr.V("provider", x.name))
	}
	return answer, nil
}
