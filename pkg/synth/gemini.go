package synth

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/model"
	"google.golang.org/genai"
)

// Gemini generates answers with a Gemini model grounded on the retrieved passages
type Gemini struct {
	client adapter.Gemini
}

func NewGemini(client adapter.Gemini) *Gemini {
	return &Gemini{client: client}
}

func (x *Gemini) Synthesize(ctx context.Context, query string, passages []*model.RetrievalResult) (string, error) {
	systemPrompt, err := BuildSystemPrompt(passages)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(query, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
	}

	resp, err := x.client.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate answer")
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}

	if b.Len() == 0 {
		return "", goerr.New("empty answer from gemini")
	}
	return b.String(), nil
}
