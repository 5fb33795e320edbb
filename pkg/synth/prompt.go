package synth

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
)

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).Parse(answerPromptRaw))

type promptPassage struct {
	Title string
	Text  string
}

// BuildSystemPrompt renders the system instruction holding the ranked passages
func BuildSystemPrompt(passages []*model.RetrievalResult) (string, error) {
	items := make([]promptPassage, 0, len(passages))
	for _, p := range passages {
		items = append(items, promptPassage{Title: passageTitle(p), Text: p.Text})
	}

	var buf bytes.Buffer
	if err := answerPromptTmpl.Execute(&buf, map[string]any{
		"Passages": items,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute answer prompt template")
	}
	return buf.String(), nil
}

// passageTitle prefers the "title" metadata, then "module", then the passage ID
func passageTitle(p *model.RetrievalResult) string {
	for _, key := range []string{"title", "module"} {
		if v, ok := p.Metadata[key]; ok {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return string(p.ID)
}
