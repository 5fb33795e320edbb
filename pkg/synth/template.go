package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/lectern/pkg/model"
)

const (
	templateQueryRunes = 100
	noContextResponse  = "I could not find related course content for your question. Try rephrasing it or naming the module you are studying."
)

// Template answers without a language model by echoing the query and citing the passages
type Template struct{}

func NewTemplate() *Template {
	return &Template{}
}

func (x *Template) Synthesize(ctx context.Context, query string, passages []*model.RetrievalResult) (string, error) {
	if len(passages) == 0 {
		return noContextResponse, nil
	}

	var b strings.Builder
	b.WriteString("I found information related to your query. Based on the textbook content, here's what I can tell you: ")
	b.WriteString(truncateRunes(query, templateQueryRunes))
	b.WriteString("...\n\nSources:")
	for i, p := range passages {
		fmt.Fprintf(&b, "\n%d. %s", i+1, passageTitle(p))
	}
	return b.String(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
