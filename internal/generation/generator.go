// Package generation renders the answer prompt and bounds calls to the
// generation service.
package generation

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/prompts"

	"docqa/internal/domain"
)

const answerTemplate = `You are an intelligent assistant answering questions based on content from uploaded documents.
Include relevant examples to support your responses, citing the page and document name.
You can do meaningful and normal conversation with the user.
Give the answer in the user's input language.

### Context:
{{.context}}

### User Question:
{{.question}}

### Answer:
`

// AnswerPrompt is the instruction template filled with the assembled context
// and the user's question.
var AnswerPrompt = prompts.NewPromptTemplate(answerTemplate, []string{"context", "question"})

// RenderAnswerPrompt fills AnswerPrompt.
func RenderAnswerPrompt(contextText, question string) (string, error) {
	return AnswerPrompt.Format(map[string]any{
		"context":  contextText,
		"question": question,
	})
}

type timeoutGenerator struct {
	next    domain.Generator
	timeout time.Duration
}

// WithTimeout gives each Generate call its own deadline. A call that hits it
// fails with domain.ErrUpstreamTimeout, any other failure with
// domain.ErrGenerationService.
func WithTimeout(g domain.Generator, timeout time.Duration) domain.Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: timeout}
}

func (t *timeoutGenerator) Name() string { return t.next.Name() }

func (t *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	out, err := t.next.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", domain.UpstreamError(context.DeadlineExceeded, domain.ErrGenerationService)
		}
		return "", domain.UpstreamError(err, domain.ErrGenerationService)
	}
	return out, nil
}
