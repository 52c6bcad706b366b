// Package assembler turns retrieved chunks and the conversation so far into
// the context handed to the generation service, keeping it inside a token
// budget.
package assembler

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docqa/internal/domain"
)

const (
	// DefaultKeepTurns is how many recent turns stay verbatim when older
	// ones are summarised.
	DefaultKeepTurns = 4

	summaryPrefix = "Summary of earlier conversation: "
)

// Config holds configuration for the Assembler.
type Config struct {
	// MaxTokens caps the estimated size of the prompt. Zero disables the cap.
	MaxTokens int

	// Render builds the prompt actually sent from context text and question,
	// so the instruction template counts against MaxTokens. When nil only
	// context and question are measured.
	Render func(contextText, question string) (string, error)

	// KeepTurns is the number of most recent turns never folded into the summary.
	KeepTurns int

	// SummarySentences bounds the length of the history summary.
	SummarySentences int
}

// TurnSummarizer condenses conversation turns directly, favouring what the
// question being answered refers to. A summarizer that implements it is
// preferred over plain text summarization of the rendered turns.
type TurnSummarizer interface {
	SummarizeTurns(turns []domain.Turn, focus string, maxSentences int) (string, error)
}

// Context is the assembled prompt input.
type Context struct {
	// Text lists the chunks, then the earlier turns.
	Text     string
	Question string
	// Results are the chunks that made it into Text, best first.
	Results []domain.SearchResult
	// Tokens is the estimated size of the prompt as measured against MaxTokens.
	Tokens int

	SummarizedTurns int
	DroppedTurns    int
	DroppedChunks   int
	Truncated       bool
}

// Trimmed reports whether anything was removed to fit the budget.
func (c Context) Trimmed() bool {
	return c.SummarizedTurns > 0 || c.DroppedTurns > 0 || c.DroppedChunks > 0 || c.Truncated
}

// Assembler builds contexts.
type Assembler struct {
	maxTokens        int
	render           func(contextText, question string) (string, error)
	keepTurns        int
	summarySentences int
	summarizer       domain.Summarizer
	logger           *zap.Logger
}

// New creates an Assembler. summarizer may be nil, in which case history is
// only ever dropped, never summarised.
func New(c Config, summarizer domain.Summarizer, logger *zap.Logger) *Assembler {
	keep := c.KeepTurns
	if keep <= 0 {
		keep = DefaultKeepTurns
	}
	sentences := c.SummarySentences
	if sentences <= 0 {
		sentences = 3
	}
	return &Assembler{
		maxTokens:        c.MaxTokens,
		render:           c.Render,
		keepTurns:        keep,
		summarySentences: sentences,
		summarizer:       summarizer,
		logger:           logger,
	}
}

// parts is the mutable state trimmed down to the budget.
type parts struct {
	results []domain.SearchResult
	summary string
	turns   []domain.Turn
}

func (p parts) render() string {
	var b strings.Builder
	for i, r := range p.results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Document: %s\nContent: %s", r.Chunk.Source, r.Chunk.Text)
	}
	if p.summary != "" {
		b.WriteString("\n" + summaryPrefix + p.summary)
	}
	for _, t := range p.turns {
		fmt.Fprintf(&b, "\nUser: %s\nBot: %s", t.Question, t.Answer)
	}
	return b.String()
}

// Assemble renders results and turns into one context. When the estimate
// exceeds the budget it first summarises older turns, then drops the oldest
// turns, then the lowest ranked chunks, and finally truncates the last
// remaining chunk.
func (a *Assembler) Assemble(results []domain.SearchResult, turns []domain.Turn, question string) Context {
	p := parts{
		results: append([]domain.SearchResult(nil), results...),
		turns:   append([]domain.Turn(nil), turns...),
	}
	out := Context{Question: question}
	size := func() int { return a.measure(p.render(), question) }
	over := func() bool { return a.maxTokens > 0 && size() > a.maxTokens }

	if over() && len(p.turns) > a.keepTurns && a.summarizer != nil {
		older := p.turns[:len(p.turns)-a.keepTurns]
		if summary := a.summarize(older, question); summary != "" {
			p.summary = summary
			p.turns = p.turns[len(older):]
			out.SummarizedTurns = len(older)
		}
	}

	for over() && (p.summary != "" || len(p.turns) > 0) {
		if p.summary != "" {
			p.summary = ""
		} else {
			p.turns = p.turns[1:]
		}
		out.DroppedTurns++
	}

	for over() && len(p.results) > 1 {
		p.results = p.results[:len(p.results)-1]
		out.DroppedChunks++
	}

	if over() && len(p.results) == 1 {
		a.truncate(&p, question)
		out.Truncated = true
	}

	out.Text = p.render()
	out.Results = p.results
	out.Tokens = a.measure(out.Text, question)
	if out.Trimmed() {
		a.logger.Debug("context trimmed to budget",
			zap.Int("max_tokens", a.maxTokens),
			zap.Int("tokens", out.Tokens),
			zap.Int("summarized_turns", out.SummarizedTurns),
			zap.Int("dropped_turns", out.DroppedTurns),
			zap.Int("dropped_chunks", out.DroppedChunks),
			zap.Bool("truncated", out.Truncated),
		)
	}
	return out
}

// measure estimates the prompt built from contextText and question.
func (a *Assembler) measure(contextText, question string) int {
	if a.render != nil {
		prompt, err := a.render(contextText, question)
		if err == nil {
			return EstimateTokens(prompt)
		}
		a.logger.Warn("rendering prompt for budget", zap.Error(err))
	}
	return EstimateTokens(contextText) + EstimateTokens(question)
}

func (a *Assembler) summarize(turns []domain.Turn, question string) string {
	if ts, ok := a.summarizer.(TurnSummarizer); ok {
		summary, err := ts.SummarizeTurns(turns, question, a.summarySentences)
		if err != nil {
			a.logger.Warn("summarizing history", zap.Error(err))
			return ""
		}
		return strings.TrimSpace(summary)
	}

	var b strings.Builder
	for _, t := range turns {
		q := strings.TrimRight(strings.TrimSpace(t.Question), ".!?")
		ans := strings.TrimRight(strings.TrimSpace(t.Answer), ".!?")
		fmt.Fprintf(&b, "User asked: %s. Answer: %s. ", q, ans)
	}
	summary, err := a.summarizer.Summarize(b.String(), a.summarySentences)
	if err != nil {
		a.logger.Warn("summarizing history", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

// truncate keeps the longest rune prefix of the single remaining chunk that
// fits the budget.
func (a *Assembler) truncate(p *parts, question string) {
	full := []rune(p.results[0].Chunk.Text)
	fits := func(n int) bool {
		p.results[0].Chunk.Text = string(full[:n])
		return a.measure(p.render(), question) <= a.maxTokens
	}
	lo, hi := 0, len(full)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	p.results[0].Chunk.Text = string(full[:lo])
}
