// Package summarizer condenses documents and conversations into a few
// extractive sentences.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// DefaultSentences is used when maxSentences is not positive.
const DefaultSentences = 5

// FrequencySummarizer scores sentences by how often their content words
// occur across the whole text. Stopwords neither score nor count towards a
// sentence's length.
type FrequencySummarizer struct {
	words     *regexp.Regexp
	sentences *regexp.Regexp
	stopwords map[string]struct{}
}

// NewFrequencySummarizer creates a FrequencySummarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		words:     regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentences: regexp.MustCompile(`[^.!?]+[.!?]+`),
		stopwords: defaultStopwords(),
	}
}

type sentence struct {
	text  string
	terms []string
}

// Summarize returns up to maxSentences of the best scoring sentences in
// their original order. Text without sentence punctuation is returned trimmed.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	sents := s.parse(s.sentences.FindAllString(text, -1))
	if len(sents) == 0 {
		return strings.TrimSpace(text), nil
	}
	return s.pick(sents, nil, maxSentences), nil
}

// SummarizeTurns condenses the given conversation turns. Sentences sharing
// content words with focus, normally the question about to be answered, are
// preferred so the summary keeps what that question builds on.
func (s *FrequencySummarizer) SummarizeTurns(turns []domain.Turn, focus string, maxSentences int) (string, error) {
	var sents []sentence
	for _, t := range turns {
		if q := strings.TrimRight(strings.TrimSpace(t.Question), ".!?"); q != "" {
			sents = append(sents, sentence{text: "User asked: " + q + ".", terms: s.terms(q)})
		}
		answer := strings.TrimSpace(t.Answer)
		found := s.sentences.FindAllString(answer, -1)
		if len(found) == 0 && answer != "" {
			found = []string{answer + "."}
		}
		sents = append(sents, s.parse(found)...)
	}
	if len(sents) == 0 {
		return "", nil
	}
	focusTerms := map[string]struct{}{}
	for _, t := range s.terms(focus) {
		focusTerms[t] = struct{}{}
	}
	return s.pick(sents, focusTerms, maxSentences), nil
}

func (s *FrequencySummarizer) parse(raw []string) []sentence {
	out := make([]sentence, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r)
		if text == "" {
			continue
		}
		out = append(out, sentence{text: text, terms: s.terms(text)})
	}
	return out
}

// pick scores sents and joins the best maxSentences in original order.
// Each distinct focus term a sentence contains adds one to its score.
func (s *FrequencySummarizer) pick(sents []sentence, focus map[string]struct{}, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}

	freq := map[string]float64{}
	top := 0.0
	for _, sent := range sents {
		for _, t := range sent.terms {
			freq[t]++
			top = max(top, freq[t])
		}
	}

	scores := make([]float64, len(sents))
	for i, sent := range sents {
		if len(sent.terms) == 0 {
			continue
		}
		sum := 0.0
		hits := map[string]struct{}{}
		for _, t := range sent.terms {
			sum += freq[t] / top
			if _, ok := focus[t]; ok {
				hits[t] = struct{}{}
			}
		}
		scores[i] = sum/math.Sqrt(float64(len(sent.terms))) + float64(len(hits))
	}

	order := make([]int, len(sents))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	chosen := order[:min(maxSentences, len(order))]
	sort.Ints(chosen)

	out := make([]string, len(chosen))
	for i, idx := range chosen {
		out[i] = sents[idx].text
	}
	return strings.Join(out, " ")
}

// terms returns the lower-cased content words of text.
func (s *FrequencySummarizer) terms(text string) []string {
	all := s.words.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, w := range all {
		if _, stop := s.stopwords[w]; !stop {
			out = append(out, w)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did", "i", "you", "me", "my", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
