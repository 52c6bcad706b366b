package assembler

import (
	"strings"
	"unicode"
)

// EstimateTokens approximates how many tokens a WordPiece-style tokenizer
// produces for text. It needs no vocabulary, so it is only good for budgets.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	// [CLS] and [SEP]
	count := 2
	for _, word := range strings.Fields(text) {
		count += estimateWordTokens(word)
	}
	return count
}

func estimateWordTokens(word string) int {
	runes := []rune(word)
	if len(runes) == 1 && unicode.IsPunct(runes[0]) {
		return 1
	}
	// each digit may become its own token
	if isNumber(word) {
		return len(runes)
	}
	if len(runes) <= 4 {
		return 1
	}
	// roughly one token per 4 characters
	return (len(runes) + 3) / 4
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
