// Package token estimates token counts and allocates context budgets
// across the data categories that feed a generation call.
package token

import (
	"fmt"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator converts text into an approximate token count.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator counts tokens without a tokenizer model: CJK
// characters average about 1.5 characters per token, everything else
// about 4. It overestimates short Latin text slightly, which is the
// safe direction for budgeting.
type HeuristicEstimator struct{}

// Estimate returns the approximate token count of text.
func (HeuristicEstimator) Estimate(text string) int {
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)/1.5 + float64(other)/4.0)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// TiktokenEstimator counts tokens with a real BPE encoding. It costs
// more per call than the heuristic but is exact for OpenAI-family
// models.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, e.g. "cl100k_base".
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate returns the exact token count of text under the encoding.
func (e *TiktokenEstimator) Estimate(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}
