package chat

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
)

// DefaultTokenBudget caps the estimated size of the history sent with each turn.
const DefaultTokenBudget = 4000

// TokenEstimator approximates how many model tokens a piece of text costs.
type TokenEstimator interface {
	Estimate(text string) int
}

// WordCountEstimator counts whitespace-delimited words.
type WordCountEstimator struct{}

// Estimate implements TokenEstimator.
func (WordCountEstimator) Estimate(text string) int {
	return len(strings.Fields(text))
}

// TiktokenEstimator counts real BPE tokens.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, e.g. "cl100k_base".
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate implements TokenEstimator.
func (e *TiktokenEstimator) Estimate(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// NewEstimator maps a configuration name onto an estimator. Unknown or
// unloadable tokenizers fall back to word counting.
func NewEstimator(name string) (TokenEstimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "words":
		return WordCountEstimator{}, nil
	case "tiktoken":
		est, err := NewTiktokenEstimator("")
		if err != nil {
			return WordCountEstimator{}, err
		}
		return est, nil
	default:
		return WordCountEstimator{}, fmt.Errorf("unknown token estimator %q", name)
	}
}

// TrimHistory returns the longest suffix of messages whose summed estimate
// stays within budget. Order is preserved and the oldest turns go first.
// The returned slice is a copy.
func TrimHistory(messages []chat.Message, budget int, estimator TokenEstimator) []chat.Message {
	if estimator == nil {
		estimator = WordCountEstimator{}
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := estimator.Estimate(messages[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	return chat.CloneAll(messages[start:])
}
