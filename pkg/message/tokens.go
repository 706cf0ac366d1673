package message

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens against a real BPE encoding when one is
// resolvable for the configured model, falling back to the documented
// ~4-characters/token approximation otherwise (§4.3 "Token counting").
type TokenCounter struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = map[string]*tiktoken.Tiktoken{}
	cacheMu       sync.RWMutex
)

// NewTokenCounter resolves (and caches) a tiktoken encoding for model,
// falling back to cl100k_base when the model is unrecognized.
func NewTokenCounter(model string) (*TokenCounter, error) {
	if model == "" {
		model = "gpt-4o"
	}

	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	encodingCache[model] = enc
	cacheMu.Unlock()

	return &TokenCounter{encoding: enc, model: model}, nil
}

// fallbackCounter returns a TokenCounter with no encoding, forcing the
// len(text)/4 approximation everywhere it is used; used only if a real
// encoding could not be resolved even for cl100k_base (e.g. a corrupt
// embedded BPE rank file), which should never happen in practice.
func fallbackCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the token count of text.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessage includes the per-message role/format overhead used by
// OpenAI-style chat token accounting.
func (tc *TokenCounter) CountMessage(m *Message) int {
	const perMessageOverhead = 3
	return perMessageOverhead + tc.Count(string(m.Role)) + tc.Count(m.Content)
}

// CountMessages sums CountMessage over a list plus the reply-priming
// overhead of 3 tokens.
func (tc *TokenCounter) CountMessages(messages []*Message) int {
	total := 3
	for _, m := range messages {
		total += tc.CountMessage(m)
	}
	return total
}
