package runner

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter counts and truncates text by model tokens, used to bound the
// size of observations fed back into the context window.
type TokenCounter struct {
	once     sync.Once
	model    string
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the given model name. Unknown models
// fall back to the cl100k_base encoding.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) enc() *tiktoken.Tiktoken {
	c.once.Do(func() {
		encoding, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			slog.Debug("no tokenizer for model, using fallback encoding",
				"model", c.model, "encoding", fallbackEncoding)
			encoding, err = tiktoken.GetEncoding(fallbackEncoding)
			if err != nil {
				return
			}
		}
		c.encoding = encoding
	})
	return c.encoding
}

// Count returns the token count of text. Falls back to a character estimate
// if no encoding could be loaded.
func (c *TokenCounter) Count(text string) int {
	encoding := c.enc()
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// Truncate bounds text to maxTokens, reporting whether it was cut.
func (c *TokenCounter) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	encoding := c.enc()
	if encoding == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text, false
		}
		return text[:limit], true
	}

	ids := encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text, false
	}
	return encoding.Decode(ids[:maxTokens]), true
}
