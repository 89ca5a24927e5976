package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token cost of a text for history trimming.
type TokenCounter interface {
	Count(text string) int
}

// BPECounter counts tokens with the cl100k_base encoding. The encoding data
// is loaded lazily; if it cannot be loaded (offline host) the counter falls
// back to a bytes/4 approximation, which overestimates Portuguese slightly
// and therefore trims conservatively.
type BPECounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewBPECounter() *BPECounter {
	return &BPECounter{}
}

func (c *BPECounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return approxTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func approxTokens(text string) int {
	return len(text)/4 + 1
}
