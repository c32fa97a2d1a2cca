package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Microwave-WYB/openai-helper/pkg/logger"
)

// Counter maps a text string to a non-negative token cost.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to the Counter interface.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// DefaultEncoding is the BPE vocabulary used by gpt-3.5/gpt-4 class models.
const DefaultEncoding = "cl100k_base"

// Tiktoken counts tokens with an exact BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding. Loading may fetch the vocabulary on
// first use, so it can fail offline; see Default for a fallback path.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic estimates tokens at 2.5 characters per token. Conservative enough
// for CJK-heavy text while staying cheap.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	return utf8.RuneCountInString(text) * 2 / 5
}

// Default returns a tiktoken counter, falling back to the heuristic when the
// vocabulary cannot be loaded.
func Default() Counter {
	t, err := NewTiktoken(DefaultEncoding)
	if err != nil {
		logger.WarnCF("tokenizer", "Falling back to heuristic token counting",
			map[string]any{"error": err.Error()})
		return Heuristic{}
	}
	return t
}
