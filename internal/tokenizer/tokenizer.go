package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used by current OpenAI models
const DefaultEncoding = "cl100k_base"

// Counter reports how many model tokens a text takes
type Counter interface {
	Count(text string) int
}

// Heuristic estimates one token per four characters
type Heuristic struct{}

// Count returns the estimated token count, at least 1 for non-empty text
func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(1, n/4)
}

// Tiktoken counts tokens with a BPE encoding. The encoding is loaded on first use,
// which may download its rank file; until it loads, or if it cannot, counts fall
// back to the heuristic.
type Tiktoken struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	loadErr error
}

// NewTiktoken creates a counter for the given encoding. An empty name selects DefaultEncoding.
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding}
}

// Count returns the exact token count, or the heuristic estimate when the encoding is unavailable
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(t.load)
	if t.enc == nil {
		return Heuristic{}.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Err reports why the encoding failed to load, if it did
func (t *Tiktoken) Err() error {
	return t.loadErr
}

func (t *Tiktoken) load() {
	enc, err := tiktoken.GetEncoding(t.encoding)
	if err != nil {
		t.loadErr = err
		return
	}
	t.enc = enc
}

// New returns the counter for name: "tiktoken" or "heuristic"
func New(name string) Counter {
	if name == "tiktoken" {
		return NewTiktoken(DefaultEncoding)
	}
	return Heuristic{}
}
