package chunker

import (
	"fmt"
	"strings"
)

const (
	// DefaultThreshold is the cosine similarity needed to keep growing a chunk
	DefaultThreshold = 0.80

	// DefaultMaxSentences caps the number of sentences per chunk
	DefaultMaxSentences = 8

	// DefaultMinSentences is the size below which an interior chunk is merged back
	DefaultMinSentences = 2
)

// Config holds the chunking parameters
type Config struct {
	Threshold    float64 // Similarity threshold in [0, 1]
	MaxSentences int     // Maximum sentences per chunk (>= 1)
	MinSentences int     // Minimum sentences per chunk (>= 1, <= MaxSentences)
}

// DefaultConfig returns the default chunking parameters
func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		MaxSentences: DefaultMaxSentences,
		MinSentences: DefaultMinSentences,
	}
}

// Validate checks the configuration bounds
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1], got %v", c.Threshold)
	}
	if c.MaxSentences < 1 {
		return fmt.Errorf("max sentences must be >= 1, got %d", c.MaxSentences)
	}
	if c.MinSentences < 1 {
		return fmt.Errorf("min sentences must be >= 1, got %d", c.MinSentences)
	}
	if c.MinSentences > c.MaxSentences {
		return fmt.Errorf("min sentences (%d) must not exceed max sentences (%d)", c.MinSentences, c.MaxSentences)
	}
	return nil
}

// Group is a finished chunk: the half-open sentence range [Start, End) of the input
type Group struct {
	Start     int
	End       int
	Sentences []string
}

// Len returns the number of sentences in the group
func (g Group) Len() int {
	return g.End - g.Start
}

// Text joins the group's sentences with a single space
func (g Group) Text() string {
	return strings.Join(g.Sentences, " ")
}

// Chunker groups consecutive sentences by the similarity of their embeddings.
// It holds no state between calls and is safe for concurrent use.
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given configuration
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split partitions sentences into groups. embeddings[i] must be the embedding of
// sentences[i]. Every sentence ends up in exactly one group, in input order.
func (c *Chunker) Split(sentences []string, embeddings [][]float32) ([]Group, error) {
	if len(sentences) == 0 {
		return nil, invalidInput(-1, "no sentences")
	}
	if len(sentences) != len(embeddings) {
		idx := min(len(sentences), len(embeddings))
		return nil, invalidInput(idx, fmt.Sprintf("got %d sentences and %d embeddings", len(sentences), len(embeddings)))
	}
	if err := checkVectors(embeddings); err != nil {
		return nil, err
	}

	// finished stays mutable until the pass ends: merge-back appends to its tail
	finished := make([]Group, 0, len(sentences)/c.cfg.MinSentences+1)
	current := Group{Start: 0, End: 1, Sentences: []string{sentences[0]}}
	last := 0

	for i := 1; i < len(sentences); i++ {
		sim, err := similarityAt(embeddings, last, i)
		if err != nil {
			return nil, err
		}

		if sim >= c.cfg.Threshold && current.Len() < c.cfg.MaxSentences {
			current.Sentences = append(current.Sentences, sentences[i])
			current.End = i + 1
		} else {
			finished = closeGroup(finished, current, c.cfg.MinSentences)
			current = Group{Start: i, End: i + 1, Sentences: []string{sentences[i]}}
		}
		last = i
	}

	// The trailing group is emitted as-is, even below MinSentences
	finished = append(finished, current)

	return finished, nil
}

// Chunk is Split returning only the chunk texts
func (c *Chunker) Chunk(sentences []string, embeddings [][]float32) ([]string, error) {
	groups, err := c.Split(sentences, embeddings)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(groups))
	for i, g := range groups {
		texts[i] = g.Text()
	}
	return texts, nil
}

// closeGroup emits current, or merges it into the previous group when it is too
// small to stand alone. A small first group has nothing to merge into and is kept.
func closeGroup(finished []Group, current Group, minSentences int) []Group {
	if current.Len() >= minSentences || len(finished) == 0 {
		return append(finished, current)
	}

	prev := &finished[len(finished)-1]
	prev.Sentences = append(prev.Sentences, current.Sentences...)
	prev.End = current.End
	return finished
}

// similarityAt computes the cosine similarity between embeddings a and b and
// reports a zero-norm vector by its sentence index
func similarityAt(embeddings [][]float32, a, b int) (float64, error) {
	normA := Norm(embeddings[a])
	if normA == 0 {
		return 0, degenerate(a)
	}
	normB := Norm(embeddings[b])
	if normB == 0 {
		return 0, degenerate(b)
	}
	return Dot(embeddings[a], embeddings[b]) / (normA * normB), nil
}
