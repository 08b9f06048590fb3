package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers empty input, count mismatches and malformed vectors
	ErrInvalidInput = errors.New("invalid input")
	// ErrDegenerateEmbedding is a zero-norm vector met during similarity computation
	ErrDegenerateEmbedding = errors.New("degenerate embedding")
)

// InputError reports which sentence made the input unusable.
// Index is -1 when the problem is not tied to a single sentence.
type InputError struct {
	Kind   error
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v at sentence %d: %s", e.Kind, e.Index, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Kind
}

func invalidInput(index int, reason string) error {
	return &InputError{Kind: ErrInvalidInput, Index: index, Reason: reason}
}

func degenerate(index int) error {
	return &InputError{Kind: ErrDegenerateEmbedding, Index: index, Reason: "embedding has zero norm"}
}
