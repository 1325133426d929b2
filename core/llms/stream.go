package llms

import "context"

// Stream is a lazy sequence of text deltas from a streaming completion.
// Iteration ends after the terminal done marker or on the first error;
// cancelling the context aborts the stream mid-generation.
type Stream interface {
	Chunks(context.Context) func(func(string, error) bool)
}
