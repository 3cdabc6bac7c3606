// Package llm abstracts the language model behind a single completion
// call. The agent never depends on a concrete provider; it sends a
// prompt and gets text back.
package llm

import "context"

// Client issues one completion call. Implementations own their model
// selection, authentication, and timeouts.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
