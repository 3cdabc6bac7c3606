package llm

import "context"

// Static always returns the same reply. Useful for running the daemon
// without a provider, e.g. for transport smoke tests.
type Static struct {
	Reply string
}

// Complete returns the fixed reply.
func (s Static) Complete(_ context.Context, _ string) (string, error) {
	return s.Reply, nil
}
