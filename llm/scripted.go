package llm

import (
	"context"
	"fmt"
	"sync"
)

// Reply is one scripted response: either text or an error.
type Reply struct {
	Text string
	Err  error
}

// Text builds a successful scripted reply.
func Text(s string) Reply { return Reply{Text: s} }

// Fail builds a failing scripted reply.
func Fail(err error) Reply { return Reply{Err: err} }

// Scripted is a Client that plays back a fixed sequence of replies.
// It records every prompt it receives so tests can assert on prompt
// construction.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	prompts []string
}

// NewScripted creates a scripted client with the given replies.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Complete returns the next scripted reply, or an error when the
// script is exhausted.
func (s *Scripted) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if s.next >= len(s.replies) {
		return "", fmt.Errorf("scripted llm: no reply for call %d", s.next+1)
	}
	r := s.replies[s.next]
	s.next++
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Prompts returns a copy of the prompts seen so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Calls returns how many completions were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
