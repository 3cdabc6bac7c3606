package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seekerworks/searchagent/core"
)

// Session holds the per-connection conversation state. One session
// serves one client; its fields are only touched by that session's
// turn loop, so no locking is needed.
type Session struct {
	ID      string
	history []core.ConversationTurn

	// topic is the subject of the conversation, used to anchor
	// retrieval for short follow-up messages.
	topic string
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{ID: uuid.New().String()}
}

// Append records a turn in the session history.
func (s *Session) Append(role core.Role, content string) {
	s.history = append(s.history, core.ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Window returns the last n turns. The full history stays on the
// session; older context is reachable only through memory retrieval.
func (s *Session) Window(n int) []core.ConversationTurn {
	if n <= 0 || len(s.history) <= n {
		return s.history
	}
	return s.history[len(s.history)-n:]
}

// Len returns the total number of recorded turns.
func (s *Session) Len() int { return len(s.history) }

// followUpWordLimit is the length under which a message is treated as
// a continuation of the current topic rather than a new one.
const followUpWordLimit = 5

// retrievalQuery resolves the memory query for an inbound message and
// updates the session topic. The first substantive message of a
// session becomes the topic; short follow-ups search in the context of
// that topic; later substantive messages replace it.
func (s *Session) retrievalQuery(input string) string {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)

	followUp := len(strings.Fields(trimmed)) < followUpWordLimit ||
		strings.Contains(lower, "summarize") ||
		strings.Contains(lower, "continue")

	if s.topic == "" {
		s.topic = trimmed
		return trimmed
	}
	if followUp {
		return trimmed + " related to " + s.topic
	}
	s.topic = trimmed
	return trimmed
}

// isStopIntent reports whether the perceived intent asks to wrap up.
func isStopIntent(intent string) bool {
	lower := strings.ToLower(intent)
	return strings.Contains(lower, "stop") || strings.Contains(lower, "finish")
}
