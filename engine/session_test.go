package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seekerworks/searchagent/core"
)

func TestWindowBoundsHistory(t *testing.T) {
	s := NewSession()
	for i := 0; i < 20; i++ {
		s.Append(core.RoleUser, "msg")
	}

	assert.Len(t, s.Window(12), 12)
	assert.Len(t, s.Window(50), 20)
	assert.Len(t, s.Window(0), 20)
	assert.Equal(t, 20, s.Len())
}

func TestRetrievalQueryTopicTracking(t *testing.T) {
	s := NewSession()

	// First message sets the topic.
	q := s.retrievalQuery("tell me about vector databases and their tradeoffs")
	assert.Equal(t, "tell me about vector databases and their tradeoffs", q)

	// Short follow-ups search within the topic.
	q = s.retrievalQuery("what about speed")
	assert.Equal(t, "what about speed related to tell me about vector databases and their tradeoffs", q)

	// "summarize" counts as a follow-up regardless of length.
	q = s.retrievalQuery("summarize everything you have found about this subject so far")
	assert.Contains(t, q, "related to")

	// A substantive new question replaces the topic.
	q = s.retrievalQuery("explain how websocket framing works in detail")
	assert.Equal(t, "explain how websocket framing works in detail", q)

	q = s.retrievalQuery("go on")
	assert.Equal(t, "go on related to explain how websocket framing works in detail", q)
}

func TestIsStopIntent(t *testing.T) {
	assert.True(t, isStopIntent("stop_search"))
	assert.True(t, isStopIntent("finish_up"))
	assert.True(t, isStopIntent("Stop"))
	assert.False(t, isStopIntent("information_request"))
	assert.False(t, isStopIntent(""))
}
