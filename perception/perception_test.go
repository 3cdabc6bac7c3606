package perception_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/llm"
	"github.com/seekerworks/searchagent/perception"
)

func TestExtractWellFormedReply(t *testing.T) {
	client := llm.NewScripted(llm.Text(
		"intent: information_request\nentities: FAISS, vector search\ntool_hint: search_documents"))
	ext := perception.New(client, zerolog.Nop())

	result, err := ext.Extract(context.Background(), "What is FAISS?")
	require.NoError(t, err)
	assert.Equal(t, "information_request", result.Intent)
	assert.Equal(t, []string{"FAISS", "vector search"}, result.Entities)
	assert.Equal(t, "search_documents", result.ToolHint)
}

func TestExtractToolHintNone(t *testing.T) {
	client := llm.NewScripted(llm.Text(
		"intent: greeting\nentities:\ntool_hint: none"))
	ext := perception.New(client, zerolog.Nop())

	result, err := ext.Extract(context.Background(), "hi there")
	require.NoError(t, err)
	assert.Equal(t, "greeting", result.Intent)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.ToolHint)
}

func TestExtractPartialReply(t *testing.T) {
	// Missing fields default to empty; one recognized field is enough.
	client := llm.NewScripted(llm.Text("Intent: calculation"))
	ext := perception.New(client, zerolog.Nop())

	result, err := ext.Extract(context.Background(), "what is 2+2")
	require.NoError(t, err)
	assert.Equal(t, "calculation", result.Intent)
	assert.Empty(t, result.Entities)
}

func TestExtractIgnoresSurroundingProse(t *testing.T) {
	client := llm.NewScripted(llm.Text(
		"Sure! Here is the analysis:\nintent: lookup\nentities: Go\ntool_hint: web_search\nHope that helps."))
	ext := perception.New(client, zerolog.Nop())

	result, err := ext.Extract(context.Background(), "tell me about Go")
	require.NoError(t, err)
	assert.Equal(t, "lookup", result.Intent)
	assert.Equal(t, "web_search", result.ToolHint)
}

func TestExtractUnparsableReply(t *testing.T) {
	client := llm.NewScripted(llm.Text("I cannot comply with that"))
	ext := perception.New(client, zerolog.Nop())

	_, err := ext.Extract(context.Background(), "anything")
	require.ErrorIs(t, err, perception.ErrUnparsable)
}

func TestExtractCompletionFailure(t *testing.T) {
	client := llm.NewScripted(llm.Fail(errors.New("model offline")))
	ext := perception.New(client, zerolog.Nop())

	_, err := ext.Extract(context.Background(), "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, perception.ErrUnparsable)
}
