// Package perception turns a raw user message into a structured
// intent/entities/tool-hint reading via a single LLM call. Parsing is
// tolerant: missing fields stay empty, and the extractor only fails
// when the reply has no recognizable structure at all. The agent loop
// treats even that as "no hint available", never as a fatal error.
package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/llm"
)

// ErrUnparsable reports a reply with no recognizable field at all.
var ErrUnparsable = errors.New("perception: reply has no recognizable structure")

const promptFormat = `Read the user request below and extract three fields.
Reply with exactly three lines, nothing else:

intent: <a short snake_case label for what the user wants>
entities: <comma-separated names, topics, or values mentioned; may be empty>
tool_hint: <the name of a tool likely to help, or none>

User request: %s`

// Extractor performs perception extraction.
type Extractor struct {
	llm llm.Client
	log zerolog.Logger
}

// New creates an extractor.
func New(client llm.Client, log zerolog.Logger) *Extractor {
	return &Extractor{
		llm: client,
		log: log.With().Str("component", "perception").Logger(),
	}
}

// Extract issues one completion call and parses the reply.
func (e *Extractor) Extract(ctx context.Context, raw string) (core.PerceptionResult, error) {
	reply, err := e.llm.Complete(ctx, fmt.Sprintf(promptFormat, raw))
	if err != nil {
		return core.PerceptionResult{}, fmt.Errorf("perception: completion: %w", err)
	}

	result, ok := parse(reply)
	if !ok {
		return core.PerceptionResult{}, ErrUnparsable
	}
	e.log.Debug().Str("intent", result.Intent).Str("tool_hint", result.ToolHint).Msg("extracted perception")
	return result, nil
}

// parse scans the reply line by line for the three known fields.
// Field order is free and unknown lines are ignored. ok is false only
// when no field was recognized.
func parse(reply string) (core.PerceptionResult, bool) {
	var result core.PerceptionResult
	recognized := false

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "intent":
			result.Intent = value
			recognized = true
		case "entities":
			result.Entities = splitEntities(value)
			recognized = true
		case "tool_hint", "tool hint":
			if !strings.EqualFold(value, "none") {
				result.ToolHint = value
			}
			recognized = true
		}
	}
	return result, recognized
}

func splitEntities(value string) []string {
	if value == "" {
		return nil
	}
	var entities []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			entities = append(entities, part)
		}
	}
	return entities
}
