// Package decision composes the planning prompt and parses the
// model's reply into exactly one of a tool invocation or a final
// answer. The reply grammar is strict; everything downstream of this
// boundary operates on structured data, never on raw model text.
package decision

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/llm"
	"github.com/seekerworks/searchagent/memory"
)

const (
	functionCallMarker = "FUNCTION_CALL:"
	finalAnswerMarker  = "FINAL_ANSWER:"
)

// MalformedError reports a reply that fits neither grammar form, or a
// FUNCTION_CALL naming an unknown tool. The orchestrator retries once
// on this error before falling back to an apologetic answer.
type MalformedError struct {
	Reply  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("decision: malformed reply: %s", e.Reason)
}

// Input carries everything the planning prompt embeds.
type Input struct {
	Query      string
	Perception core.PerceptionResult
	Memories   []memory.SearchResult
	History    []core.ConversationTurn
	Catalog    []core.ToolSpec

	// Notice is appended on retry after a malformed reply.
	Notice string
}

var promptTemplate = template.Must(template.New("decision").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`You are a retrieval agent working step by step. Decide the single next step.

User query: {{.Query}}
Intent: {{.Perception.Intent}}
{{- if .Perception.Entities}}
Entities: {{join .Perception.Entities ", "}}
{{- end}}
{{- if .Perception.ToolHint}}
Tool hint: {{.Perception.ToolHint}}
{{- end}}

{{- if .Memories}}

Relevant memories:
{{- range .Memories}}
- (score {{printf "%.3f" .Score}}) {{.Item.Text}}
{{- end}}
{{- end}}

{{- if .History}}

Recent conversation:
{{- range .History}}
[{{.Role}}] {{.Content}}
{{- end}}
{{- end}}

Available tools:
{{- range .Catalog}}
- {{.Name}}: {{.Description}}{{if .Args}} (args: {{.Args}}){{end}}
{{- end}}

Reply with exactly one line in one of these two forms:
FUNCTION_CALL: tool_name|arg1=value1|arg2=value2
FINAL_ANSWER: the complete answer to the user
{{- if .Notice}}

Your previous reply was rejected: {{.Notice}}. Follow the required format exactly.
{{- end}}
`))

// Engine is the decision engine.
type Engine struct {
	llm llm.Client
	log zerolog.Logger
}

// New creates a decision engine.
func New(client llm.Client, log zerolog.Logger) *Engine {
	return &Engine{
		llm: client,
		log: log.With().Str("component", "decision").Logger(),
	}
}

// Plan renders the prompt, issues one completion, and parses the
// reply. The prompt is deterministic: the same input always renders
// the same text.
func (e *Engine) Plan(ctx context.Context, in Input) (core.Plan, error) {
	var sb strings.Builder
	if err := promptTemplate.Execute(&sb, in); err != nil {
		return core.Plan{}, fmt.Errorf("decision: render prompt: %w", err)
	}

	reply, err := e.llm.Complete(ctx, sb.String())
	if err != nil {
		return core.Plan{}, fmt.Errorf("decision: completion: %w", err)
	}

	plan, err := parseReply(reply, in.Catalog)
	if err != nil {
		return core.Plan{}, err
	}
	if plan.Kind == core.PlanFunctionCall {
		e.log.Debug().Str("tool", plan.Call.Tool).Msg("planned tool call")
	} else {
		e.log.Debug().Msg("planned final answer")
	}
	return plan, nil
}

// parseReply applies the two-form grammar. Models sometimes wrap the
// answer in prose, so the first line carrying either marker wins.
func parseReply(reply string, catalog []core.ToolSpec) (core.Plan, error) {
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)

		if rest, ok := strings.CutPrefix(line, finalAnswerMarker); ok {
			// Final answers may span the rest of the reply.
			answer := strings.TrimSpace(rest)
			if tail := strings.Join(lines[i+1:], "\n"); strings.TrimSpace(tail) != "" {
				answer = strings.TrimSpace(answer + "\n" + tail)
			}
			if answer == "" {
				return core.Plan{}, &MalformedError{Reply: reply, Reason: "empty final answer"}
			}
			return core.NewFinalAnswerPlan(answer), nil
		}

		if rest, ok := strings.CutPrefix(line, functionCallMarker); ok {
			return parseFunctionCall(reply, rest, catalog)
		}
	}
	return core.Plan{}, &MalformedError{Reply: reply, Reason: "no FUNCTION_CALL or FINAL_ANSWER marker"}
}

func parseFunctionCall(reply, rest string, catalog []core.ToolSpec) (core.Plan, error) {
	parts := strings.Split(rest, "|")
	tool := strings.TrimSpace(parts[0])
	if tool == "" {
		return core.Plan{}, &MalformedError{Reply: reply, Reason: "missing tool name"}
	}
	if !knownTool(catalog, tool) {
		return core.Plan{}, &MalformedError{Reply: reply, Reason: fmt.Sprintf("unknown tool %q", tool)}
	}

	args := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found || strings.TrimSpace(key) == "" {
			return core.Plan{}, &MalformedError{Reply: reply, Reason: fmt.Sprintf("argument %q is not key=value", part)}
		}
		args[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return core.NewFunctionCallPlan(tool, args), nil
}

func knownTool(catalog []core.ToolSpec, name string) bool {
	for _, spec := range catalog {
		if spec.Name == name {
			return true
		}
	}
	return false
}
