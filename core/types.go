package core

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationTurn is one entry in a session's conversation history.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PerceptionResult is the structured reading of a raw user message.
// Produced once per turn by the perception extractor and consumed by
// the decision engine. Missing fields stay empty rather than failing.
type PerceptionResult struct {
	Intent   string   `json:"intent"`
	Entities []string `json:"entities"`
	ToolHint string   `json:"tool_hint,omitempty"`
}

// PlanKind tags the Plan union.
type PlanKind int

const (
	// PlanFunctionCall means the agent wants to invoke a tool.
	PlanFunctionCall PlanKind = iota

	// PlanFinalAnswer means the agent is done and has an answer.
	PlanFinalAnswer
)

// FunctionCall names a tool and its keyword arguments.
// Argument values are untyped strings; coercion happens at execution.
type FunctionCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// Plan is the decision engine's output: exactly one of a tool
// invocation or a final answer. Use the constructors; they keep the
// tag and payload consistent.
type Plan struct {
	Kind   PlanKind
	Call   *FunctionCall // set when Kind == PlanFunctionCall
	Answer string        // set when Kind == PlanFinalAnswer
}

// NewFunctionCallPlan builds a tool-invocation plan.
func NewFunctionCallPlan(tool string, args map[string]string) Plan {
	if args == nil {
		args = make(map[string]string)
	}
	return Plan{
		Kind: PlanFunctionCall,
		Call: &FunctionCall{Tool: tool, Args: args},
	}
}

// NewFinalAnswerPlan builds a final-answer plan.
func NewFinalAnswerPlan(text string) Plan {
	return Plan{
		Kind:   PlanFinalAnswer,
		Answer: text,
	}
}

// ToolResult is the normalized outcome of a tool invocation.
// Failures are values, not errors: a failed tool never aborts the loop.
type ToolResult struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// ToolSpec describes a registered tool for the decision prompt.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Args        string `json:"args,omitempty"`
}
