// Package action dispatches planned tool invocations against a
// registry of named tools. Every failure mode (unknown tool, bad
// arguments, tool error, even a panicking tool) is captured as a
// ToolResult value; execution never propagates an error up into the
// agent loop.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/core"
)

// Tool is one invocable capability. Args arrive as untyped strings;
// each tool owns its own coercion and validation.
type Tool interface {
	Name() string
	Description() string

	// ArgSpec is a one-line argument description for the decision
	// prompt, e.g. "query=string, max_results=int".
	ArgSpec() string

	Execute(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds tools keyed by exact name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return fmt.Errorf("action: tool %q already registered", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return nil
}

// Get looks a tool up by exact name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the catalog for the decision prompt, sorted by name.
func (r *Registry) Specs() []core.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]core.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, core.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Args:        t.ArgSpec(),
		})
	}
	sort.Slice(specs, func(a, b int) bool { return specs[a].Name < specs[b].Name })
	return specs
}

// Executor runs tool invocations.
type Executor struct {
	registry *Registry
	log      zerolog.Logger
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *Registry, log zerolog.Logger) *Executor {
	return &Executor{
		registry: registry,
		log:      log.With().Str("component", "action").Logger(),
	}
}

// Execute dispatches the invocation and normalizes the outcome. The
// returned result carries the full tool output; truncation for
// display is the caller's concern.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]string) core.ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		e.log.Warn().Str("tool", name).Msg("unknown tool requested")
		return core.ToolResult{Tool: name, OK: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	output, err := e.run(ctx, tool, args)
	if err != nil {
		e.log.Warn().Str("tool", name).Err(err).Msg("tool failed")
		return core.ToolResult{Tool: name, OK: false, Error: err.Error()}
	}

	e.log.Debug().Str("tool", name).Int("output_len", len(output)).Msg("tool succeeded")
	return core.ToolResult{Tool: name, Output: strings.TrimSpace(output), OK: true}
}

// run isolates the tool call so a panicking tool degrades to an
// error result instead of killing the session loop.
func (e *Executor) run(ctx context.Context, tool Tool, args map[string]string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	argSpec     string
	fn          func(ctx context.Context, args map[string]string) (string, error)
}

// NewFunc builds a function-backed tool.
func NewFunc(name, description, argSpec string, fn func(ctx context.Context, args map[string]string) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, argSpec: argSpec, fn: fn}
}

func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }
func (t *FuncTool) ArgSpec() string     { return t.argSpec }

func (t *FuncTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	return t.fn(ctx, args)
}
