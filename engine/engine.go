// Package engine drives the bounded agent loop: perceive the user's
// message, recall related memories, decide on a tool call or a final
// answer, act, and repeat until an answer is produced or the iteration
// cap forces one. Every stage transition is streamed to the client as
// events; every failure has a designed degradation path, so a turn
// always ends with a chat message.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/action"
	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/decision"
	"github.com/seekerworks/searchagent/memory"
	"github.com/seekerworks/searchagent/tools"
)

// Stage names used in layer and log events, in loop order.
const (
	stagePerception = "perception"
	stageMemory     = "memory"
	stageDecision   = "decision"
	stageAction     = "action"
)

// searchTools are the tools whose output is raw gathered material:
// their results feed resources events and count toward the search
// checkpoint.
var searchTools = map[string]bool{
	"web_search":       true,
	"search_documents": true,
	"fetch_url":        true,
}

// Perceiver extracts structured perception from raw user text.
type Perceiver interface {
	Extract(ctx context.Context, raw string) (core.PerceptionResult, error)
}

// Planner produces the next plan for a turn.
type Planner interface {
	Plan(ctx context.Context, in decision.Input) (core.Plan, error)
}

// Memory is the slice of the memory manager the loop uses.
type Memory interface {
	Add(ctx context.Context, text string, kind memory.Kind, tags []string) (memory.Item, error)
	Retrieve(ctx context.Context, query string, k int, filter memory.Filter) ([]memory.SearchResult, error)
	Save(ctx context.Context) error
}

// Runner executes planned tool calls.
type Runner interface {
	Execute(ctx context.Context, name string, args map[string]string) core.ToolResult
}

// Config bounds the loop. Zero values take the documented defaults.
type Config struct {
	// MaxIterations caps tool-call cycles per turn. Default 10.
	MaxIterations int

	// DecisionRetries is how many times a malformed decision reply is
	// re-prompted before the apologetic fallback. Default 1.
	DecisionRetries int

	// HistoryWindow is how many recent turns the decision prompt
	// sees. Default 12.
	HistoryWindow int

	// RetrieveK is the memory top-k per recall. Default 5.
	RetrieveK int

	// CheckpointEvery pauses the turn after this many search-class
	// tool calls to ask whether to continue. Default 5.
	CheckpointEvery int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.DecisionRetries <= 0 {
		c.DecisionRetries = 1
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 12
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = 5
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 5
	}
	return c
}

// Engine orchestrates turns. One Engine serves all sessions; all
// per-turn state lives on the Session or the stack.
type Engine struct {
	perceiver Perceiver
	mem       Memory
	planner   Planner
	runner    Runner
	registry  *action.Registry
	cfg       Config
	log       zerolog.Logger
}

// New wires an engine.
func New(perceiver Perceiver, mem Memory, planner Planner, runner Runner, registry *action.Registry, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		perceiver: perceiver,
		mem:       mem,
		planner:   planner,
		runner:    runner,
		registry:  registry,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// AnnounceTools sends the registered tool names to a newly connected
// client.
func (e *Engine) AnnounceTools(emit core.Emitter) {
	emit.Emit(core.NewToolsEvent(e.registry.Names()))
}

// ProcessTurn runs one full turn for an inbound user message. It
// always ends by emitting an assistant chat message; failures degrade
// into apologetic or summary answers rather than silence.
func (e *Engine) ProcessTurn(ctx context.Context, session *Session, input string, emit core.Emitter) {
	log := e.log.With().Str("session", session.ID).Logger()
	session.Append(core.RoleUser, input)

	query := session.retrievalQuery(input)

	// PERCEIVE. Failure is non-fatal: the turn continues with empty
	// perception.
	emit.Emit(core.NewLayerEvent(stagePerception, core.LayerActive, nil))
	perception, err := e.perceiver.Extract(ctx, input)
	if err != nil {
		log.Warn().Err(err).Msg("perception failed, continuing without")
		emit.Emit(core.NewLogEvent(stagePerception, "perception unavailable: "+err.Error()))
		perception = core.PerceptionResult{}
	}
	emit.Emit(core.NewLayerEvent(stagePerception, core.LayerIdle, perception))

	if isStopIntent(perception.Intent) {
		query = "summarize what has been found so far and answer: " + input
	}

	var results []core.ToolResult
	searches := 0

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			log.Info().Msg("turn canceled")
			return
		}

		// RECALL. An embedding failure degrades to an empty recall.
		emit.Emit(core.NewLayerEvent(stageMemory, core.LayerActive, nil))
		memories, err := e.mem.Retrieve(ctx, query, e.cfg.RetrieveK, memory.Filter{})
		if err != nil {
			log.Warn().Err(err).Msg("memory retrieval failed")
			emit.Emit(core.NewLogEvent(stageMemory, "retrieval unavailable: "+err.Error()))
			memories = nil
		}
		emit.Emit(core.NewLayerEvent(stageMemory, core.LayerIdle, len(memories)))

		// DECIDE, with the bounded malformed-reply retry.
		plan, ok := e.decide(ctx, emit, log, decision.Input{
			Query:      input,
			Perception: perception,
			Memories:   memories,
			History:    session.Window(e.cfg.HistoryWindow),
			Catalog:    e.registry.Specs(),
		})
		if !ok {
			plan = core.NewFinalAnswerPlan(
				"I'm sorry, I wasn't able to work out a next step for this request. Could you rephrase it?")
		}

		if plan.Kind == core.PlanFinalAnswer {
			// The action layer still reports a transition so the
			// client sees every stage each turn.
			emit.Emit(core.NewLayerEvent(stageAction, core.LayerActive, nil))
			emit.Emit(core.NewLayerEvent(stageAction, core.LayerIdle, nil))
			e.respond(ctx, session, emit, log, input, plan.Answer)
			return
		}

		// ACT.
		emit.Emit(core.NewLayerEvent(stageAction, core.LayerActive, plan.Call.Tool))
		result := e.runner.Execute(ctx, plan.Call.Tool, plan.Call.Args)
		emit.Emit(core.NewLayerEvent(stageAction, core.LayerIdle, result.Tool))
		results = append(results, result)

		if result.OK && strings.HasPrefix(result.Output, tools.OpenURLPrefix) {
			url := strings.TrimSpace(strings.TrimPrefix(result.Output, tools.OpenURLPrefix))
			emit.Emit(core.NewOpenURLEvent(url))
		}
		if result.OK && searchTools[result.Tool] {
			emit.Emit(core.NewResourcesEvent(result.Tool, result.Output))
			searches++
		}

		e.remember(ctx, emit, log, formatResultForMemory(result), memory.KindToolResult,
			[]string{result.Tool, "session:" + session.ID})
		session.Append(core.RoleTool, formatResultForHistory(result))

		if !result.OK {
			emit.Emit(core.NewLogEvent(stageAction,
				fmt.Sprintf("tool %s failed: %s", result.Tool, result.Error)))
		}

		if searches > 0 && searches%e.cfg.CheckpointEvery == 0 {
			e.respond(ctx, session, emit, log, input, fmt.Sprintf(
				"I've run %d searches so far. Should I keep going, or is this enough to work with?", searches))
			return
		}

		if iteration+1 >= e.cfg.MaxIterations {
			log.Info().Int("iterations", iteration+1).Msg("iteration cap reached, forcing summary")
			e.respond(ctx, session, emit, log, input, summarizeResults(input, results))
			return
		}

		// The next recall searches in the light of what the tool
		// just produced.
		query = input + "\n" + result.Output + "\nwhat should be done next?"
	}
}

// decide runs the planner with the configured retry budget for
// malformed replies. ok is false when every attempt failed.
func (e *Engine) decide(ctx context.Context, emit core.Emitter, log zerolog.Logger, in decision.Input) (core.Plan, bool) {
	attempts := e.cfg.DecisionRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		emit.Emit(core.NewLayerEvent(stageDecision, core.LayerActive, nil))
		plan, err := e.planner.Plan(ctx, in)
		emit.Emit(core.NewLayerEvent(stageDecision, core.LayerIdle, nil))
		if err == nil {
			return plan, true
		}

		log.Warn().Err(err).Int("attempt", attempt+1).Msg("decision failed")
		emit.Emit(core.NewLogEvent(stageDecision, "decision failed: "+err.Error()))

		var malformed *decision.MalformedError
		if errors.As(err, &malformed) {
			in.Notice = malformed.Reason
		} else {
			in.Notice = "your previous reply could not be processed"
		}
	}
	return core.Plan{}, false
}

// respond stores the turn's query and final answer, records the
// answer in history, emits it, and persists the memory store. The
// query is stored here rather than at turn start so the turn's own
// recalls never surface it.
func (e *Engine) respond(ctx context.Context, session *Session, emit core.Emitter, log zerolog.Logger, input, answer string) {
	e.remember(ctx, emit, log, input, memory.KindUserQuery, []string{"session:" + session.ID})
	e.remember(ctx, emit, log, answer, memory.KindFinalAnswer, []string{"session:" + session.ID})
	session.Append(core.RoleAssistant, answer)
	emit.Emit(core.NewChatEvent(core.RoleAssistant, answer))

	if err := e.mem.Save(ctx); err != nil {
		log.Error().Err(err).Msg("saving memory store failed")
		emit.Emit(core.NewLogEvent(stageMemory, "saving memory failed: "+err.Error()))
	}
}

// remember writes to the memory store; failures are logged and
// surfaced but never end the turn.
func (e *Engine) remember(ctx context.Context, emit core.Emitter, log zerolog.Logger, text string, kind memory.Kind, tags []string) {
	if _, err := e.mem.Add(ctx, text, kind, tags); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("storing memory failed")
		emit.Emit(core.NewLogEvent(stageMemory, "storing memory failed: "+err.Error()))
	}
}

func formatResultForMemory(result core.ToolResult) string {
	if result.OK {
		return fmt.Sprintf("tool %s returned: %s", result.Tool, result.Output)
	}
	return fmt.Sprintf("tool %s failed: %s", result.Tool, result.Error)
}

func formatResultForHistory(result core.ToolResult) string {
	const limit = 500
	text := formatResultForMemory(result)
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	return text
}

// summarizeResults builds the forced answer when the iteration cap is
// reached without a final answer from the model.
func summarizeResults(input string, results []core.ToolResult) string {
	var sb strings.Builder
	sb.WriteString("I reached my step limit before finishing \"")
	sb.WriteString(input)
	sb.WriteString("\". Here is what I found along the way:\n")

	found := false
	for _, r := range results {
		if !r.OK {
			continue
		}
		found = true
		output := r.Output
		if len(output) > 300 {
			output = output[:300] + "..."
		}
		fmt.Fprintf(&sb, "- %s: %s\n", r.Tool, output)
	}
	if !found {
		sb.WriteString("- none of the tool calls produced usable results\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
