package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/action"
	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/decision"
	"github.com/seekerworks/searchagent/engine"
	"github.com/seekerworks/searchagent/llm"
	"github.com/seekerworks/searchagent/memory"
	"github.com/seekerworks/searchagent/memory/embedder/mock"
	"github.com/seekerworks/searchagent/memory/store/flat"
	"github.com/seekerworks/searchagent/perception"
	"github.com/seekerworks/searchagent/tools"
)

// recorder captures every emitted event in order.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Emit(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(kind core.EventKind) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, ev := range r.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) chats() []core.ChatPayload {
	var out []core.ChatPayload
	for _, ev := range r.ofType(core.EventChat) {
		out = append(out, ev.Data.(core.ChatPayload))
	}
	return out
}

func (r *recorder) layerSequence() []string {
	var out []string
	for _, ev := range r.ofType(core.EventLayer) {
		p := ev.Data.(core.LayerPayload)
		out = append(out, p.Name+":"+string(p.Status))
	}
	return out
}

type fixture struct {
	eng *engine.Engine
	mem *memory.Manager
	dec *llm.Scripted
}

// newFixture wires an engine over an in-memory flat store, the mock
// embedder, a stubbed document search tool, and scripted LLMs for
// perception and decision.
func newFixture(t *testing.T, cfg engine.Config, perceptionReplies, decisionReplies []llm.Reply) *fixture {
	t.Helper()
	log := zerolog.Nop()

	embedder := mock.New(16)
	store, err := flat.New(flat.Config{Dimensions: embedder.Dimensions(), Logger: log})
	require.NoError(t, err)
	mem := memory.NewManager(store, embedder, log)

	registry := action.NewRegistry()
	require.NoError(t, registry.Register(tools.MathTools()...))
	require.NoError(t, registry.Register(tools.OpenURLTool()))
	require.NoError(t, registry.Register(action.NewFunc("search_documents", "Search indexed documents", "query=string",
		func(_ context.Context, args map[string]string) (string, error) {
			return "FAISS is a library for efficient similarity search, developed at Meta.", nil
		})))

	perceptionLLM := llm.NewScripted(perceptionReplies...)
	decisionLLM := llm.NewScripted(decisionReplies...)

	eng := engine.New(
		perception.New(perceptionLLM, log),
		mem,
		decision.New(decisionLLM, log),
		action.NewExecutor(registry, log),
		registry,
		cfg,
		log,
	)
	return &fixture{eng: eng, mem: mem, dec: decisionLLM}
}

func perceive(intent string) llm.Reply {
	return llm.Text("intent: " + intent + "\nentities: FAISS\ntool_hint: search_documents")
}

func TestTurnWithToolCallThenAnswer(t *testing.T) {
	fix := newFixture(t, engine.Config{MaxIterations: 5},
		[]llm.Reply{perceive("information_request")},
		[]llm.Reply{
			llm.Text("FUNCTION_CALL: search_documents|query=FAISS"),
			llm.Text("FINAL_ANSWER: FAISS is a similarity search library."),
		})

	rec := &recorder{}
	session := engine.NewSession()
	fix.eng.ProcessTurn(context.Background(), session, "What is FAISS?", rec)

	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Equal(t, core.RoleAssistant, chats[0].Role)
	assert.Equal(t, "FAISS is a similarity search library.", chats[0].Content)

	// All four stages report active and idle.
	seq := rec.layerSequence()
	for _, want := range []string{
		"perception:active", "perception:idle",
		"memory:active", "memory:idle",
		"decision:active", "decision:idle",
		"action:active", "action:idle",
	} {
		assert.Contains(t, seq, want)
	}

	// Search output surfaces as a resources event.
	resources := rec.ofType(core.EventResources)
	require.Len(t, resources, 1)
	assert.Contains(t, resources[0].Data.(core.ResourcesPayload).Data, "similarity search")

	// Tool result, user query, and final answer were remembered.
	assert.Equal(t, 3, fix.mem.Count())

	// History: user, tool, assistant.
	assert.Equal(t, 3, session.Len())
}

func TestLayerEventsOrderedOnDirectAnswer(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("greeting")},
		[]llm.Reply{llm.Text("FINAL_ANSWER: Hello!")})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "hi", rec)

	assert.Equal(t, []string{
		"perception:active", "perception:idle",
		"memory:active", "memory:idle",
		"decision:active", "decision:idle",
		"action:active", "action:idle",
	}, rec.layerSequence())
}

func TestMalformedDecisionRetriedOnce(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("information_request")},
		[]llm.Reply{
			llm.Text("I think I should probably search for that."),
			llm.Text("FINAL_ANSWER: Recovered on retry."),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "What is FAISS?", rec)

	assert.Equal(t, 2, fix.dec.Calls())
	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "Recovered on retry.", chats[0].Content)

	// The retry prompt carries the rejection notice.
	prompts := fix.dec.Prompts()
	assert.NotContains(t, prompts[0], "previous reply was rejected")
	assert.Contains(t, prompts[1], "previous reply was rejected")
}

func TestTwoMalformedDecisionsYieldApology(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("information_request")},
		[]llm.Reply{
			llm.Text("no marker here"),
			llm.Text("still no marker"),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "What is FAISS?", rec)

	assert.Equal(t, 2, fix.dec.Calls())
	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Equal(t, core.RoleAssistant, chats[0].Role)
	assert.Contains(t, chats[0].Content, "rephrase")
}

func TestIterationCapForcesSummary(t *testing.T) {
	fix := newFixture(t, engine.Config{MaxIterations: 3},
		[]llm.Reply{perceive("calculation")},
		[]llm.Reply{
			llm.Text("FUNCTION_CALL: add|a=1|b=1"),
			llm.Text("FUNCTION_CALL: add|a=2|b=2"),
			llm.Text("FUNCTION_CALL: add|a=3|b=3"),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "keep adding numbers", rec)

	assert.Equal(t, 3, fix.dec.Calls())
	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Contains(t, chats[0].Content, "step limit")
	assert.Contains(t, chats[0].Content, "add")
}

func TestToolFailureContinuesLoop(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("calculation")},
		[]llm.Reply{
			llm.Text("FUNCTION_CALL: divide|a=1|b=0"),
			llm.Text("FINAL_ANSWER: Division by zero is undefined."),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "what is 1/0", rec)

	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "Division by zero is undefined.", chats[0].Content)

	// The failure surfaced as a log event, not a crash.
	var loggedFailure bool
	for _, ev := range rec.ofType(core.EventLog) {
		if p := ev.Data.(core.LogPayload); p.Stage == "action" {
			loggedFailure = true
		}
	}
	assert.True(t, loggedFailure)
}

func TestPerceptionFailureIsNonFatal(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{llm.Fail(errors.New("model offline"))},
		[]llm.Reply{llm.Text("FINAL_ANSWER: Managed without perception.")})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "anything", rec)

	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "Managed without perception.", chats[0].Content)
}

func TestSearchCheckpointPausesTurn(t *testing.T) {
	fix := newFixture(t, engine.Config{MaxIterations: 10, CheckpointEvery: 2},
		[]llm.Reply{perceive("information_request")},
		[]llm.Reply{
			llm.Text("FUNCTION_CALL: search_documents|query=first"),
			llm.Text("FUNCTION_CALL: search_documents|query=second"),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "research FAISS deeply", rec)

	// Only two decisions: the turn paused at the checkpoint rather
	// than looping on.
	assert.Equal(t, 2, fix.dec.Calls())
	chats := rec.chats()
	require.Len(t, chats, 1)
	assert.Contains(t, chats[0].Content, "keep going")
}

func TestOpenURLToolEmitsEvent(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("navigation")},
		[]llm.Reply{
			llm.Text("FUNCTION_CALL: open_url|url=https://example.com/paper"),
			llm.Text("FINAL_ANSWER: Opened it for you."),
		})

	rec := &recorder{}
	fix.eng.ProcessTurn(context.Background(), engine.NewSession(), "open the paper", rec)

	opens := rec.ofType(core.EventOpenURL)
	require.Len(t, opens, 1)
	assert.Equal(t, "https://example.com/paper", opens[0].Data.(core.OpenURLPayload).URL)
}

func TestAnnounceTools(t *testing.T) {
	fix := newFixture(t, engine.Config{}, nil, nil)

	rec := &recorder{}
	fix.eng.AnnounceTools(rec)

	events := rec.ofType(core.EventTools)
	require.Len(t, events, 1)
	names := events[0].Data.([]string)
	assert.Contains(t, names, "add")
	assert.Contains(t, names, "search_documents")
	assert.Contains(t, names, "open_url")
}

func TestCanceledContextEndsTurn(t *testing.T) {
	fix := newFixture(t, engine.Config{},
		[]llm.Reply{perceive("information_request")},
		nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	fix.eng.ProcessTurn(ctx, engine.NewSession(), "anything", rec)
	assert.Empty(t, rec.chats())
}
