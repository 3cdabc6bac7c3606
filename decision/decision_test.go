package decision_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/core"
	"github.com/seekerworks/searchagent/decision"
	"github.com/seekerworks/searchagent/llm"
	"github.com/seekerworks/searchagent/memory"
)

var catalog = []core.ToolSpec{
	{Name: "web_search", Description: "Search the web", Args: "query=string"},
	{Name: "add", Description: "Add two numbers", Args: "a=number, b=number"},
}

func plan(t *testing.T, reply string) (core.Plan, error) {
	t.Helper()
	eng := decision.New(llm.NewScripted(llm.Text(reply)), zerolog.Nop())
	return eng.Plan(context.Background(), decision.Input{Query: "q", Catalog: catalog})
}

func TestPlanFunctionCall(t *testing.T) {
	p, err := plan(t, "FUNCTION_CALL: web_search|query=FAISS library|max_results=3")
	require.NoError(t, err)
	require.Equal(t, core.PlanFunctionCall, p.Kind)
	assert.Equal(t, "web_search", p.Call.Tool)
	assert.Equal(t, map[string]string{"query": "FAISS library", "max_results": "3"}, p.Call.Args)
}

func TestPlanFunctionCallNoArgs(t *testing.T) {
	p, err := plan(t, "FUNCTION_CALL: web_search")
	require.NoError(t, err)
	require.Equal(t, core.PlanFunctionCall, p.Kind)
	assert.Empty(t, p.Call.Args)
}

func TestPlanFinalAnswer(t *testing.T) {
	p, err := plan(t, "FINAL_ANSWER: FAISS is a similarity search library.")
	require.NoError(t, err)
	require.Equal(t, core.PlanFinalAnswer, p.Kind)
	assert.Equal(t, "FAISS is a similarity search library.", p.Answer)
}

func TestPlanFinalAnswerSpansLines(t *testing.T) {
	p, err := plan(t, "FINAL_ANSWER: First point.\nSecond point.\nThird point.")
	require.NoError(t, err)
	require.Equal(t, core.PlanFinalAnswer, p.Kind)
	assert.Contains(t, p.Answer, "First point.")
	assert.Contains(t, p.Answer, "Third point.")
}

func TestPlanMarkerBuriedInProse(t *testing.T) {
	p, err := plan(t, "Let me think about this.\nFUNCTION_CALL: add|a=2|b=3\n")
	require.NoError(t, err)
	require.Equal(t, core.PlanFunctionCall, p.Kind)
	assert.Equal(t, "add", p.Call.Tool)
}

func TestPlanUnknownToolIsMalformed(t *testing.T) {
	_, err := plan(t, "FUNCTION_CALL: launch_rocket|target=moon")
	var malformed *decision.MalformedError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "launch_rocket")
}

func TestPlanNoMarkerIsMalformed(t *testing.T) {
	_, err := plan(t, "The answer is probably 42.")
	var malformed *decision.MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestPlanEmptyFinalAnswerIsMalformed(t *testing.T) {
	_, err := plan(t, "FINAL_ANSWER:")
	var malformed *decision.MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestPlanBadArgumentIsMalformed(t *testing.T) {
	_, err := plan(t, "FUNCTION_CALL: add|just-a-value")
	var malformed *decision.MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestPromptIsDeterministic(t *testing.T) {
	in := decision.Input{
		Query:      "What is FAISS?",
		Perception: core.PerceptionResult{Intent: "information_request", Entities: []string{"FAISS"}},
		Memories: []memory.SearchResult{
			{Item: memory.Item{Text: "FAISS indexes vectors"}, Score: 0.91},
		},
		History: []core.ConversationTurn{{Role: core.RoleUser, Content: "hi"}},
		Catalog: catalog,
	}

	first := llm.NewScripted(llm.Text("FINAL_ANSWER: ok"))
	second := llm.NewScripted(llm.Text("FINAL_ANSWER: ok"))
	_, err := decision.New(first, zerolog.Nop()).Plan(context.Background(), in)
	require.NoError(t, err)
	_, err = decision.New(second, zerolog.Nop()).Plan(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Prompts(), second.Prompts())
}

func TestPromptCarriesRetryNotice(t *testing.T) {
	client := llm.NewScripted(llm.Text("FINAL_ANSWER: ok"))
	in := decision.Input{Query: "q", Catalog: catalog, Notice: "no FUNCTION_CALL or FINAL_ANSWER marker"}
	_, err := decision.New(client, zerolog.Nop()).Plan(context.Background(), in)
	require.NoError(t, err)

	prompts := client.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "previous reply was rejected")
	assert.Contains(t, prompts[0], "no FUNCTION_CALL or FINAL_ANSWER marker")
}
