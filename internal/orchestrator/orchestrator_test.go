package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/inference"
)

// scriptedModel answers by system prompt so one stub serves every phase.
type scriptedModel struct {
	thinkReply   string
	actReplies   []string
	reflectReply string

	calls        int
	actCalls     int
	reflectCalls int
	err          error
}

func (m *scriptedModel) Generate(_ context.Context, req inference.Request) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	switch req.SystemPrompt {
	case thinkSystemPrompt:
		return m.thinkReply, nil
	case actSystemPrompt:
		reply := m.actReplies[0]
		if len(m.actReplies) > 1 {
			m.actReplies = m.actReplies[1:]
		}
		m.actCalls++
		return reply, nil
	case reflectSystemPrompt:
		m.reflectCalls++
		return m.reflectReply, nil
	}
	return "", fmt.Errorf("unexpected system prompt")
}

func testDispatcher(t *testing.T, flakyFailures int) (*capability.Dispatcher, *int) {
	t.Helper()
	registry := capability.NewRegistry()

	require.NoError(t, registry.Register(&capability.Descriptor{
		Name:        "search",
		Description: "searches the web",
		Structured: func(_ context.Context, _ string, args map[string]any) (string, error) {
			q, _ := args["query"].(string)
			return "results for " + q + " at https://example.com/r1", nil
		},
	}))

	failures := flakyFailures
	require.NoError(t, registry.Register(&capability.Descriptor{
		Name:        "flaky",
		Description: "fails a configured number of times",
		Structured: func(_ context.Context, _ string, _ map[string]any) (string, error) {
			if failures > 0 {
				failures--
				return "", errors.New("upstream unavailable")
			}
			return "flaky ok", nil
		},
	}))

	return capability.NewDispatcher(registry), &failures
}

func testOrchestrator(t *testing.T, model Generator, dispatcher *capability.Dispatcher) *Orchestrator {
	t.Helper()
	o, err := New(&config.OrchestratorConfig{MaxRetries: 3, MaxCapabilities: 12}, model, dispatcher, nil)
	require.NoError(t, err)
	return o
}

func TestRunSingleToolPlan(t *testing.T) {
	model := &scriptedModel{
		thinkReply: `{"complexity": "simple", "needs_tools": true, "plan": ["search for go release notes"]}`,
		actReplies: []string{`{"action": "invoke", "calls": [{"tool": "search", "args": {"query": "go release notes"}}]}`},
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(context.Background(), "find the go release notes", "u1", "web", "")

	assert.True(t, res.Success)
	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Contains(t, res.FinalAnswer, "results for go release notes")
	assert.Contains(t, res.FinalAnswer, "https://example.com/r1")
	require.Len(t, res.ToolResults, 1)
	assert.True(t, res.ToolResults[0].Success)
	// the answer comes straight from tool output; no closing model call
	assert.Zero(t, model.reflectCalls)
	assert.NotEmpty(t, res.ThreadID)
}

func TestRunRetriesFailedStep(t *testing.T) {
	model := &scriptedModel{
		thinkReply: `{"complexity": "moderate", "needs_tools": true, "plan": ["search first", "use flaky service"]}`,
		actReplies: []string{
			`{"action": "invoke", "calls": [{"tool": "search", "args": {"query": "x"}}]}`,
			`{"action": "invoke", "calls": [{"tool": "flaky", "args": {}}]}`,
		},
	}
	dispatcher, _ := testDispatcher(t, 1)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(context.Background(), "two step task", "u1", "web", "")

	assert.True(t, res.Success)
	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Empty(t, res.Errors)
	// step 2 failed once, was retried, then succeeded
	require.Len(t, res.ToolResults, 3)
	assert.False(t, res.ToolResults[1].Success)
	assert.True(t, res.ToolResults[2].Success)
	assert.Contains(t, res.FinalAnswer, "flaky ok")
}

func TestRunRetryBudgetBounded(t *testing.T) {
	model := &scriptedModel{
		thinkReply: `{"complexity": "simple", "needs_tools": true, "plan": ["use flaky service"]}`,
		actReplies: []string{`{"action": "invoke", "calls": [{"tool": "flaky", "args": {}}]}`},
	}
	dispatcher, _ := testDispatcher(t, 100)
	o := testOrchestrator(t, model, dispatcher)

	done := make(chan *Result, 1)
	go func() { done <- o.Run(context.Background(), "doomed task", "u1", "web", "") }()

	var res *Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate")
	}

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.NotEmpty(t, res.FinalAnswer)
	assert.NotEmpty(t, res.Errors)
	// initial attempt plus MaxRetries re-attempts, then stop
	assert.Len(t, res.ToolResults, 4)
}

func TestRunAllProvidersDown(t *testing.T) {
	// every call returns the apology sentinel, as the client does when
	// all tiers are transiently exhausted
	apology := &apologyModel{}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, apology, dispatcher)

	res := o.Run(context.Background(), "tell me about go generics", "u1", "web", "")

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Empty(t, res.Errors)
	// thinking degraded to a single-step plan holding the raw request
	require.Len(t, res.Plan, 1)
	assert.Equal(t, "tell me about go generics", res.Plan[0])
	assert.NotEmpty(t, res.FinalAnswer)
}

type apologyModel struct{ calls int }

func (m *apologyModel) Generate(context.Context, inference.Request) (string, error) {
	m.calls++
	return inference.Apology, nil
}

func TestRunDirectResponseStep(t *testing.T) {
	model := &scriptedModel{
		thinkReply:   `{"complexity": "simple", "needs_tools": false, "plan": ["answer the question"]}`,
		actReplies:   []string{`{"action": "respond", "response": "Generics arrived in Go 1.18."}`},
		reflectReply: `{"final_answer": "Generics arrived in Go 1.18."}`,
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(context.Background(), "when did go get generics", "u1", "web", "")

	assert.True(t, res.Success)
	assert.Equal(t, "Generics arrived in Go 1.18.", res.FinalAnswer)
	assert.Empty(t, res.ToolResults)
	assert.Equal(t, 1, model.reflectCalls)
}

func TestRunReflectionFallsBackToLiteralSummary(t *testing.T) {
	model := &scriptedModel{
		thinkReply:   `{"complexity": "simple", "needs_tools": false, "plan": ["answer"]}`,
		actReplies:   []string{`{"action": "respond", "response": "partial notes"}`},
		reflectReply: "not json at all",
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(context.Background(), "please summarize", "u1", "web", "")

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, "partial notes", res.FinalAnswer)
}

func TestRunUnparsableActReplyKeptAsAnswer(t *testing.T) {
	model := &scriptedModel{
		thinkReply:   `{"complexity": "simple", "needs_tools": false, "plan": ["answer"]}`,
		actReplies:   []string{"The capital of France is Paris."},
		reflectReply: `{"final_answer": "The capital of France is Paris."}`,
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(context.Background(), "what is the capital of france", "u1", "web", "")

	assert.True(t, res.Success)
	assert.Contains(t, res.FinalAnswer, "Paris")
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{
		thinkReply: `{"complexity": "simple", "needs_tools": true, "plan": ["search"]}`,
		actReplies: []string{`{"action": "invoke", "calls": [{"tool": "search", "args": {}}]}`},
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	res := o.Run(ctx, "anything", "u1", "web", "")

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Contains(t, res.Errors, "run canceled")
	assert.NotEmpty(t, res.FinalAnswer)
	assert.Empty(t, res.ToolResults)
}

func TestDecodeJudgmentFallback(t *testing.T) {
	j := decodeJudgment("I will do my best!", "original request")
	assert.Equal(t, []string{"original request"}, j.Plan)

	j = decodeJudgment(`{"plan": []}`, "original request")
	assert.Equal(t, []string{"original request"}, j.Plan)

	j = decodeJudgment("```json\n{\"plan\": [\"a\", \"b\"]}\n```", "x")
	assert.Equal(t, []string{"a", "b"}, j.Plan)
}

func TestDecodeJudgmentCapsPlan(t *testing.T) {
	j := decodeJudgment(`{"plan": ["1","2","3","4","5","6","7"]}`, "x")
	assert.Len(t, j.Plan, maxPlanSteps)
}

func TestSelectCapabilitiesKeywordOverlap(t *testing.T) {
	registry := capability.NewRegistry()
	for _, d := range []*capability.Descriptor{
		{Name: "weather", Description: "current weather for a location", Text: echoText},
		{Name: "joke", Description: "tells a random joke", Text: echoText},
		{Name: "calculator", Description: "evaluates arithmetic", Text: echoText},
	} {
		require.NoError(t, registry.Register(d))
	}

	picked := selectCapabilities(registry, "check the weather in Oslo", 12)
	names := make([]string, 0, len(picked))
	for _, d := range picked {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "weather")
	// always-available set rides along
	assert.Contains(t, names, "calculator")
	assert.NotContains(t, names, "joke")
}

func echoText(_ context.Context, input, _ string) (string, error) { return input, nil }

func TestStreamEmitsPhaseEvents(t *testing.T) {
	model := &scriptedModel{
		thinkReply: `{"complexity": "simple", "needs_tools": true, "plan": ["search for it"]}`,
		actReplies: []string{`{"action": "invoke", "calls": [{"tool": "search", "args": {"query": "it"}}]}`},
	}
	dispatcher, _ := testDispatcher(t, 0)
	o := testOrchestrator(t, model, dispatcher)

	var types []string
	for e := range o.Stream(context.Background(), "find it", "u1", "web", "") {
		if e.Type == "heartbeat" {
			continue
		}
		types = append(types, e.Type)
	}

	assert.Equal(t, []string{"thinking", "planning", "executing", "observing", "reflecting", "completed", "done"}, types)
}

func TestReflectPromptTruncatesOnRuneBoundary(t *testing.T) {
	state := newTaskState("summarize", "u1", "web", "t1", 3)
	state.Plan = []string{"collect"}
	state.Outputs = []string{strings.Repeat("日", 200)}

	prompt := reflectPrompt(state)
	assert.True(t, utf8.ValidString(prompt), "truncation must not split a rune")
}
