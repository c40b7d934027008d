package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/inference"
)

// maxPlanSteps caps plans so a chatty model cannot inflate the loop bound.
const maxPlanSteps = 5

const thinkSystemPrompt = `You break a user request into an executable plan.
Reply with only a JSON object:
{"complexity": "simple|moderate|complex", "needs_tools": true|false, "plan": ["step 1", "step 2"]}
Keep the plan short; one step per distinct action.`

const actSystemPrompt = `You execute one step of a plan. Either answer the step
directly or call tools. Reply with only a JSON object, one of:
{"action": "respond", "response": "<answer text>"}
{"action": "invoke", "calls": [{"tool": "<name>", "args": {...}}]}
Only use tools from the provided list.`

const reflectSystemPrompt = `You write the final answer for a completed task.
Reply with only a JSON object:
{"final_answer": "<answer for the user>"}`

// judgment is the decoded thinking-phase output.
type judgment struct {
	Complexity string
	NeedsTools bool
	Plan       []string
}

// decodeJudgment parses the thinking reply. The fallback for every error
// path is a single-step plan holding the raw request verbatim.
func decodeJudgment(raw, request string) judgment {
	fallback := judgment{Complexity: "simple", Plan: []string{request}}

	parsed, err := inference.DecodeJSON(raw)
	if err != nil {
		return fallback
	}
	var plan []string
	parsed.Get("plan").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			plan = append(plan, s)
		}
		return len(plan) < maxPlanSteps
	})
	if len(plan) == 0 {
		return fallback
	}
	return judgment{
		Complexity: parsed.Get("complexity").String(),
		NeedsTools: parsed.Get("needs_tools").Bool(),
		Plan:       plan,
	}
}

// invocation is one requested tool call from the acting phase.
type invocation struct {
	Tool string
	Args map[string]any
}

// actDecision is the decoded acting-phase output: either a direct response
// or a list of tool invocations.
type actDecision struct {
	Response    string
	Invocations []invocation
}

// decodeActDecision parses the acting reply. Unparsable output is treated
// as a direct free-text answer rather than an error; the model said
// something, so keep it.
func decodeActDecision(raw string) actDecision {
	parsed, err := inference.DecodeJSON(raw)
	if err != nil {
		return actDecision{Response: strings.TrimSpace(raw)}
	}
	if parsed.Get("action").String() == "respond" {
		return actDecision{Response: parsed.Get("response").String()}
	}
	var calls []invocation
	parsed.Get("calls").ForEach(func(_, v gjson.Result) bool {
		tool := v.Get("tool").String()
		if tool == "" {
			return true
		}
		args := make(map[string]any)
		v.Get("args").ForEach(func(k, av gjson.Result) bool {
			args[k.String()] = av.Value()
			return true
		})
		calls = append(calls, invocation{Tool: tool, Args: args})
		return true
	})
	if len(calls) == 0 {
		return actDecision{Response: strings.TrimSpace(raw)}
	}
	return actDecision{Invocations: calls}
}

// decodeReflection parses the reflection reply, falling back to the
// deterministic summary when the model's JSON is unusable.
func decodeReflection(raw string, s *TaskState) string {
	parsed, err := inference.DecodeJSON(raw)
	if err == nil {
		if answer := strings.TrimSpace(parsed.Get("final_answer").String()); answer != "" {
			return answer
		}
	}
	return literalSummary(s)
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// synthesizeFromOutputs builds the final answer straight from successful
// tool outputs, surfacing any links they produced. No model call involved.
func synthesizeFromOutputs(results []capability.ToolResult) string {
	var parts []string
	var links []string
	seen := make(map[string]bool)
	for _, tr := range results {
		if !tr.Success || strings.TrimSpace(tr.Output) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(tr.Output))
		for _, l := range linkPattern.FindAllString(tr.Output, -1) {
			if !seen[l] {
				links = append(links, l)
				seen[l] = true
			}
		}
	}
	answer := strings.Join(parts, "\n\n")
	if len(links) > 0 && !strings.Contains(answer, "\n"+links[0]) {
		answer += "\n\n" + strings.Join(links, "\n")
	}
	return answer
}

// literalSummary is the last-resort answer built from whatever the run
// accumulated, used when no tool succeeded and the model is unreachable.
func literalSummary(s *TaskState) string {
	if len(s.Outputs) > 0 {
		return strings.Join(s.Outputs, "\n\n")
	}
	if len(s.Errors) > 0 {
		return fmt.Sprintf("I couldn't finish that: %s", s.Errors[len(s.Errors)-1])
	}
	return "I worked through your request but couldn't produce a concrete result. Could you rephrase it?"
}

// reflectPrompt renders the accumulated run context for the closing call.
func reflectPrompt(s *TaskState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", s.Request)
	if len(s.Plan) > 0 {
		b.WriteString("Plan:\n")
		for i, step := range s.Plan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	if len(s.Outputs) > 0 {
		b.WriteString("Collected output:\n")
		for _, out := range s.Outputs {
			b.WriteString(truncate(out, 500))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// truncate caps s at n bytes, backing off to a rune boundary so prompts
// never carry a split rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
