package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/novahub/nova-gateway/internal/capability"
)

// Phase is one state of the task loop.
type Phase string

const (
	PhaseThinking   Phase = "thinking"
	PhasePlanning   Phase = "planning"
	PhaseActing     Phase = "acting"
	PhaseObserving  Phase = "observing"
	PhaseReflecting Phase = "reflecting"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the loop stops at this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// TaskState carries everything one run accumulates while moving through
// the loop. It is owned by a single goroutine; nothing here needs locking.
type TaskState struct {
	ThreadID  string   `json:"thread_id"`
	UserID    string   `json:"user_id"`
	Platform  string   `json:"platform"`
	Request   string   `json:"request"`
	Phase     Phase    `json:"phase"`
	Plan      []string `json:"plan"`
	StepIndex int      `json:"step_index"`

	ToolResults []capability.ToolResult `json:"tool_results"`
	Outputs     []string                `json:"outputs"`
	Errors      []string                `json:"errors"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	FinalAnswer string    `json:"final_answer"`
	StartedAt   time.Time `json:"started_at"`

	// results recorded by the last acting pass, folded in by observe
	pending []capability.ToolResult
}

func newTaskState(request, userID, platform, threadID string, maxRetries int) *TaskState {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	return &TaskState{
		ThreadID:   threadID,
		UserID:     userID,
		Platform:   platform,
		Request:    request,
		Phase:      PhaseThinking,
		MaxRetries: maxRetries,
		StartedAt:  time.Now(),
	}
}

// anySuccess reports whether any tool invocation in the run succeeded.
func (s *TaskState) anySuccess() bool {
	for _, tr := range s.ToolResults {
		if tr.Success {
			return true
		}
	}
	return false
}

// Result is the terminal outcome of a run.
type Result struct {
	Success     bool                    `json:"success"`
	FinalAnswer string                  `json:"final_answer"`
	ToolResults []capability.ToolResult `json:"tool_results"`
	Plan        []string                `json:"plan"`
	Phase       Phase                   `json:"phase"`
	Errors      []string                `json:"errors"`
	ThreadID    string                  `json:"thread_id"`
}

func (s *TaskState) result() *Result {
	return &Result{
		Success:     s.Phase == PhaseCompleted && len(s.Errors) == 0,
		FinalAnswer: s.FinalAnswer,
		ToolResults: s.ToolResults,
		Plan:        s.Plan,
		Phase:       s.Phase,
		Errors:      s.Errors,
		ThreadID:    s.ThreadID,
	}
}

// Event is one streamed phase-transition update.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
