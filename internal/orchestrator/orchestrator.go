package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/metrics"
)

// Generator is the slice of the inference client the orchestrator needs.
type Generator interface {
	Generate(ctx context.Context, req inference.Request) (string, error)
}

// Checkpointer persists terminal task states. Optional; nil disables it.
type Checkpointer interface {
	SaveRun(ctx context.Context, state *TaskState) error
}

// Orchestrator drives one request through a bounded
// think/act/observe/reflect loop, recovering from tool and model failures
// inside the retry budget instead of surfacing them.
type Orchestrator struct {
	cfg        *config.OrchestratorConfig
	client     Generator
	dispatcher *capability.Dispatcher
	checkpoint Checkpointer
	logger     *slog.Logger
}

// New creates an Orchestrator. checkpoint may be nil.
func New(cfg *config.OrchestratorConfig, client Generator, dispatcher *capability.Dispatcher, checkpoint Checkpointer) (*Orchestrator, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("orchestrator: dispatcher is required")
	}
	if client == nil {
		return nil, fmt.Errorf("orchestrator: inference client is required")
	}
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		checkpoint: checkpoint,
		logger:     logging.WithComponent("orchestrator"),
	}, nil
}

// Run executes the full loop for one message and returns the terminal
// result. Recoverable failures never surface as errors; the result always
// carries a final answer.
func (o *Orchestrator) Run(ctx context.Context, message, userID, platform, threadID string) *Result {
	return o.run(ctx, message, userID, platform, threadID, func(Event) {})
}

func (o *Orchestrator) run(ctx context.Context, message, userID, platform, threadID string, emit func(Event)) *Result {
	state := newTaskState(message, userID, platform, threadID, o.cfg.MaxRetries)
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()
	start := time.Now()

	o.logger.Info("run started",
		"thread_id", state.ThreadID, "user_id", userID, "platform", platform)

	for !state.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			o.cancelRun(state)
			break
		}
		o.step(ctx, state, emit)
	}

	metrics.RunDuration.WithLabelValues(string(state.Phase)).Observe(time.Since(start).Seconds())
	o.logger.Info("run finished",
		"thread_id", state.ThreadID, "phase", state.Phase,
		"steps", len(state.Plan), "tools", len(state.ToolResults),
		"retries", state.RetryCount)

	if o.checkpoint != nil {
		if err := o.checkpoint.SaveRun(ctx, state); err != nil {
			o.logger.Warn("checkpoint save failed", "thread_id", state.ThreadID, "error", err)
		}
	}
	return state.result()
}

// step advances the state machine by one transition.
func (o *Orchestrator) step(ctx context.Context, s *TaskState, emit func(Event)) {
	switch s.Phase {
	case PhaseThinking:
		emit(Event{Type: "thinking"})
		o.think(ctx, s)
	case PhasePlanning:
		emit(Event{Type: "planning", Payload: map[string]any{"plan": s.Plan}})
		s.Phase = PhaseActing
	case PhaseActing:
		emit(Event{Type: "executing", Payload: map[string]any{
			"step":  s.Plan[s.StepIndex],
			"index": s.StepIndex + 1,
			"total": len(s.Plan),
		}})
		o.act(ctx, s)
	case PhaseObserving:
		emit(Event{Type: "observing"})
		o.observe(s)
	case PhaseReflecting:
		emit(Event{Type: "reflecting"})
		o.reflect(ctx, s)
	}
}

// think asks the model for a plan. Any failure degrades to a single-step
// plan holding the raw request; thinking never aborts the run.
func (o *Orchestrator) think(ctx context.Context, s *TaskState) {
	prompt := fmt.Sprintf("Request: %s\n\nAvailable tools:\n%s",
		s.Request, o.dispatcher.Registry().Descriptions(o.cfg.MaxCapabilities))

	raw, err := o.client.Generate(ctx, inference.Request{
		SystemPrompt: thinkSystemPrompt,
		Prompt:       prompt,
	})
	if err != nil || inference.IsApology(raw) {
		s.Plan = []string{s.Request}
		s.Phase = PhasePlanning
		return
	}

	j := decodeJudgment(raw, s.Request)
	s.Plan = j.Plan
	s.Phase = PhasePlanning
}

// act executes the current plan step: the model either answers it directly
// or emits tool invocations, which run through the dispatcher. Failures
// are recorded, never propagated.
func (o *Orchestrator) act(ctx context.Context, s *TaskState) {
	step := s.Plan[s.StepIndex]
	s.pending = nil

	tools := selectCapabilities(o.dispatcher.Registry(), step, o.cfg.MaxCapabilities)
	var toolList strings.Builder
	for _, d := range tools {
		fmt.Fprintf(&toolList, "- %s: %s\n", d.Name, d.Description)
	}

	prompt := fmt.Sprintf("Overall request: %s\nCurrent step: %s\n\nTools:\n%s",
		s.Request, step, toolList.String())

	raw, err := o.client.Generate(ctx, inference.Request{
		SystemPrompt: actSystemPrompt,
		Prompt:       prompt,
	})
	if err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("step %d: %v", s.StepIndex+1, err))
		s.Phase = PhaseObserving
		return
	}
	if inference.IsApology(raw) {
		// no provider available; keep the apology as the step output so
		// the run still completes with something
		s.Outputs = append(s.Outputs, raw)
		s.Phase = PhaseObserving
		return
	}

	decision := decodeActDecision(raw)
	if decision.Response != "" {
		s.Outputs = append(s.Outputs, decision.Response)
		s.Phase = PhaseObserving
		return
	}

	for _, call := range decision.Invocations {
		if err := ctx.Err(); err != nil {
			s.Errors = append(s.Errors, "run canceled")
			break
		}
		tr := o.dispatcher.Invoke(ctx, call.Tool, s.UserID, "", call.Args)
		s.pending = append(s.pending, tr)
		s.ToolResults = append(s.ToolResults, tr)
		if !tr.Success {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", tr.Tool, tr.Error))
		}
	}
	s.Phase = PhaseObserving
}

// observe folds the last step's successful outputs into the accumulated
// list and advances the step index when the step finished cleanly.
func (o *Orchestrator) observe(s *TaskState) {
	for _, tr := range s.pending {
		if tr.Success && strings.TrimSpace(tr.Output) != "" {
			s.Outputs = append(s.Outputs, tr.Output)
		}
	}
	s.pending = nil
	if len(s.Errors) == 0 {
		s.StepIndex++
	}
	s.Phase = PhaseReflecting
}

// reflect is the loop's decision point. Policy, in order: exhausted budget
// finishes best-effort; remaining budget retries the step with errors
// cleared; remaining steps continue; successful tool output becomes the
// answer without another model call; otherwise the model summarizes.
func (o *Orchestrator) reflect(ctx context.Context, s *TaskState) {
	switch {
	case len(s.Errors) > 0 && s.RetryCount >= s.MaxRetries:
		if s.anySuccess() {
			s.FinalAnswer = synthesizeFromOutputs(s.ToolResults)
		} else {
			s.FinalAnswer = literalSummary(s)
		}
		s.Phase = PhaseCompleted

	case len(s.Errors) > 0:
		o.logger.Debug("retrying step",
			"thread_id", s.ThreadID, "step", s.StepIndex+1, "retry", s.RetryCount+1)
		s.Errors = nil
		s.RetryCount++
		s.Phase = PhaseActing

	case s.StepIndex < len(s.Plan):
		s.Phase = PhaseActing

	case s.anySuccess():
		s.FinalAnswer = synthesizeFromOutputs(s.ToolResults)
		s.Phase = PhaseCompleted

	default:
		raw, err := o.client.Generate(ctx, inference.Request{
			SystemPrompt: reflectSystemPrompt,
			Prompt:       reflectPrompt(s),
		})
		if err != nil || inference.IsApology(raw) {
			s.FinalAnswer = literalSummary(s)
		} else {
			s.FinalAnswer = decodeReflection(raw, s)
		}
		s.Phase = PhaseCompleted
	}
}

// cancelRun closes out a canceled run with whatever partial answer exists.
func (o *Orchestrator) cancelRun(s *TaskState) {
	s.Errors = append(s.Errors, "run canceled")
	if s.anySuccess() {
		s.FinalAnswer = synthesizeFromOutputs(s.ToolResults)
	} else {
		s.FinalAnswer = literalSummary(s)
	}
	s.Phase = PhaseCompleted
}

// Stream runs the loop in a goroutine and emits one event per phase
// transition, with idle heartbeats in between. Sends never block: a
// stalled consumer misses intermediate events but still gets the channel
// closed after "done". The channel is closed when the run finishes.
func (o *Orchestrator) Stream(ctx context.Context, message, userID, platform, threadID string) <-chan Event {
	events := make(chan Event, 32)

	emit := func(e Event) {
		select {
		case events <- e:
		default:
		}
	}

	go func() {
		defer close(events)

		heartbeat := time.NewTicker(o.cfg.GetHeartbeat())
		defer heartbeat.Stop()
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-heartbeat.C:
					emit(Event{Type: "heartbeat"})
				case <-stop:
					return
				}
			}
		}()

		res := o.run(ctx, message, userID, platform, threadID, emit)
		close(stop)

		if res.Phase == PhaseCompleted {
			emit(Event{Type: "completed", Payload: map[string]any{
				"finalAnswer": res.FinalAnswer,
				"toolCount":   len(res.ToolResults),
			}})
		} else {
			msg := "run failed"
			if len(res.Errors) > 0 {
				msg = res.Errors[len(res.Errors)-1]
			}
			emit(Event{Type: "error", Payload: map[string]any{"message": msg}})
		}
		emit(Event{Type: "done"})
	}()

	return events
}
