package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novahub/nova-gateway/internal/capability"
	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/inference"
	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/metrics"
)

// RouteKind distinguishes the two ways a message can be served.
type RouteKind string

const (
	// RouteDirectChat sends the message to plain chat completion.
	RouteDirectChat RouteKind = "direct-chat"
	// RouteSingleTool dispatches one capability and replies with its output.
	RouteSingleTool RouteKind = "single-tool"
)

// RateLimitReply is returned verbatim when a user exceeds the per-minute cap.
const RateLimitReply = "You're sending messages a bit fast. Give me a moment to catch up. 🙏"

// Result is the routing decision for one inbound message.
type Result struct {
	Kind       RouteKind
	Tool       string
	Confidence float64
	Intent     string
	Args       map[string]any
	Reply      string
}

// Classifier is the slice of the inference client the router needs for
// semantic fallback. Kept narrow so tests can count model calls.
type Classifier interface {
	Generate(ctx context.Context, req inference.Request) (string, error)
}

// Router resolves the cheap cases (casual chat, one deterministic tool)
// before anything reaches the orchestrator, and rate limits per user.
type Router struct {
	cfg        *config.RouterConfig
	dispatcher *capability.Dispatcher
	classifier Classifier
	contexts   *ContextStore
	limiter    *RateLimiter
	logger     *slog.Logger
}

// New creates a Router. classifier may be nil, which disables semantic
// fallback and leaves only the deterministic stages.
func New(cfg *config.RouterConfig, dispatcher *capability.Dispatcher, classifier Classifier, contexts *ContextStore) *Router {
	return &Router{
		cfg:        cfg,
		dispatcher: dispatcher,
		classifier: classifier,
		contexts:   contexts,
		limiter:    NewRateLimiter(cfg.RateLimitPerMinute, rateWindow),
		logger:     logging.WithComponent("router"),
	}
}

// Contexts exposes the conversation store for the scheduler's GC job.
func (r *Router) Contexts() *ContextStore { return r.contexts }

// Limiter exposes the rate limiter for the scheduler's GC job.
func (r *Router) Limiter() *RateLimiter { return r.limiter }

// Route decides how a message should be served. Stages, in order: rate
// limit, casual-intent patterns, command prefix, tool pattern table,
// semantic classification, plain chat.
func (r *Router) Route(ctx context.Context, message, userID, platform string) Result {
	message = strings.TrimSpace(message)
	conv := r.contexts.Get(userID, platform)
	conv.Append("user", message)

	if !r.limiter.Allow(contextKey(userID, platform)) {
		metrics.RateLimited.Inc()
		r.logger.Warn("rate limited", "user_id", userID, "platform", platform)
		return Result{Kind: RouteDirectChat, Intent: "rate_limited", Reply: RateLimitReply}
	}

	res := r.classify(ctx, conv, message)
	conv.SetLastRoute(res.Tool, res.Intent)
	metrics.RoutedMessages.WithLabelValues(string(res.Kind), res.Intent).Inc()
	return res
}

func (r *Router) classify(ctx context.Context, conv *Context, message string) Result {
	if intent, ok := matchCasual(message); ok {
		return Result{Kind: RouteDirectChat, Intent: intent}
	}
	words := strings.Fields(message)
	if len(words) <= 2 && !strings.HasPrefix(message, "/") {
		return Result{Kind: RouteDirectChat, Intent: "casual"}
	}

	registry := r.dispatcher.Registry()
	if strings.HasPrefix(message, "/") {
		cmd := strings.TrimPrefix(words[0], "/")
		if registry.Resolve(cmd) != nil {
			return Result{Kind: RouteSingleTool, Tool: cmd, Confidence: 1.0, Intent: "command"}
		}
	}

	if tool, conf, args, ok := matchTool(message, r.cfg.PatternConfidence); ok {
		return Result{Kind: RouteSingleTool, Tool: tool, Confidence: conf, Intent: "pattern", Args: args}
	}

	if r.classifier != nil && len(words) >= 4 && len(words) <= 50 {
		if res, ok := r.classifySemantic(ctx, conv, message); ok {
			return res
		}
	}

	return Result{Kind: RouteDirectChat, Intent: "general"}
}

const semanticSystemPrompt = `You route user messages to tools. Reply with only a JSON object:
{"tool": "<tool name or CHAT>", "confidence": <0.0-1.0>}
Pick CHAT unless the message clearly asks for one listed tool.`

// classifySemantic asks the model to pick a tool for messages the pattern
// table could not place. The answer is advisory: it is accepted only above
// the configured confidence and only for a registered tool.
func (r *Router) classifySemantic(ctx context.Context, conv *Context, message string) (Result, bool) {
	registry := r.dispatcher.Registry()
	names := registry.Names()
	if len(names) == 0 {
		return Result{}, false
	}
	if len(names) > r.cfg.SemanticSampleLimit {
		names = names[:r.cfg.SemanticSampleLimit]
	}

	var b strings.Builder
	b.WriteString("Tools: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(", CHAT\n")
	if summary := conv.Summary(5); summary != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Message: %s", message)

	raw, err := r.classifier.Generate(ctx, inference.Request{
		SystemPrompt: semanticSystemPrompt,
		Prompt:       b.String(),
	})
	if err != nil || inference.IsApology(raw) {
		return Result{}, false
	}

	parsed, err := inference.DecodeJSON(raw)
	if err != nil {
		return Result{}, false
	}
	tool := parsed.Get("tool").String()
	conf := parsed.Get("confidence").Float()
	if tool == "" || strings.EqualFold(tool, "CHAT") || conf < r.cfg.SemanticConfidence {
		return Result{}, false
	}
	if registry.Resolve(tool) == nil {
		r.logger.Debug("semantic pick not registered", "tool", tool)
		return Result{}, false
	}
	return Result{Kind: RouteSingleTool, Tool: tool, Confidence: conf, Intent: "semantic"}, true
}

// Dispatch executes a single-tool routing decision: the payload is the
// text after the command token (or the whole message), merged with any
// pattern-extracted arguments. Usage is recorded in the conversation
// context when the tool succeeds.
func (r *Router) Dispatch(ctx context.Context, res Result, message, userID, platform string) capability.ToolResult {
	input := strings.TrimSpace(message)
	if res.Intent == "command" {
		if _, rest, found := strings.Cut(input, " "); found {
			input = strings.TrimSpace(rest)
		} else {
			input = ""
		}
	}

	tr := r.dispatcher.Invoke(ctx, res.Tool, userID, input, res.Args)
	if tr.Success {
		r.contexts.Get(userID, platform).RecordToolUse(res.Tool)
	}
	return tr
}
