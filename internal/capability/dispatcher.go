package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tidwall/sjson"

	"github.com/novahub/nova-gateway/internal/logging"
	"github.com/novahub/nova-gateway/internal/metrics"
)

// argsAsJSON renders structured arguments as a JSON object with stable
// key order, for tools that only take free text.
func argsAsJSON(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{}"
	for _, k := range keys {
		if next, err := sjson.Set(out, k, args[k]); err == nil {
			out = next
		}
	}
	return out
}

// Dispatcher is the uniform invocation surface over registered
// capabilities, and the failure boundary between capability code and the
// orchestrator: anything a capability raises comes back as a failed
// ToolResult, never as a panic or error in the caller.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logging.WithComponent("dispatcher"),
	}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke runs a capability. When the capability declares a structured
// entry point and args were supplied, the structured form is used;
// otherwise the free-text entry point gets input, or the args serialized
// to JSON when no input text exists.
func (d *Dispatcher) Invoke(ctx context.Context, name, userID, input string, args map[string]any) ToolResult {
	start := time.Now()

	result := d.invoke(ctx, name, userID, input, args)
	result.DurationMs = time.Since(start).Milliseconds()

	status := "ok"
	if !result.Success {
		status = "error"
		d.logger.Warn("capability failed", "tool", result.Tool, "error", result.Error)
	}
	metrics.ToolInvocations.WithLabelValues(result.Tool, status).Inc()

	return result
}

func (d *Dispatcher) invoke(ctx context.Context, name, userID, input string, args map[string]any) (result ToolResult) {
	result.Tool = normalizeName(name)

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Output = ""
			result.Error = fmt.Sprintf("capability panicked: %v", rec)
		}
	}()

	desc := d.registry.Resolve(name)
	if desc == nil {
		result.Error = fmt.Sprintf("capability %q not found", name)
		return result
	}

	var output string
	var err error
	switch {
	case desc.Structured != nil && len(args) > 0:
		output, err = desc.Structured(ctx, userID, args)
	case desc.Text != nil:
		text := input
		if text == "" && len(args) > 0 {
			text = argsAsJSON(args)
		}
		output, err = desc.Text(ctx, text, userID)
	case desc.Structured != nil:
		output, err = desc.Structured(ctx, userID, args)
	default:
		err = fmt.Errorf("capability %q declares no entry point", name)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Output = output
	return result
}
