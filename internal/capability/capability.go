package capability

import "context"

// TextFunc is the free-text entry point of a capability.
type TextFunc func(ctx context.Context, input, userID string) (string, error)

// StructuredFunc is the structured-argument entry point of a capability.
type StructuredFunc func(ctx context.Context, userID string, args map[string]any) (string, error)

// Descriptor is the static registration record for one capability. A
// capability declares which calling conventions it supports by setting
// Text, Structured, or both; the dispatcher branches on that declaration.
// Immutable once registered, read by many concurrent dispatches.
type Descriptor struct {
	// Name identifies the capability, without any command prefix.
	Name string
	// Description is the one-line text embedded in inference prompts.
	Description string
	// Cost is the fixed charge per invocation, in token units.
	Cost int
	// ArgSpec describes the structured arguments (name → description).
	// Empty means the capability is free-text only.
	ArgSpec map[string]string
	// Text is the free-text entry point, nil if unsupported.
	Text TextFunc
	// Structured is the structured entry point, nil if unsupported.
	Structured StructuredFunc
}

// ToolResult records the outcome of one capability invocation.
type ToolResult struct {
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
