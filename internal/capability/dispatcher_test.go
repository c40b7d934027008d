package capability

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Descriptor{
		Name:        "weather",
		Description: "check the weather in a city",
		Cost:        2,
		Text: func(ctx context.Context, input, userID string) (string, error) {
			return "sunny", nil
		},
	})
	require.NoError(t, err)

	assert.NotNil(t, r.Resolve("weather"))
	assert.NotNil(t, r.Resolve("/weather"), "command prefix resolves too")
	assert.Nil(t, r.Resolve("nope"))
}

func TestRegisterReplacesSameName(t *testing.T) {
	r := NewRegistry()
	mk := func(out string) *Descriptor {
		return &Descriptor{
			Name:        "echo",
			Description: "echoes",
			Text: func(ctx context.Context, input, userID string) (string, error) {
				return out, nil
			},
		}
	}
	require.NoError(t, r.Register(mk("first")))
	require.NoError(t, r.Register(mk("second")))
	assert.Equal(t, 1, r.Len())

	out, err := r.Resolve("echo").Text(context.Background(), "", "u")
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Descriptor{Name: ""}))
	assert.Error(t, r.Register(&Descriptor{Name: "noentry", Description: "x"}))
}

func TestDescriptionsCapped(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		r.Register(&Descriptor{
			Name:        fmt.Sprintf("tool%02d", i),
			Description: "does things",
			Text:        func(ctx context.Context, input, userID string) (string, error) { return "", nil },
		})
	}

	lines := strings.Split(r.Descriptions(3), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "tool00")
}

func TestInvokeTextEntryPoint(t *testing.T) {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "upper",
		Description: "uppercases input",
		Text: func(ctx context.Context, input, userID string) (string, error) {
			return strings.ToUpper(input), nil
		},
	})
	d := NewDispatcher(r)

	res := d.Invoke(context.Background(), "upper", "u1", "hello", nil)
	assert.True(t, res.Success)
	assert.Equal(t, "HELLO", res.Output)
	assert.Equal(t, "upper", res.Tool)
}

func TestInvokeStructuredPreferred(t *testing.T) {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "convert",
		Description: "unit conversion",
		ArgSpec:     map[string]string{"value": "number", "from": "unit", "to": "unit"},
		Structured: func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return fmt.Sprintf("%v %v -> %v", args["value"], args["from"], args["to"]), nil
		},
		Text: func(ctx context.Context, input, userID string) (string, error) {
			return "text path", nil
		},
	})
	d := NewDispatcher(r)

	res := d.Invoke(context.Background(), "convert", "u1", "", map[string]any{"value": 3, "from": "km", "to": "mi"})
	require.True(t, res.Success)
	assert.Equal(t, "3 km -> mi", res.Output)

	// Without args the text path serves.
	res = d.Invoke(context.Background(), "convert", "u1", "3 km to mi", nil)
	require.True(t, res.Success)
	assert.Equal(t, "text path", res.Output)
}

func TestInvokeCoercesArgsForTextOnlyTool(t *testing.T) {
	r := NewRegistry()
	var got string
	r.Register(&Descriptor{
		Name:        "legacy",
		Description: "text only",
		Text: func(ctx context.Context, input, userID string) (string, error) {
			got = input
			return "ok", nil
		},
	})
	d := NewDispatcher(r)

	res := d.Invoke(context.Background(), "legacy", "u1", "", map[string]any{"q": "x"})
	require.True(t, res.Success)
	assert.Contains(t, got, `"q":"x"`)
}

func TestInvokeCatchesErrorsAndPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "boom",
		Description: "always fails",
		Text: func(ctx context.Context, input, userID string) (string, error) {
			return "", fmt.Errorf("exploded")
		},
	})
	r.Register(&Descriptor{
		Name:        "panic",
		Description: "always panics",
		Text: func(ctx context.Context, input, userID string) (string, error) {
			panic("unexpected")
		},
	})
	d := NewDispatcher(r)

	res := d.Invoke(context.Background(), "boom", "u1", "x", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "exploded", res.Error)

	res = d.Invoke(context.Background(), "panic", "u1", "x", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestInvokeUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	res := d.Invoke(context.Background(), "ghost", "u1", "x", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestInvokeIdempotentForPureCapability(t *testing.T) {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "rev",
		Description: "reverses input",
		Text: func(ctx context.Context, input, userID string) (string, error) {
			runes := []rune(input)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		},
	})
	d := NewDispatcher(r)

	first := d.Invoke(context.Background(), "rev", "u1", "abc", nil)
	second := d.Invoke(context.Background(), "rev", "u1", "abc", nil)
	assert.Equal(t, first.Output, second.Output)
}
