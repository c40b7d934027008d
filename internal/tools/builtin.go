package tools

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/novahub/nova-gateway/internal/capability"
)

// RegisterBuiltins installs the first-party capabilities into a registry.
// They cover both calling conventions: some take free text, some take
// structured arguments, a few take either.
func RegisterBuiltins(registry *capability.Registry) error {
	descriptors := []*capability.Descriptor{
		weatherDescriptor(http.DefaultClient),
		calculatorDescriptor(),
		convertDescriptor(),
		pickDescriptor(),
		uuidDescriptor(),
		timeDescriptor(),
		jokeDescriptor(),
	}
	for _, d := range descriptors {
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
	}
	return nil
}

// weatherDescriptor fetches current conditions from wttr.in.
func weatherDescriptor(client *http.Client) *capability.Descriptor {
	fetch := func(ctx context.Context, location string) (string, error) {
		location = strings.TrimSpace(location)
		if location == "" {
			return "", fmt.Errorf("weather: location is required")
		}
		u := "https://wttr.in/" + url.PathEscape(location) + "?format=%l:+%C,+%t,+wind+%w"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("weather: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("weather: service returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(body)), nil
	}

	return &capability.Descriptor{
		Name:        "weather",
		Description: "current weather conditions for a location",
		Cost:        1,
		ArgSpec:     map[string]string{"location": "city or place name"},
		Text: func(ctx context.Context, input, _ string) (string, error) {
			return fetch(ctx, input)
		},
		Structured: func(ctx context.Context, _ string, args map[string]any) (string, error) {
			loc, _ := args["location"].(string)
			return fetch(ctx, loc)
		},
	}
}

func calculatorDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "calculator",
		Description: "evaluates an arithmetic expression",
		ArgSpec:     map[string]string{"expression": "arithmetic expression, e.g. (2+3)*4"},
		Text: func(_ context.Context, input, _ string) (string, error) {
			v, err := Evaluate(input)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		},
		Structured: func(_ context.Context, _ string, args map[string]any) (string, error) {
			expr, _ := args["expression"].(string)
			v, err := Evaluate(expr)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		},
	}
}

// unit conversion factors to a base unit per dimension
var unitFactors = map[string]struct {
	base   string
	factor float64
}{
	"km": {"m", 1000}, "m": {"m", 1}, "cm": {"m", 0.01}, "mm": {"m", 0.001},
	"mi": {"m", 1609.344}, "miles": {"m", 1609.344}, "ft": {"m", 0.3048},
	"in": {"m", 0.0254}, "yd": {"m", 0.9144},
	"kg": {"kg", 1}, "g": {"kg", 0.001}, "lb": {"kg", 0.45359237},
	"lbs": {"kg", 0.45359237}, "oz": {"kg", 0.028349523125},
	"l": {"l", 1}, "ml": {"l", 0.001}, "gal": {"l", 3.785411784},
}

func convertUnits(value float64, from, to string) (float64, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))

	// temperature is affine, handled apart from the factor table
	switch from + ">" + to {
	case "c>f", "celsius>fahrenheit":
		return value*9/5 + 32, nil
	case "f>c", "fahrenheit>celsius":
		return (value - 32) * 5 / 9, nil
	}

	f, ok := unitFactors[from]
	if !ok {
		return 0, fmt.Errorf("convert: unknown unit %q", from)
	}
	tt, ok := unitFactors[to]
	if !ok {
		return 0, fmt.Errorf("convert: unknown unit %q", to)
	}
	if f.base != tt.base {
		return 0, fmt.Errorf("convert: cannot convert %s to %s", from, to)
	}
	return value * f.factor / tt.factor, nil
}

func convertDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "convert",
		Description: "converts a value between units of length, mass, volume or temperature",
		ArgSpec: map[string]string{
			"value": "numeric value", "from": "source unit", "to": "target unit",
		},
		Structured: func(_ context.Context, _ string, args map[string]any) (string, error) {
			value, err := toFloat(args["value"])
			if err != nil {
				return "", fmt.Errorf("convert: %w", err)
			}
			from, _ := args["from"].(string)
			to, _ := args["to"].(string)
			out, err := convertUnits(value, from, to)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %s = %s %s", formatNumber(value), from, formatNumber(out), to), nil
		},
	}
}

func pickDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "pick",
		Description: "picks one option at random from a list",
		ArgSpec:     map[string]string{"options": "options separated by 'or' or commas"},
		Text: func(_ context.Context, input, _ string) (string, error) {
			options := splitOptions(input)
			if len(options) < 2 {
				return "", fmt.Errorf("pick: need at least two options")
			}
			return "I pick: " + options[rand.Intn(len(options))], nil
		},
	}
}

func splitOptions(input string) []string {
	input = strings.TrimSpace(input)
	var parts []string
	if strings.Contains(input, " or ") {
		parts = strings.Split(input, " or ")
	} else {
		parts = strings.Split(input, ",")
	}
	options := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			options = append(options, p)
		}
	}
	return options
}

func uuidDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "uuid",
		Description: "generates a random UUID",
		Text: func(_ context.Context, _, _ string) (string, error) {
			return uuid.NewString(), nil
		},
	}
}

func timeDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "time",
		Description: "current time, optionally in a named timezone",
		ArgSpec:     map[string]string{"timezone": "IANA timezone, e.g. Europe/Oslo"},
		Structured: func(_ context.Context, _ string, args map[string]any) (string, error) {
			tz, _ := args["timezone"].(string)
			loc := time.Local
			if tz != "" {
				var err error
				loc, err = time.LoadLocation(strings.TrimSpace(tz))
				if err != nil {
					return "", fmt.Errorf("time: unknown timezone %q", tz)
				}
			}
			return time.Now().In(loc).Format("Mon, 02 Jan 2006 15:04 MST"), nil
		},
	}
}

var jokes = []string{
	"Why do Go programmers prefer dark mode? Because light attracts bugs.",
	"A SQL query walks into a bar, walks up to two tables and asks: may I join you?",
	"There are only two hard things in computer science: cache invalidation, naming things, and off-by-one errors.",
	"Why did the developer go broke? Because they used up all their cache.",
	"I would tell you a UDP joke, but you might not get it.",
}

func jokeDescriptor() *capability.Descriptor {
	return &capability.Descriptor{
		Name:        "joke",
		Description: "tells a random joke",
		Text: func(_ context.Context, _, _ string) (string, error) {
			return jokes[rand.Intn(len(jokes))], nil
		},
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
