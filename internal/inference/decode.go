package inference

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotJSON indicates a model reply with no parsable JSON object.
var ErrNotJSON = errors.New("inference: no JSON object in model output")

// DecodeJSON extracts the structured judgment from a raw model reply.
// Models wrap JSON in markdown fences or surround it with prose often
// enough that callers must never parse replies directly; every call site
// is expected to carry its own deterministic default for the error path.
func DecodeJSON(raw string) (gjson.Result, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return gjson.Result{}, ErrNotJSON
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return gjson.Result{}, ErrNotJSON
	}
	s = s[start : end+1]

	if !gjson.Valid(s) {
		return gjson.Result{}, ErrNotJSON
	}
	return gjson.Parse(s), nil
}
