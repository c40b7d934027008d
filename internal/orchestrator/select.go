package orchestrator

import (
	"sort"
	"strings"

	"github.com/novahub/nova-gateway/internal/capability"
)

// alwaysAvailable tools ride along on every step regardless of keyword
// score; they are cheap and broadly useful.
var alwaysAvailable = []string{"calculator", "time", "convert"}

// selectCapabilities picks up to limit tools relevant to a plan step,
// scoring by keyword overlap between the step text and each tool's name
// and description. The always-available set is included first.
func selectCapabilities(registry *capability.Registry, step string, limit int) []*capability.Descriptor {
	if limit <= 0 {
		limit = 12
	}

	picked := make([]*capability.Descriptor, 0, limit)
	seen := make(map[string]bool)
	for _, name := range alwaysAvailable {
		if d := registry.Resolve(name); d != nil && !seen[name] {
			picked = append(picked, d)
			seen[name] = true
		}
	}

	stepWords := keywords(step)
	type scored struct {
		d     *capability.Descriptor
		score int
	}
	var candidates []scored
	for _, name := range registry.Names() {
		if seen[name] {
			continue
		}
		d := registry.Resolve(name)
		if d == nil {
			continue
		}
		score := overlap(stepWords, keywords(d.Name+" "+d.Description))
		if score > 0 {
			candidates = append(candidates, scored{d, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, c := range candidates {
		if len(picked) >= limit {
			break
		}
		picked = append(picked, c.d)
	}
	return picked
}

func keywords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?:;()\"'")
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
