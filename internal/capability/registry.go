package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the catalog of invocable capabilities. Registrations
// normally happen once at process start; lookups run concurrently after.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a capability. Idempotent: a later registration of the same
// name replaces the earlier one.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("capability needs a name")
	}
	if d.Text == nil && d.Structured == nil {
		return fmt.Errorf("capability %q declares no entry point", d.Name)
	}
	if d.Cost < 0 {
		return fmt.Errorf("capability %q has negative cost", d.Name)
	}

	name := normalizeName(d.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = d
	return nil
}

// normalizeName strips any command prefix so "/weather" and "weather"
// resolve to the same capability.
func normalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "/")
}

// Resolve returns the descriptor for a name, nil when unknown.
func (r *Registry) Resolve(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[normalizeName(name)]
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Descriptions returns a name-and-description line per capability, capped
// at limit entries (0 means no cap). Callers embedding this in a prompt
// must pass a cap to bound context growth.
func (r *Registry) Descriptions(limit int) string {
	names := r.Names()
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, n := range names {
		d := r.tools[n]
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
