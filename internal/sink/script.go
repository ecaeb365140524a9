package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edvin/automation/internal/automation"
)

// ScriptFunc is a named Go hook a custom_script action can run.
type ScriptFunc func(ctx context.Context, inv automation.Invocation, params map[string]any) error

// ScriptRegistry maps script names to hooks. Unknown names fail.
type ScriptRegistry struct {
	mu      sync.RWMutex
	scripts map[string]ScriptFunc
}

func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{scripts: map[string]ScriptFunc{}}
}

// Register adds or replaces a script.
func (r *ScriptRegistry) Register(name string, fn ScriptFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[name] = fn
}

func (r *ScriptRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scripts))
	for n := range r.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *ScriptRegistry) Run(ctx context.Context, name string, inv automation.Invocation, params map[string]any) error {
	r.mu.RLock()
	fn, ok := r.scripts[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown script %q", name)
	}
	if params == nil {
		params = map[string]any{}
	}
	return fn(ctx, inv, params)
}
