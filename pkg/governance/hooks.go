package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// HookEvaluator compiles and evaluates CEL predicates used as Enforcement
// pre/post-execute hooks (spec.md §4.1). It never decides the base
// action-kind -> clearance mapping; that stays the exhaustiveness-checked
// Go table in types.go. Hooks only layer optional, operator-defined
// conditions on top, the same split policy_evaluator_cel.go draws between
// its hardcoded system rules and a module's own CEL policy string.
type HookEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewHookEvaluator builds an evaluator whose CEL environment exposes a
// payload, a flattened agent identity, and the action kind. The payload is
// whatever the caller passes to Eval: the enforcement pre-hook adapter
// passes the request payload before sanitization, the post-hook adapter
// passes the executor's output.
func NewHookEvaluator() (*HookEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("payload", cel.DynType),
		cel.Variable("agent", cel.DynType),
		cel.Variable("action", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &HookEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile compiles and caches a named hook expression. Calling Compile
// again with the same name replaces the cached program.
func (h *HookEvaluator) Compile(name, expr string) error {
	ast, iss := h.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return fmt.Errorf("compile hook %q: %w", name, iss.Err())
	}
	prg, err := h.env.Program(ast)
	if err != nil {
		return fmt.Errorf("program hook %q: %w", name, err)
	}
	h.mu.Lock()
	h.programs[name] = prg
	h.mu.Unlock()
	return nil
}

// Eval evaluates a compiled hook against an action/agent/payload triple
// and returns its boolean result.
func (h *HookEvaluator) Eval(name string, action ActionKind, agent AgentIdentity, payload any) (bool, error) {
	h.mu.RLock()
	prg, ok := h.programs[name]
	h.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("hook %q not compiled", name)
	}
	out, _, err := prg.Eval(map[string]any{
		"payload": payload,
		"agent": map[string]any{
			"id":        agent.ID,
			"clearance": int(agent.Clearance),
		},
		"action": string(action),
	})
	if err != nil {
		return false, fmt.Errorf("eval hook %q: %w", name, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("hook %q did not evaluate to a bool", name)
	}
	return b, nil
}

// Remove drops a compiled hook. A no-op if the name was never compiled.
func (h *HookEvaluator) Remove(name string) {
	h.mu.Lock()
	delete(h.programs, name)
	h.mu.Unlock()
}
