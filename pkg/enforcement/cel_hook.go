package enforcement

import (
	"fmt"

	"github.com/mindburn-labs/aegis/pkg/governance"
)

// NewCELPreHook adapts a compiled governance.HookEvaluator predicate into a
// PreHook: the action is rejected unless the named hook evaluates true.
// This is the bridge SPEC_FULL.md's CEL pre/post-hook layer describes —
// HookEvaluator itself stays ignorant of the Engine's PreHook/PostHook
// function types so governance has no dependency on enforcement.
func NewCELPreHook(evaluator *governance.HookEvaluator, name string) PreHook {
	return func(req governance.ActionRequest, agent governance.AgentIdentity) error {
		ok, err := evaluator.Eval(name, req.Kind, agent, req.Payload)
		if err != nil {
			return fmt.Errorf("policy hook %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("policy hook %q rejected action", name)
		}
		return nil
	}
}

// NewCELPostHook adapts a compiled governance.HookEvaluator predicate into a
// PostHook. PostHook never rejects execution — it already completed — so a
// failing predicate is only recorded as a denial-ledger style observation
// via the supplied onViolation callback rather than surfaced as an error.
func NewCELPostHook(evaluator *governance.HookEvaluator, name string, onViolation func(req governance.ActionRequest, reason string)) PostHook {
	return func(req governance.ActionRequest, res governance.ActionResult, execErr error) {
		agent := governance.AgentIdentity{ID: req.AgentID}
		ok, err := evaluator.Eval(name, req.Kind, agent, res.Output)
		if err != nil {
			onViolation(req, fmt.Sprintf("policy hook %q errored: %v", name, err))
			return
		}
		if !ok {
			onViolation(req, fmt.Sprintf("policy hook %q violated post-execution", name))
		}
	}
}
