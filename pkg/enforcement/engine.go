// Package enforcement implements the Enforcement Engine (spec.md §4.1):
// clearance validation, idempotency, payload sanitization, and the
// pre/post-execute gate around Mission Control's executor call. Grounded
// on pkg/governance/pdp.go's PolicyDecisionPoint (the Evaluate -> Decision
// shape, including DecisionRequireApproval) for validate/preExecute.
package enforcement

import (
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

// EnforcementVerdict is the outcome of clearance validation for one
// action request.
type EnforcementVerdict struct {
	RequiredClearance governance.ClearanceLevel
	AgentClearance    governance.ClearanceLevel
	Allowed           bool
	RequiresApproval  bool
	Reason            string
	RiskScore         float64
}

// PreResult is PreExecute's outcome: either Proceed is true and the
// caller should run its executor against SanitizedPayload, or Proceed is
// false and Waiting distinguishes "still pending approval" from a hard
// denial (which also carries a non-nil error).
type PreResult struct {
	Proceed          bool
	Waiting          bool
	Verdict          EnforcementVerdict
	SanitizedPayload any
	Reason           string
}

// PostResult is PostExecute's outcome.
type PostResult struct {
	Executed       bool
	CleanupActions []string
}

// PreHook runs after clearance/idempotency/approval checks pass and
// before sanitization. Returning an error rejects the action.
type PreHook func(req governance.ActionRequest, agent governance.AgentIdentity) error

// PostHook runs after execution completes, win or lose. It has no error
// result, so a hook cannot change or mask the real execution outcome.
type PostHook func(req governance.ActionRequest, res governance.ActionResult, execErr error)

// Engine is the Enforcement Engine. One Engine instance is meant to be
// owned exclusively by a single Mission Control instance.
type Engine struct {
	mu               sync.Mutex
	completed        map[string]bool
	linkedApprovals  map[string]string // action request id -> approval request id
	cfg              governance.Config
	clock            clock.Clock
	emitter          governance.EventEmitter
	preHooks         []PreHook
	postHooks        []PostHook
	schemas          map[governance.ActionKind]*jsonschema.Schema
	approvalLookup   governance.ApprovalLookup
	denials          *DenialLedger
}

// NewEngine constructs an Engine. clk may be nil (defaults to the real
// clock); emitter may be nil (events are then dropped).
func NewEngine(cfg governance.Config, clk clock.Clock, emitter governance.EventEmitter) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{
		completed:       make(map[string]bool),
		linkedApprovals: make(map[string]string),
		cfg:             cfg,
		clock:           clk,
		emitter:         emitter,
		schemas:         make(map[governance.ActionKind]*jsonschema.Schema),
		denials:         NewDenialLedger(),
	}
}

// SetApprovalLookup injects the Approval Workflow's Get method so
// PreExecute can consult a linked approval's current state. Must be
// called before the first L2 action flows through the engine.
func (e *Engine) SetApprovalLookup(lookup governance.ApprovalLookup) {
	e.mu.Lock()
	e.approvalLookup = lookup
	e.mu.Unlock()
}

// RegisterPreHook adds a pre-execute hook, run in registration order.
func (e *Engine) RegisterPreHook(h PreHook) {
	e.mu.Lock()
	e.preHooks = append(e.preHooks, h)
	e.mu.Unlock()
}

// RegisterPostHook adds a post-execute hook, run in registration order.
func (e *Engine) RegisterPostHook(h PostHook) {
	e.mu.Lock()
	e.postHooks = append(e.postHooks, h)
	e.mu.Unlock()
}

// RegisterPayloadSchema attaches a JSON Schema an action kind's sanitized
// payload must satisfy.
func (e *Engine) RegisterPayloadSchema(kind governance.ActionKind, schema *jsonschema.Schema) {
	e.mu.Lock()
	e.schemas[kind] = schema
	e.mu.Unlock()
}

// Denials exposes the engine's denial ledger for operator inspection.
func (e *Engine) Denials() *DenialLedger { return e.denials }

// Validate checks an action request's required clearance against the
// requesting agent's, without touching idempotency or approval state.
func (e *Engine) Validate(req governance.ActionRequest, agent governance.AgentIdentity) (EnforcementVerdict, error) {
	required, ok := governance.RequiredClearance(req.Kind)
	if !ok {
		return EnforcementVerdict{}, governance.NewError(governance.CodeUnregisteredActionKind, fmt.Sprintf("action kind %q has no clearance binding", req.Kind))
	}

	verdict := EnforcementVerdict{
		RequiredClearance: required,
		AgentClearance:    agent.Clearance,
		RiskScore:         RiskScore(req.Kind),
	}

	if agent.Clearance < required {
		verdict.Allowed = false
		verdict.Reason = fmt.Sprintf("Insufficient clearance: agent holds %s, action requires %s", agent.Clearance, required)
		return verdict, nil
	}

	verdict.Allowed = true
	verdict.RequiresApproval = required == governance.L2
	return verdict, nil
}

// PreExecute runs the full preflight: validate, idempotency, approval
// fallthrough, pre-hooks, and payload sanitization.
func (e *Engine) PreExecute(req governance.ActionRequest, agent governance.AgentIdentity) (PreResult, error) {
	verdict, err := e.Validate(req, agent)
	if err != nil {
		return PreResult{}, err
	}

	if !verdict.Allowed {
		e.emit(governance.EventClearanceViolation, governance.SeverityCritical, map[string]any{
			"action_id": req.ID,
			"required":  verdict.RequiredClearance.String(),
			"actual":    verdict.AgentClearance.String(),
		})
		e.denials.Record(req.ID, agent.ID, string(governance.CodeClearanceViolation), verdict.Reason, e.clock.Now())
		return PreResult{Proceed: false, Verdict: verdict, Reason: verdict.Reason}, governance.NewError(governance.CodeClearanceViolation, verdict.Reason)
	}

	e.mu.Lock()
	if e.completed[req.ID] {
		e.mu.Unlock()
		reason := "action request already executed"
		e.denials.Record(req.ID, agent.ID, string(governance.CodeAlreadyExecuted), reason, e.clock.Now())
		return PreResult{Proceed: false, Verdict: verdict, Reason: reason}, governance.NewError(governance.CodeAlreadyExecuted, reason)
	}
	approvalID, linked := e.linkedApprovals[req.ID]
	e.mu.Unlock()

	if verdict.RequiresApproval {
		if !linked {
			return PreResult{Proceed: false, Waiting: true, Verdict: verdict, Reason: "requires approval, pending"}, nil
		}
		if e.approvalLookup == nil {
			return PreResult{}, governance.NewError(governance.CodeNotFound, "no approval lookup configured")
		}
		ar, ok := e.approvalLookup.Get(approvalID)
		if !ok {
			return PreResult{}, governance.NewError(governance.CodeNotFound, "linked approval request not found")
		}
		switch ar.State {
		case governance.ApprovalPending:
			return PreResult{Proceed: false, Waiting: true, Verdict: verdict, Reason: "approval pending"}, nil
		case governance.ApprovalApproved:
			// fall through to hooks/sanitization below
		case governance.ApprovalRejected:
			reason := fmt.Sprintf("approval rejected: %s", ar.RejectionReason)
			e.denials.Record(req.ID, agent.ID, string(governance.CodeEnforcementRejected), reason, e.clock.Now())
			return PreResult{Proceed: false, Verdict: verdict, Reason: reason}, governance.NewError(governance.CodeEnforcementRejected, reason)
		case governance.ApprovalExpired:
			reason := "approval expired"
			e.denials.Record(req.ID, agent.ID, string(governance.CodeEnforcementRejected), reason, e.clock.Now())
			return PreResult{Proceed: false, Verdict: verdict, Reason: reason}, governance.NewError(governance.CodeEnforcementRejected, reason)
		case governance.ApprovalRevoked:
			reason := "approval revoked"
			e.denials.Record(req.ID, agent.ID, string(governance.CodeEnforcementRejected), reason, e.clock.Now())
			return PreResult{Proceed: false, Verdict: verdict, Reason: reason}, governance.NewError(governance.CodeEnforcementRejected, reason)
		}
	}

	e.mu.Lock()
	hooks := append([]PreHook(nil), e.preHooks...)
	schema := e.schemas[req.Kind]
	e.mu.Unlock()

	for _, h := range hooks {
		if err := h(req, agent); err != nil {
			e.denials.Record(req.ID, agent.ID, string(governance.CodeEnforcementRejected), err.Error(), e.clock.Now())
			return PreResult{Proceed: false, Verdict: verdict, Reason: err.Error()}, governance.NewError(governance.CodeEnforcementRejected, err.Error())
		}
	}

	sanitized, err := Sanitize(req.Payload)
	if err != nil {
		return PreResult{}, err
	}
	if schema != nil {
		if err := schema.Validate(sanitized); err != nil {
			reason := fmt.Sprintf("payload schema validation failed: %v", err)
			e.denials.Record(req.ID, agent.ID, string(governance.CodeEnforcementRejected), reason, e.clock.Now())
			return PreResult{Proceed: false, Verdict: verdict, Reason: reason}, governance.NewError(governance.CodeEnforcementRejected, reason)
		}
	}

	return PreResult{Proceed: true, Verdict: verdict, SanitizedPayload: sanitized}, nil
}

// LinkApproval records which approval request governs an action request
// and schedules the engine's own absolute L2 deadline timer: when the
// timer fires, expireFn is called with the approval id. The engine does
// not check the approval's state first; Mission Control passes
// Workflow.ExpireIfPending, which only moves a still-pending request to
// expired. This is the engine's half of
// spec.md §4.3's "two timers share one clock" requirement — the
// workflow's own escalation timer is the other half, and both are
// scheduled off the same clock.Clock Mission Control owns.
func (e *Engine) LinkApproval(actionRequestID, approvalRequestID string, expireFn func(approvalID string)) {
	e.mu.Lock()
	e.linkedApprovals[actionRequestID] = approvalRequestID
	timeoutMs := e.cfg.L2ApprovalTimeoutMs
	e.mu.Unlock()

	if timeoutMs <= 0 || expireFn == nil {
		return
	}
	e.clock.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		expireFn(approvalRequestID)
	})
}

// LinkedApproval returns the approval request id linked to an action
// request, if any.
func (e *Engine) LinkedApproval(actionRequestID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.linkedApprovals[actionRequestID]
	return id, ok
}

// PostExecute marks an action request completed (enforcing idempotency
// for any future preExecute call against the same id) and runs post-hooks.
func (e *Engine) PostExecute(req governance.ActionRequest, res governance.ActionResult, execErr error) (PostResult, error) {
	e.mu.Lock()
	e.completed[req.ID] = true
	hooks := append([]PostHook(nil), e.postHooks...)
	e.mu.Unlock()

	for _, h := range hooks {
		h(req, res, execErr)
	}

	if execErr == nil && res.Success {
		e.emit(governance.EventActionExecuted, governance.SeverityInfo, map[string]any{"action_id": req.ID})
		return PostResult{Executed: true}, nil
	}

	e.emit(governance.EventActionFailed, governance.SeverityWarning, map[string]any{"action_id": req.ID, "error": res.Error})
	return PostResult{Executed: true, CleanupActions: []string{"ROLLBACK_PENDING_CHANGES", "RELEASE_RESOURCES"}}, nil
}

func (e *Engine) emit(kind governance.EventKind, sev governance.Severity, data map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(governance.Event{Kind: kind, Severity: sev, Timestamp: e.clock.Now(), Data: data})
}
