// Package missioncontrol implements the orchestrator (spec.md §4.4, C5):
// it owns the Audit Trail, Enforcement Engine, and Approval Workflow,
// drives execute/approveAction/rejectAction/emergencyStop, and fans out
// events to subscribers. Grounded on cmd/helm/main.go's subsystem-wiring
// shape (constructing each collaborator and threading a single identity
// signer/clock through all of them) and pkg/observability's
// TrackOperation instrumentation.
package missioncontrol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/google/uuid"
	"github.com/mindburn-labs/aegis/pkg/approval"
	"github.com/mindburn-labs/aegis/pkg/audit"
	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/enforcement"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Executor is the caller-supplied function Mission Control invokes once
// an action request has cleared enforcement. The core treats it as
// opaque: any returned error is propagated into the audit entry and
// re-raised as ExecutionFailed.
type Executor func(sanitizedPayload any) (any, error)

// PendingRef is returned from Execute when an action requires approval
// and has not yet proceeded.
type PendingRef struct {
	ApprovalID      string
	ActionRequestID string
}

// ExecuteOutcome is Execute's result: exactly one of Result or Pending is
// set, unless an error is returned.
type ExecuteOutcome struct {
	Result  *governance.ActionResult
	Entry   *governance.AuditEntry
	Pending *PendingRef
}

// ExecutionContext is a snapshot of one in-flight executor invocation,
// registered between preExecute succeeding and the executor returning.
type ExecutionContext struct {
	RequestID string
	Kind      governance.ActionKind
	AgentID   string
	StartedAt time.Time
}

// MissionControl wires together the Audit Trail, Enforcement Engine, and
// Approval Workflow behind a single API surface, per spec.md §6.
type MissionControl struct {
	cfg       governance.Config
	clock     clock.Clock
	bus       *bus
	trail     *audit.Trail
	engine    *enforcement.Engine
	workflow  *approval.Workflow
	telemetry Telemetry
	logger    *slog.Logger

	mu       sync.Mutex
	contexts map[string]ExecutionContext
}

// New constructs a fully-wired MissionControl instance. clk and telemetry
// may both be nil, defaulting to the real clock and a no-op Telemetry
// respectively.
func New(cfg governance.Config, clk clock.Clock, telemetry Telemetry) (*MissionControl, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid governance config: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if telemetry == nil {
		telemetry = NewNoopTelemetry()
	}

	logger := slog.Default().With("component", "missioncontrol")
	b := newBus(logger)

	trail := audit.NewTrail(audit.Config{
		Algorithm:        audit.HashAlgorithm(cfg.HashAlgorithm),
		RetentionDays:    cfg.AuditRetentionDays,
		EnforceIntegrity: cfg.EnableImmutableAudit,
		PolicySnapshot:   cfg,
	}, clk, b)

	engine := enforcement.NewEngine(cfg, clk, b)

	workflow := approval.NewWorkflow(approval.Config{
		MinApprovers:        cfg.MinApprovers,
		MaxApprovers:        cfg.MaxApprovers,
		RequireUnanimous:    cfg.RequireUnanimous,
		EscalationTimeoutMs: cfg.EscalationTimeoutMs,
		NotifyChannels:      cfg.NotifyChannels,
		RequireMFA:          cfg.RequireMFA,
	}, clk, b)

	engine.SetApprovalLookup(workflow)

	return &MissionControl{
		cfg:       cfg,
		clock:     clk,
		bus:       b,
		trail:     trail,
		engine:    engine,
		workflow:  workflow,
		telemetry: telemetry,
		logger:    logger,
		contexts:  make(map[string]ExecutionContext),
	}, nil
}

// RegisterApprover registers an L2 approver with the Approval Workflow.
func (mc *MissionControl) RegisterApprover(approver governance.ApproverIdentity) error {
	return mc.workflow.Register(approver)
}

// UnregisterApprover removes an approver from the registry.
func (mc *MissionControl) UnregisterApprover(id string) {
	mc.workflow.Unregister(id)
}

// Execute allocates a fresh action request and drives it through
// enforcement, the executor, and the audit trail, per spec.md §4.4.
func (mc *MissionControl) Execute(ctx context.Context, kind governance.ActionKind, agent governance.AgentIdentity, payload any, exec Executor) (ExecuteOutcome, error) {
	req := governance.ActionRequest{
		ID:        uuid.New().String(),
		Kind:      kind,
		AgentID:   agent.ID,
		CreatedAt: mc.clock.Now(),
		Payload:   payload,
	}
	return mc.execute(ctx, req, agent, exec)
}

// ResumeExecute re-drives a previously allocated action request — one
// that returned a PendingRef whose approval has since been decided — by
// re-running it under its original id so enforcement finds the linked
// approval. Mission Control never re-drives a suspended executor on its
// own; the caller is responsible for calling this once it observes the
// approval settle.
func (mc *MissionControl) ResumeExecute(ctx context.Context, requestID string, kind governance.ActionKind, agent governance.AgentIdentity, payload any, exec Executor) (ExecuteOutcome, error) {
	req := governance.ActionRequest{
		ID:        requestID,
		Kind:      kind,
		AgentID:   agent.ID,
		CreatedAt: mc.clock.Now(),
		Payload:   payload,
	}
	return mc.execute(ctx, req, agent, exec)
}

func (mc *MissionControl) execute(ctx context.Context, req governance.ActionRequest, agent governance.AgentIdentity, exec Executor) (ExecuteOutcome, error) {
	_, done := mc.telemetry.TrackOperation(ctx, "missioncontrol.execute",
		attribute.String("action.kind", string(req.Kind)),
		attribute.String("action.id", req.ID),
	)
	var opErr error
	defer func() { done(opErr) }()

	pre, err := mc.engine.PreExecute(req, agent)
	if err != nil {
		opErr = err
		res := governance.ActionResult{Success: false, RequestID: req.ID, CompletedAt: mc.clock.Now(), Error: err.Error()}
		entry := mc.trail.Record(req, res, agent, mc.linkedApproval(req.ID))
		if gerr, ok := err.(*governance.Error); ok {
			gerr.AuditEntry = &entry
		}
		return ExecuteOutcome{Result: &res, Entry: &entry}, err
	}

	if pre.Waiting {
		if approvalID, linked := mc.engine.LinkedApproval(req.ID); linked {
			return ExecuteOutcome{Pending: &PendingRef{ApprovalID: approvalID, ActionRequestID: req.ID}}, nil
		}
		ar, subErr := mc.workflow.SubmitForApproval(req, agent, mc.cfg.L2ApprovalTimeoutMs)
		if subErr != nil {
			opErr = subErr
			return ExecuteOutcome{}, subErr
		}
		mc.engine.LinkApproval(req.ID, ar.ID, func(approvalID string) { mc.workflow.ExpireIfPending(approvalID) })
		return ExecuteOutcome{Pending: &PendingRef{ApprovalID: ar.ID, ActionRequestID: req.ID}}, nil
	}

	mc.registerContext(req)
	out, execErr := exec(pre.SanitizedPayload)
	mc.unregisterContext(req.ID)

	res := governance.ActionResult{
		Success:     execErr == nil,
		RequestID:   req.ID,
		CompletedAt: mc.clock.Now(),
		Output:      out,
		ExecutedBy:  agent.ID,
	}
	if execErr != nil {
		res.Error = execErr.Error()
	}

	if _, postErr := mc.engine.PostExecute(req, res, execErr); postErr != nil {
		mc.logger.Error("post-execute hook failed", "request_id", req.ID, "error", postErr)
	}

	entry := mc.trail.Record(req, res, agent, mc.linkedApproval(req.ID))

	if execErr != nil {
		opErr = governance.NewErrorWithEntry(governance.CodeExecutionFailed, execErr.Error(), &entry)
		return ExecuteOutcome{Result: &res, Entry: &entry}, opErr
	}
	return ExecuteOutcome{Result: &res, Entry: &entry}, nil
}

func (mc *MissionControl) linkedApproval(requestID string) *governance.ApprovalRequest {
	approvalID, ok := mc.engine.LinkedApproval(requestID)
	if !ok {
		return nil
	}
	ar, ok := mc.workflow.Get(approvalID)
	if !ok {
		return nil
	}
	return ar
}

func (mc *MissionControl) registerContext(req governance.ActionRequest) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.contexts[req.ID] = ExecutionContext{RequestID: req.ID, Kind: req.Kind, AgentID: req.AgentID, StartedAt: mc.clock.Now()}
}

func (mc *MissionControl) unregisterContext(requestID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.contexts, requestID)
}

// ApproveAction delegates to the Approval Workflow.
func (mc *MissionControl) ApproveAction(approvalID, approverID string, signature []byte, reason string) (*governance.ApprovalRequest, error) {
	_, done := mc.telemetry.TrackOperation(context.Background(), "missioncontrol.approve_action", attribute.String("approval.id", approvalID))
	ar, err := mc.workflow.Approve(approvalID, approverID, signature, reason)
	done(err)
	return ar, err
}

// RejectAction delegates to the Approval Workflow.
func (mc *MissionControl) RejectAction(approvalID, approverID, reason string, signature []byte) (*governance.ApprovalRequest, error) {
	_, done := mc.telemetry.TrackOperation(context.Background(), "missioncontrol.reject_action", attribute.String("approval.id", approvalID))
	ar, err := mc.workflow.Reject(approvalID, approverID, reason, signature)
	done(err)
	return ar, err
}

// EmergencyStop revokes every pending approval and emits a single
// critical, composite action-rejected event carrying the revoked count
// and the reason — the one legal exception to "revoke only from
// approved" (spec.md §4.4).
func (mc *MissionControl) EmergencyStop(reason string) int {
	_, done := mc.telemetry.TrackOperation(context.Background(), "missioncontrol.emergency_stop")
	defer done(nil)

	count := mc.workflow.EmergencyRevokeAll()
	mc.bus.Emit(governance.Event{
		Kind:      governance.EventActionRejected,
		Severity:  governance.SeverityCritical,
		Timestamp: mc.clock.Now(),
		Data:      map[string]any{"emergency_stop": true, "revoked_count": count, "reason": reason},
	})
	mc.logger.Warn("emergency stop executed", "revoked_count", count, "reason", reason)
	return count
}

// GetPendingApprovals returns every approval request still pending.
func (mc *MissionControl) GetPendingApprovals() []governance.ApprovalRequest {
	return mc.workflow.Pending()
}

// GetAuditTrail exposes the Audit Trail handle for read-only inspection.
func (mc *MissionControl) GetAuditTrail() *audit.Trail {
	return mc.trail
}

// VerifyAuditIntegrity re-verifies the full hash chain.
func (mc *MissionControl) VerifyAuditIntegrity() bool {
	return mc.trail.VerifyChain()
}

// ExportAuditTrail serializes the audit trail to its JSON export format.
func (mc *MissionControl) ExportAuditTrail() ([]byte, error) {
	return mc.trail.ExportJSON()
}

// OnEvent subscribes a handler to one event kind. Registering on Mission
// Control transitively covers events from the Audit Trail, Enforcement
// Engine, and Approval Workflow, since all three were constructed with
// the same bus as their governance.EventEmitter.
func (mc *MissionControl) OnEvent(kind governance.EventKind, handler EventHandler) *Subscription {
	return mc.bus.On(kind, handler)
}

// GetActiveContexts returns a snapshot of in-flight execution contexts.
func (mc *MissionControl) GetActiveContexts() []ExecutionContext {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]ExecutionContext, 0, len(mc.contexts))
	for _, c := range mc.contexts {
		out = append(out, c)
	}
	return out
}
