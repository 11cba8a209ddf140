// Package approval implements the human-in-the-loop Approval Workflow
// (spec.md §4.3): the approver registry and the
// pending -> {approved, rejected, expired, revoked} state machine.
// Grounded on pkg/escalation/manager.go's intent lifecycle
// (CreateIntent/Approve/Deny/CheckTimeouts, receipt content-hash) and
// pkg/contracts/approval.go + escalation.go's field shapes for quorum,
// timeout, and on-timeout behavior.
package approval

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Config is the Approval Workflow's quorum and escalation configuration,
// a subset of governance.Config's fields (see missioncontrol for wiring).
type Config struct {
	MinApprovers        int
	MaxApprovers        int
	RequireUnanimous    bool
	EscalationTimeoutMs int64
	NotifyChannels      []string
	RequireMFA          bool
}

// Workflow owns the approver registry and every ApprovalRequest's state.
type Workflow struct {
	mu                  sync.Mutex
	approvers           map[string]governance.ApproverIdentity
	order               []string // insertion order, for first-N selection
	requests            map[string]*governance.ApprovalRequest
	decisionsByApprover map[string]map[string]bool // approvalID -> approverID -> decided
	cfg                 Config
	clock               clock.Clock
	emitter             governance.EventEmitter
}

// NewWorkflow constructs a Workflow. clk may be nil (defaults to the real
// clock); emitter may be nil (events are then dropped).
func NewWorkflow(cfg Config, clk clock.Clock, emitter governance.EventEmitter) *Workflow {
	if clk == nil {
		clk = clock.Real()
	}
	return &Workflow{
		approvers:           make(map[string]governance.ApproverIdentity),
		requests:            make(map[string]*governance.ApprovalRequest),
		decisionsByApprover: make(map[string]map[string]bool),
		cfg:                 cfg,
		clock:               clk,
		emitter:             emitter,
	}
}

// Register adds an L2-cleared approver to the registry. Re-registering
// an existing id updates its identity without changing its position in
// the insertion order used for first-N selection.
func (w *Workflow) Register(approver governance.ApproverIdentity) error {
	if approver.Clearance != governance.L2 {
		return governance.NewError(governance.CodeInsufficientApproverClearance, "approver must hold L2 clearance")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.approvers[approver.ID]; !exists {
		w.order = append(w.order, approver.ID)
	}
	w.approvers[approver.ID] = approver
	return nil
}

// Unregister removes an approver from the registry. A no-op if the id
// isn't registered. In-flight ApprovalRequests that already chose this
// approver are unaffected — ChosenApprovers is fixed at creation time.
func (w *Workflow) Unregister(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.approvers, id)
	for i, aid := range w.order {
		if aid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// SubmitForApproval creates a pending ApprovalRequest for an L2 action,
// selecting the first MinApprovers (or fewer, if the registry is
// smaller) approvers by registry insertion order, computing the evidence
// hash, and scheduling the escalation warning timer. l2TimeoutMs sets
// ExpiresAt; the actual expired transition is driven externally by the
// Enforcement Engine's own deadline timer (see enforcement.Engine.LinkApproval).
func (w *Workflow) SubmitForApproval(req governance.ActionRequest, requester governance.AgentIdentity, l2TimeoutMs int64) (*governance.ApprovalRequest, error) {
	w.mu.Lock()
	if len(w.order) == 0 {
		w.mu.Unlock()
		return nil, governance.NewError(governance.CodeNoApproversRegistered, "no approvers registered")
	}

	n := w.cfg.MinApprovers
	if n <= 0 {
		n = 1
	}
	if n > len(w.order) {
		n = len(w.order)
	}
	chosen := append([]string(nil), w.order[:n]...)
	now := w.clock.Now()

	digest, err := governance.PayloadDigest(req.Payload)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("compute payload digest: %w", err)
	}
	evidence, err := governance.EvidenceHash(governance.EvidenceHashInput{
		ActionID:      req.ID,
		ActionKind:    req.Kind,
		AgentID:       req.AgentID,
		CreatedAt:     now,
		PayloadDigest: digest,
	})
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("compute evidence hash: %w", err)
	}

	ar := &governance.ApprovalRequest{
		ID:                uuid.New().String(),
		ActionRequestID:   req.ID,
		State:             governance.ApprovalPending,
		RequesterSnapshot: requester,
		CreatedAt:         now,
		ChosenApprovers:   chosen,
		ExpiresAt:         now.Add(time.Duration(l2TimeoutMs) * time.Millisecond),
		EvidenceHash:      evidence,
	}
	w.requests[ar.ID] = ar
	w.decisionsByApprover[ar.ID] = make(map[string]bool)
	w.mu.Unlock()

	w.emit(governance.EventActionRequested, governance.SeverityInfo, map[string]any{
		"approval_id":      ar.ID,
		"action_id":        req.ID,
		"chosen_approvers": chosen,
	})
	w.scheduleEscalation(ar.ID)

	cp := *ar
	return &cp, nil
}

func (w *Workflow) scheduleEscalation(id string) {
	delay := time.Duration(w.cfg.EscalationTimeoutMs) * time.Millisecond
	if delay <= 0 {
		return
	}
	w.clock.AfterFunc(delay, func() {
		w.mu.Lock()
		ar, ok := w.requests[id]
		stillPending := ok && ar.State == governance.ApprovalPending
		w.mu.Unlock()
		if stillPending {
			w.emit(governance.EventApprovalTimeout, governance.SeverityWarning, map[string]any{"approval_id": id, "escalation": true})
		}
	})
}

// Approve records an approver's affirmative vote. Once enough affirmative
// votes accumulate (unanimous across ChosenApprovers, or MinApprovers,
// depending on config), the request transitions to approved and
// DecidedBy/DecidedAt record the vote that tipped it.
func (w *Workflow) Approve(approvalID, approverID string, signature []byte, reason string) (*governance.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ar, ok := w.requests[approvalID]
	if !ok {
		return nil, governance.NewError(governance.CodeNotFound, "approval request not found")
	}
	if ar.State != governance.ApprovalPending {
		return nil, governance.NewError(governance.CodeAlreadyDecided, "approval request already decided")
	}
	if !containsID(ar.ChosenApprovers, approverID) {
		return nil, governance.NewError(governance.CodeUnauthorized, "approver not in chosen approver set")
	}
	identity, registered := w.approvers[approverID]
	if !registered {
		return nil, governance.NewError(governance.CodeUnregistered, "approver not registered")
	}
	if w.decisionsByApprover[approvalID][approverID] {
		return nil, governance.NewError(governance.CodeDuplicateDecision, "approver already submitted a decision")
	}
	if err := verifyDecisionSignature(identity, approvalID, governance.DecisionApprove, signature); err != nil {
		return nil, err
	}

	now := w.clock.Now()
	ar.Decisions = append(ar.Decisions, governance.ApprovalDecision{
		ApproverID: approverID,
		Decision:   governance.DecisionApprove,
		Timestamp:  now,
		Signature:  signature,
		Reason:     reason,
	})
	w.decisionsByApprover[approvalID][approverID] = true

	affirmative := 0
	for _, d := range ar.Decisions {
		if d.Decision == governance.DecisionApprove {
			affirmative++
		}
	}

	transition := false
	if w.cfg.RequireUnanimous {
		transition = len(ar.Decisions) == len(ar.ChosenApprovers) && affirmative == len(ar.ChosenApprovers)
	} else {
		need := w.cfg.MinApprovers
		if need <= 0 {
			need = 1
		}
		transition = affirmative >= need
	}

	if transition {
		ar.State = governance.ApprovalApproved
		ar.DecidedBy = approverID
		ar.DecidedAt = now
		w.emit(governance.EventActionApproved, governance.SeverityInfo, map[string]any{"approval_id": approvalID})
	}

	cp := *ar
	return &cp, nil
}

// Reject records an approver's negative vote, immediately transitioning
// the request to rejected — a single rejection is final, there is no
// quorum on the reject side.
func (w *Workflow) Reject(approvalID, approverID, reason string, signature []byte) (*governance.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ar, ok := w.requests[approvalID]
	if !ok {
		return nil, governance.NewError(governance.CodeNotFound, "approval request not found")
	}
	if ar.State != governance.ApprovalPending {
		return nil, governance.NewError(governance.CodeAlreadyDecided, "approval request already decided")
	}
	if !containsID(ar.ChosenApprovers, approverID) {
		return nil, governance.NewError(governance.CodeUnauthorized, "approver not in chosen approver set")
	}
	identity, registered := w.approvers[approverID]
	if !registered {
		return nil, governance.NewError(governance.CodeUnregistered, "approver not registered")
	}
	if w.decisionsByApprover[approvalID][approverID] {
		return nil, governance.NewError(governance.CodeDuplicateDecision, "approver already submitted a decision")
	}
	if err := verifyDecisionSignature(identity, approvalID, governance.DecisionReject, signature); err != nil {
		return nil, err
	}

	now := w.clock.Now()
	ar.Decisions = append(ar.Decisions, governance.ApprovalDecision{
		ApproverID: approverID,
		Decision:   governance.DecisionReject,
		Timestamp:  now,
		Signature:  signature,
		Reason:     reason,
	})
	w.decisionsByApprover[approvalID][approverID] = true
	ar.State = governance.ApprovalRejected
	ar.DecidedBy = approverID
	ar.DecidedAt = now
	ar.RejectionReason = reason

	w.emit(governance.EventActionRejected, governance.SeverityWarning, map[string]any{"approval_id": approvalID, "reason": reason})

	cp := *ar
	return &cp, nil
}

// Revoke moves an already-approved request to revoked. Per spec.md §9's
// resolved Open Question, revoking from pending is not permitted through
// this path — only Mission Control's EmergencyStop (via
// EmergencyRevokeAll) may do that.
func (w *Workflow) Revoke(approvalID, by, reason string) (*governance.ApprovalRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ar, ok := w.requests[approvalID]
	if !ok {
		return nil, governance.NewError(governance.CodeNotFound, "approval request not found")
	}
	if ar.State != governance.ApprovalApproved {
		return nil, governance.NewError(governance.CodeInvalidTransition, "revoke is only permitted from the approved state")
	}
	ar.State = governance.ApprovalRevoked
	now := w.clock.Now()

	w.emit(governance.EventActionRejected, governance.SeverityCritical, map[string]any{
		"approval_id": approvalID, "by": by, "reason": reason, "revoked": true, "at": now,
	})

	cp := *ar
	return &cp, nil
}

// EmergencyRevokeAll is the sole privileged path that may move a pending
// request straight to revoked, reserved for Mission Control's
// EmergencyStop. Returns the number of requests revoked.
func (w *Workflow) EmergencyRevokeAll() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	count := 0
	for _, ar := range w.requests {
		if ar.State == governance.ApprovalPending {
			ar.State = governance.ApprovalRevoked
			count++
		}
	}
	return count
}

// ExpireIfPending transitions a pending request to expired. Called by
// the Enforcement Engine's absolute L2 deadline timer (see
// enforcement.Engine.LinkApproval); a no-op if the request is no longer
// pending or doesn't exist.
func (w *Workflow) ExpireIfPending(approvalID string) bool {
	w.mu.Lock()
	ar, ok := w.requests[approvalID]
	if !ok || ar.State != governance.ApprovalPending {
		w.mu.Unlock()
		return false
	}
	ar.State = governance.ApprovalExpired
	w.mu.Unlock()

	w.emit(governance.EventApprovalTimeout, governance.SeverityWarning, map[string]any{"approval_id": approvalID, "expired": true})
	return true
}

// Get implements governance.ApprovalLookup.
func (w *Workflow) Get(approvalID string) (*governance.ApprovalRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ar, ok := w.requests[approvalID]
	if !ok {
		return nil, false
	}
	cp := *ar
	return &cp, true
}

// Pending returns a copy of every request currently in the pending state.
func (w *Workflow) Pending() []governance.ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []governance.ApprovalRequest
	for _, ar := range w.requests {
		if ar.State == governance.ApprovalPending {
			out = append(out, *ar)
		}
	}
	return out
}

func (w *Workflow) emit(kind governance.EventKind, sev governance.Severity, data map[string]any) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(governance.Event{Kind: kind, Severity: sev, Timestamp: w.clock.Now(), Data: data})
}

// verifyDecisionSignature enforces ApprovalDecision.Signature for any
// approver registered with a public key: a missing signature or one that
// doesn't verify against the approver's key, or whose claims don't match
// this approval and decision, is rejected before the vote is ever
// recorded. An approver with no PublicKey on file is unauthenticated by
// design — the kernel never requires a signature it has no key to check.
func verifyDecisionSignature(approver governance.ApproverIdentity, approvalID string, decision governance.DecisionKind, signature []byte) error {
	if len(approver.PublicKey) == 0 {
		return nil
	}
	if len(signature) == 0 {
		return governance.NewError(governance.CodeUnauthorized, "decision signature required for this approver")
	}
	claims, err := governance.VerifyDecisionSignature(ed25519.PublicKey(approver.PublicKey), signature)
	if err != nil {
		return governance.NewError(governance.CodeUnauthorized, fmt.Sprintf("invalid decision signature: %v", err))
	}
	if claims["approval_id"] != approvalID || claims["decision"] != string(decision) {
		return governance.NewError(governance.CodeUnauthorized, "decision signature does not match this approval request")
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
