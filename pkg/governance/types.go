// Package governance holds the kernel's shared data model: clearance
// levels, action kinds and their fixed clearance bindings, agent and
// approver identities, action requests/results, approval requests and
// decisions, and audit entries. It has no dependency on the audit,
// enforcement, approval, or mission control packages, so every other
// package in this module can import it without creating a cycle.
package governance

import "time"

// ClearanceLevel is the three-rung trust ladder an agent or approver
// identity carries. L0 is the default for any newly-minted agent
// identity; L2 is required to register as an approver.
type ClearanceLevel int

const (
	L0 ClearanceLevel = iota
	L1
	L2
)

func (c ClearanceLevel) String() string {
	switch c {
	case L0:
		return "L0"
	case L1:
		return "L1"
	case L2:
		return "L2"
	default:
		return "UNKNOWN"
	}
}

// ActionKind enumerates every action an agent may request. The set is
// closed: the package's init function panics if any kind in
// allActionKinds is missing its clearance binding, and PreExecute rejects
// any kind RequiredClearance does not know.
type ActionKind string

const (
	ActionReadPublic         ActionKind = "read-public"
	ActionQueryStatus        ActionKind = "query-status"
	ActionListResources      ActionKind = "list-resources"
	ActionModifyConfig       ActionKind = "modify-config"
	ActionDeployService      ActionKind = "deploy-service"
	ActionRotateCredential   ActionKind = "rotate-credential"
	ActionManageSecrets      ActionKind = "manage-secrets"
	ActionExecuteCommand     ActionKind = "execute-command"
	ActionDestroyResource    ActionKind = "destroy-resource"
	ActionModifyProduction   ActionKind = "modify-production"
	ActionTransferFunds      ActionKind = "transfer-funds"
	ActionDeleteAuditLog     ActionKind = "delete-audit-log"
	ActionEscalatePrivileges ActionKind = "escalate-privileges"
	ActionExecuteArbitrary   ActionKind = "execute-arbitrary"
)

// allActionKinds backs the exhaustiveness check in init(). Anyone adding
// a new ActionKind constant above and forgetting to add it here (and to
// clearanceMap) gets a panic at process startup, the closest Go gets to
// the spec's "build-time error for an unmapped kind" requirement.
var allActionKinds = []ActionKind{
	ActionReadPublic,
	ActionQueryStatus,
	ActionListResources,
	ActionModifyConfig,
	ActionDeployService,
	ActionRotateCredential,
	ActionManageSecrets,
	ActionExecuteCommand,
	ActionDestroyResource,
	ActionModifyProduction,
	ActionTransferFunds,
	ActionDeleteAuditLog,
	ActionEscalatePrivileges,
	ActionExecuteArbitrary,
}

var clearanceMap = map[ActionKind]ClearanceLevel{
	ActionReadPublic:         L0,
	ActionQueryStatus:        L0,
	ActionListResources:      L0,
	ActionModifyConfig:       L1,
	ActionDeployService:      L1,
	ActionRotateCredential:   L1,
	ActionManageSecrets:      L1,
	ActionExecuteCommand:     L1,
	ActionDestroyResource:    L2,
	ActionModifyProduction:   L2,
	ActionTransferFunds:      L2,
	ActionDeleteAuditLog:     L2,
	ActionEscalatePrivileges: L2,
	ActionExecuteArbitrary:   L2,
}

func init() {
	for _, kind := range allActionKinds {
		if _, ok := clearanceMap[kind]; !ok {
			panic("governance: action kind " + string(kind) + " has no clearance binding")
		}
	}
}

// RequiredClearance returns the clearance level an action kind demands.
// The second return value is false for a kind the kernel has never heard
// of (e.g. a stale request from an older agent build).
func RequiredClearance(kind ActionKind) (ClearanceLevel, bool) {
	lvl, ok := clearanceMap[kind]
	return lvl, ok
}

// AgentIdentity is the snapshot of a requesting agent carried alongside
// every action request and baked into the audit entry it produces.
type AgentIdentity struct {
	ID          string
	DisplayName string
	Clearance   ClearanceLevel
	SessionID   string
	PublicKey   []byte // optional; the kernel does not itself verify ActionRequest.Signature against it
}

// ApproverIdentity is an L2-cleared human registered with the approval
// workflow. Construction is validated: only L2 identities may approve.
type ApproverIdentity struct {
	ID             string
	DisplayName    string
	Clearance      ClearanceLevel
	ContactAddress string // opaque; the kernel never dispatches a notification itself
	PublicKey      []byte // optional, used to verify ApprovalDecision.Signature
}

// NewApproverIdentity constructs an approver identity, rejecting anything
// below L2 clearance per the data model invariant that only L2 principals
// may sit in the approver registry.
func NewApproverIdentity(id, displayName string, clearance ClearanceLevel, contact string, pubKey []byte) (*ApproverIdentity, error) {
	if clearance != L2 {
		return nil, NewError(CodeInsufficientApproverClearance, "approver identity must hold L2 clearance")
	}
	return &ApproverIdentity{
		ID:             id,
		DisplayName:    displayName,
		Clearance:      clearance,
		ContactAddress: contact,
		PublicKey:      pubKey,
	}, nil
}

// ActionRequest is the unit of work an agent submits to Mission Control.
type ActionRequest struct {
	ID            string
	Kind          ActionKind
	AgentID       string
	CreatedAt     time.Time
	Payload       any
	Signature     []byte // optional, over the canonicalized request
	CorrelationID string
}

// ActionResult is the outcome of executing an ActionRequest, whether or
// not execution actually ran (a denied request still produces one).
type ActionResult struct {
	Success     bool
	RequestID   string
	CompletedAt time.Time
	Output      any
	Error       string
	ExecutedBy  string
}

// ApprovalState is the Approval Workflow's state machine position for a
// single ApprovalRequest. pending can move to approved, rejected, expired
// or revoked (the last only via emergency revocation); approved can move
// only to revoked; rejected, expired and revoked are terminal.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	ApprovalExpired  ApprovalState = "expired"
	ApprovalRevoked  ApprovalState = "revoked"
)

// DecisionKind is an individual approver's vote on an ApprovalRequest.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionReject  DecisionKind = "reject"
)

// ApprovalDecision records one approver's vote against an ApprovalRequest.
type ApprovalDecision struct {
	ApproverID string
	Decision   DecisionKind
	Timestamp  time.Time
	Signature  []byte // optional, EdDSA JWT over the decision (see signature.go)
	Reason     string
}

// ApprovalRequest is the human-in-the-loop gate created for any L2
// action. ChosenApprovers is fixed at creation time (first-N by registry
// insertion order, see approval.Workflow.SubmitForApproval) so the selection can be
// audited without re-running it.
type ApprovalRequest struct {
	ID                string
	ActionRequestID   string
	State             ApprovalState
	RequesterSnapshot AgentIdentity
	CreatedAt         time.Time
	ChosenApprovers   []string
	Decisions         []ApprovalDecision
	DecidedBy         string // zero value if still pending
	DecidedAt         time.Time
	RejectionReason   string
	ExpiresAt         time.Time // the absolute L2 deadline (enforcement-owned, see pkg/enforcement)
	EvidenceHash      string
}

// AuditEntry is one hash-chained record of the trail. EntryHash and
// ImmutableProof are computed over an exact, documented field order (see
// pkg/audit/canonical.go) rather than relying on JSON field ordering.
type AuditEntry struct {
	ID           string
	Timestamp    time.Time
	Sequence     uint64
	Request      ActionRequest
	Result       ActionResult
	Agent        AgentIdentity
	Approval     *ApprovalRequest // nil for an L0/L1 action that never required one
	PreviousHash string
	EntryHash    string
	ImmutableProof string
}

// ApprovalLookup lets the Enforcement Engine consult the Approval
// Workflow's current state for a linked approval id without importing
// the approval package directly. *approval.Workflow satisfies this.
type ApprovalLookup interface {
	Get(approvalID string) (*ApprovalRequest, bool)
}

// EventKind names a Mission Control event, fanned out to subscribers
// registered via missioncontrol.MissionControl.OnEvent.
type EventKind string

const (
	EventActionRequested    EventKind = "action-requested"
	EventActionApproved     EventKind = "action-approved"
	EventActionRejected     EventKind = "action-rejected"
	EventActionExecuted     EventKind = "action-executed"
	EventActionFailed       EventKind = "action-failed"
	EventClearanceViolation EventKind = "clearance-violation"
	EventApprovalTimeout    EventKind = "approval-timeout"
	EventAuditTamperDetected EventKind = "audit-tamper-detected"
)

// Severity classifies an Event for log-level and alerting purposes.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single occurrence fanned out by Mission Control's event bus.
type Event struct {
	Kind      EventKind
	Severity  Severity
	Timestamp time.Time
	Data      map[string]any
}

// EventEmitter is implemented by Mission Control's internal bus; the
// audit, enforcement, and approval packages only depend on this
// interface, never on missioncontrol itself.
type EventEmitter interface {
	Emit(Event)
}
