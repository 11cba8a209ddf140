package enforcement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/enforcement"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

type stubLookup struct {
	requests map[string]*governance.ApprovalRequest
}

func (s *stubLookup) Get(id string) (*governance.ApprovalRequest, bool) {
	ar, ok := s.requests[id]
	return ar, ok
}

func newEngine() (*enforcement.Engine, *clock.Virtual, *stubLookup) {
	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := governance.DefaultConfig()
	eng := enforcement.NewEngine(cfg, vc, nil)
	lookup := &stubLookup{requests: make(map[string]*governance.ApprovalRequest)}
	eng.SetApprovalLookup(lookup)
	return eng, vc, lookup
}

func TestPreExecute_L0Allowed(t *testing.T) {
	eng, _, _ := newEngine()
	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionReadPublic, Payload: map[string]any{"x": 1}}
	agent := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L0}

	res, err := eng.PreExecute(req, agent)
	require.NoError(t, err)
	assert.True(t, res.Proceed)
	assert.False(t, res.Verdict.RequiresApproval)
}

func TestPreExecute_ClearanceViolation(t *testing.T) {
	eng, _, _ := newEngine()
	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionDestroyResource}
	agent := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L0}

	res, err := eng.PreExecute(req, agent)
	require.Error(t, err)
	assert.False(t, res.Proceed)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeClearanceViolation, gerr.Code)
	assert.Len(t, eng.Denials().All(), 1)
}

func TestPreExecute_L2WaitsThenProceedsOnceApproved(t *testing.T) {
	eng, _, lookup := newEngine()
	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionTransferFunds, Payload: map[string]any{"amount": 10}}
	agent := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L2}

	res, err := eng.PreExecute(req, agent)
	require.NoError(t, err)
	assert.True(t, res.Waiting)
	assert.False(t, res.Proceed)

	approvalID := "appr-1"
	lookup.requests[approvalID] = &governance.ApprovalRequest{ID: approvalID, State: governance.ApprovalPending}
	eng.LinkApproval(req.ID, approvalID, nil)

	res, err = eng.PreExecute(req, agent)
	require.NoError(t, err)
	assert.True(t, res.Waiting)

	lookup.requests[approvalID].State = governance.ApprovalApproved
	res, err = eng.PreExecute(req, agent)
	require.NoError(t, err)
	assert.True(t, res.Proceed)
	sanitized, ok := res.SanitizedPayload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, sanitized["amount"])
}

func TestPreExecute_RejectedApprovalDenies(t *testing.T) {
	eng, _, lookup := newEngine()
	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionDestroyResource}
	agent := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L2}

	approvalID := "appr-1"
	lookup.requests[approvalID] = &governance.ApprovalRequest{ID: approvalID, State: governance.ApprovalRejected, RejectionReason: "too risky"}
	eng.LinkApproval(req.ID, approvalID, nil)

	res, err := eng.PreExecute(req, agent)
	require.Error(t, err)
	assert.False(t, res.Proceed)
	assert.Contains(t, res.Reason, "too risky")
}

func TestPreExecute_IdempotentReplayRejected(t *testing.T) {
	eng, _, _ := newEngine()
	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionReadPublic}
	agent := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L0}

	_, err := eng.PreExecute(req, agent)
	require.NoError(t, err)
	_, err = eng.PostExecute(req, governance.ActionResult{Success: true, RequestID: req.ID}, nil)
	require.NoError(t, err)

	_, err = eng.PreExecute(req, agent)
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeAlreadyExecuted, gerr.Code)
}

func TestSanitize_StripsForbiddenKeys(t *testing.T) {
	payload := map[string]any{
		"ok":          "value",
		"__proto__":   map[string]any{"polluted": true},
		"constructor": "evil",
		"nested":      map[string]any{"prototype": "evil", "fine": 1},
	}
	out, err := enforcement.Sanitize(payload)
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "value", m["ok"])
	assert.NotContains(t, m, "__proto__")
	assert.NotContains(t, m, "constructor")
	nested := m["nested"].(map[string]any)
	assert.NotContains(t, nested, "prototype")
	assert.Equal(t, 1, nested["fine"])
}

func TestRiskScore_KnownAndUnknownKinds(t *testing.T) {
	assert.Equal(t, 0.0, enforcement.RiskScore(governance.ActionReadPublic))
	assert.Equal(t, 10.0, enforcement.RiskScore(governance.ActionDeleteAuditLog))
	assert.Equal(t, 1.0, enforcement.RiskScore(governance.ActionKind("no-such-kind")))
}

func TestCELPreHook_RejectsWhenPredicateFalse(t *testing.T) {
	eng, _, _ := newEngine()

	evaluator, err := governance.NewHookEvaluator()
	require.NoError(t, err)
	require.NoError(t, evaluator.Compile("business-hours", `agent.clearance >= 2`))
	eng.RegisterPreHook(enforcement.NewCELPreHook(evaluator, "business-hours"))

	req := governance.ActionRequest{ID: "a1", Kind: governance.ActionReadPublic}
	lowClearance := governance.AgentIdentity{ID: "agent-1", Clearance: governance.L0}

	res, err := eng.PreExecute(req, lowClearance)
	require.Error(t, err)
	assert.False(t, res.Proceed)
	assert.Contains(t, err.Error(), "business-hours")

	highClearance := governance.AgentIdentity{ID: "agent-2", Clearance: governance.L2}
	res, err = eng.PreExecute(governance.ActionRequest{ID: "a2", Kind: governance.ActionReadPublic}, highClearance)
	require.NoError(t, err)
	assert.True(t, res.Proceed)
}
