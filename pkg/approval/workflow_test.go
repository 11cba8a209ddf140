package approval_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindburn-labs/aegis/pkg/approval"
	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

func approver(id string) governance.ApproverIdentity {
	return governance.ApproverIdentity{ID: id, DisplayName: id, Clearance: governance.L2}
}

func newTestWorkflow(cfg approval.Config) (*approval.Workflow, *clock.Virtual) {
	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return approval.NewWorkflow(cfg, vc, nil), vc
}

func TestRegister_RejectsSubL2Clearance(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	err := wf.Register(governance.ApproverIdentity{ID: "a1", Clearance: governance.L1})
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeInsufficientApproverClearance, gerr.Code)
}

func TestSubmitForApproval_NoApproversRegistered(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds}
	_, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeNoApproversRegistered, gerr.Code)
}

func TestApprove_SingleApproverThreshold(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	require.NoError(t, wf.Register(approver("a1")))

	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds, Payload: map[string]any{"amt": 5}}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalPending, ar.State)
	assert.NotEmpty(t, ar.EvidenceHash)

	decided, err := wf.Approve(ar.ID, "a1", nil, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalApproved, decided.State)
	assert.Equal(t, "a1", decided.DecidedBy)
}

func TestApprove_UnanimousRequiresAllChosenApprovers(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 3, RequireUnanimous: true})
	require.NoError(t, wf.Register(approver("a1")))
	require.NoError(t, wf.Register(approver("a2")))
	require.NoError(t, wf.Register(approver("a3")))

	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionDestroyResource}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)
	require.Len(t, ar.ChosenApprovers, 3)

	d1, err := wf.Approve(ar.ID, "a1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalPending, d1.State)

	d2, err := wf.Approve(ar.ID, "a2", nil, "")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalPending, d2.State)

	d3, err := wf.Approve(ar.ID, "a3", nil, "")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalApproved, d3.State)
}

func TestReject_IsImmediatelyTerminal(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 2})
	require.NoError(t, wf.Register(approver("a1")))
	require.NoError(t, wf.Register(approver("a2")))

	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionManageSecrets}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	decided, err := wf.Reject(ar.ID, "a1", "not authorized", nil)
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalRejected, decided.State)

	_, err = wf.Approve(ar.ID, "a2", nil, "")
	require.Error(t, err)
}

func TestApprove_DuplicateDecisionRejected(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 2})
	require.NoError(t, wf.Register(approver("a1")))
	require.NoError(t, wf.Register(approver("a2")))

	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionManageSecrets}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	_, err = wf.Approve(ar.ID, "a1", nil, "")
	require.NoError(t, err)
	_, err = wf.Approve(ar.ID, "a1", nil, "")
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeDuplicateDecision, gerr.Code)
}

func TestRevoke_OnlyFromApproved(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	require.NoError(t, wf.Register(approver("a1")))
	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	_, err = wf.Revoke(ar.ID, "admin", "policy change")
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeInvalidTransition, gerr.Code)

	_, err = wf.Approve(ar.ID, "a1", nil, "")
	require.NoError(t, err)
	decided, err := wf.Revoke(ar.ID, "admin", "policy change")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalRevoked, decided.State)
}

func TestEmergencyRevokeAll_OnlyTouchesPending(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	require.NoError(t, wf.Register(approver("a1")))

	req1 := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds}
	ar1, err := wf.SubmitForApproval(req1, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	req2 := governance.ActionRequest{ID: "r2", Kind: governance.ActionTransferFunds}
	ar2, err := wf.SubmitForApproval(req2, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)
	_, err = wf.Approve(ar2.ID, "a1", nil, "")
	require.NoError(t, err)

	count := wf.EmergencyRevokeAll()
	assert.Equal(t, 1, count)

	got1, _ := wf.Get(ar1.ID)
	assert.Equal(t, governance.ApprovalRevoked, got1.State)
	got2, _ := wf.Get(ar2.ID)
	assert.Equal(t, governance.ApprovalApproved, got2.State)
}

func TestApprove_SignedApproverRequiresValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	require.NoError(t, wf.Register(governance.ApproverIdentity{ID: "a1", Clearance: governance.L2, PublicKey: pub}))

	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	_, err = wf.Approve(ar.ID, "a1", nil, "no signature attached")
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeUnauthorized, gerr.Code)

	badSig, err := governance.SignDecision(priv, jwt.MapClaims{"approval_id": "wrong-id", "decision": "approve"})
	require.NoError(t, err)
	_, err = wf.Approve(ar.ID, "a1", badSig, "mismatched claims")
	require.Error(t, err)

	goodSig, err := governance.SignDecision(priv, jwt.MapClaims{"approval_id": ar.ID, "decision": "approve"})
	require.NoError(t, err)
	decided, err := wf.Approve(ar.ID, "a1", goodSig, "verified")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalApproved, decided.State)
}

func TestExpireIfPending(t *testing.T) {
	wf, _ := newTestWorkflow(approval.Config{MinApprovers: 1})
	require.NoError(t, wf.Register(approver("a1")))
	req := governance.ActionRequest{ID: "r1", Kind: governance.ActionTransferFunds}
	ar, err := wf.SubmitForApproval(req, governance.AgentIdentity{ID: "agent-1"}, 300_000)
	require.NoError(t, err)

	assert.True(t, wf.ExpireIfPending(ar.ID))
	got, _ := wf.Get(ar.ID)
	assert.Equal(t, governance.ApprovalExpired, got.State)

	assert.False(t, wf.ExpireIfPending(ar.ID), "already expired, second call is a no-op")
}
