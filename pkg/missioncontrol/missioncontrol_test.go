package missioncontrol_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindburn-labs/aegis/pkg/audit"
	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/governance"
	"github.com/mindburn-labs/aegis/pkg/missioncontrol"
)

func newMC(t *testing.T) (*missioncontrol.MissionControl, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := governance.DefaultConfig()
	mc, err := missioncontrol.New(cfg, vc, nil)
	require.NoError(t, err)
	return mc, vc
}

func echoExecutor(payload any) (any, error) {
	return map[string]any{"status": "ok"}, nil
}

// S1 — L0 pass-through.
func TestExecute_L0PassThrough(t *testing.T) {
	mc, _ := newMC(t)
	agent := governance.AgentIdentity{ID: "a", Clearance: governance.L0}

	out, err := mc.Execute(context.Background(), governance.ActionQueryStatus, agent, map[string]any{}, echoExecutor)
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Success)
	require.NotNil(t, out.Entry)
	assert.Equal(t, uint64(1), out.Entry.Sequence)
	assert.Nil(t, out.Entry.Approval)
	assert.True(t, mc.VerifyAuditIntegrity())
}

// S2 — L1 denied.
func TestExecute_ClearanceViolationDenied(t *testing.T) {
	mc, _ := newMC(t)

	var gotEvent governance.Event
	sub := mc.OnEvent(governance.EventClearanceViolation, func(ev governance.Event) { gotEvent = ev })
	defer sub.Unsubscribe()

	agent := governance.AgentIdentity{ID: "a", Clearance: governance.L0}
	out, err := mc.Execute(context.Background(), governance.ActionModifyConfig, agent, nil, echoExecutor)
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeClearanceViolation, gerr.Code)

	require.NotNil(t, out.Entry)
	assert.False(t, out.Entry.Result.Success)
	assert.Contains(t, out.Entry.Result.Error, "Insufficient clearance")
	assert.Equal(t, governance.SeverityCritical, gotEvent.Severity)
}

// S3 — L2 approved.
func TestExecute_L2ApprovedThenResumes(t *testing.T) {
	mc, _ := newMC(t)
	require.NoError(t, mc.RegisterApprover(governance.ApproverIdentity{ID: "ap", Clearance: governance.L2}))

	agent := governance.AgentIdentity{ID: "b", Clearance: governance.L2}
	payload := map[string]any{"resourceId": "r-1"}

	out, err := mc.Execute(context.Background(), governance.ActionDestroyResource, agent, payload, echoExecutor)
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.NotEmpty(t, out.Pending.ApprovalID)

	decided, err := mc.ApproveAction(out.Pending.ApprovalID, "ap", nil, "")
	require.NoError(t, err)
	assert.Equal(t, governance.ApprovalApproved, decided.State)

	out2, err := mc.ResumeExecute(context.Background(), out.Pending.ActionRequestID, governance.ActionDestroyResource, agent, payload, echoExecutor)
	require.NoError(t, err)
	require.NotNil(t, out2.Result)
	assert.True(t, out2.Result.Success)
	require.NotNil(t, out2.Entry.Approval)
	assert.Equal(t, governance.ApprovalApproved, out2.Entry.Approval.State)
}

// S4 — L2 rejected.
func TestExecute_L2RejectedThenResumeFails(t *testing.T) {
	mc, _ := newMC(t)
	require.NoError(t, mc.RegisterApprover(governance.ApproverIdentity{ID: "ap", Clearance: governance.L2}))

	agent := governance.AgentIdentity{ID: "b", Clearance: governance.L2}
	payload := map[string]any{"resourceId": "r-1"}

	out, err := mc.Execute(context.Background(), governance.ActionDestroyResource, agent, payload, echoExecutor)
	require.NoError(t, err)
	require.NotNil(t, out.Pending)

	_, err = mc.RejectAction(out.Pending.ApprovalID, "ap", "risky", nil)
	require.NoError(t, err)

	out2, err := mc.ResumeExecute(context.Background(), out.Pending.ActionRequestID, governance.ActionDestroyResource, agent, payload, echoExecutor)
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeEnforcementRejected, gerr.Code)
	assert.Contains(t, err.Error(), "risky")
	require.NotNil(t, out2.Entry)
	assert.False(t, out2.Entry.Result.Success)
}

// S5 — Emergency stop.
func TestEmergencyStop_RevokesAllPending(t *testing.T) {
	mc, _ := newMC(t)
	require.NoError(t, mc.RegisterApprover(governance.ApproverIdentity{ID: "ap", Clearance: governance.L2}))
	agent := governance.AgentIdentity{ID: "b", Clearance: governance.L2}

	var gotEvent governance.Event
	sub := mc.OnEvent(governance.EventActionRejected, func(ev governance.Event) { gotEvent = ev })
	defer sub.Unsubscribe()

	_, err := mc.Execute(context.Background(), governance.ActionDestroyResource, agent, map[string]any{"resourceId": "r-1"}, echoExecutor)
	require.NoError(t, err)
	_, err = mc.Execute(context.Background(), governance.ActionTransferFunds, agent, map[string]any{"amount": 1}, echoExecutor)
	require.NoError(t, err)

	require.Len(t, mc.GetPendingApprovals(), 2)

	count := mc.EmergencyStop("incident")
	assert.Equal(t, 2, count)
	assert.Empty(t, mc.GetPendingApprovals())
	assert.Equal(t, governance.SeverityCritical, gotEvent.Severity)
	assert.Equal(t, 2, gotEvent.Data["revoked_count"])
}

// S6 — Tamper detection.
func TestExportAuditTrail_RoundTripsAndDetectsTamper(t *testing.T) {
	mc, _ := newMC(t)
	agent := governance.AgentIdentity{ID: "a", Clearance: governance.L0}

	_, err := mc.Execute(context.Background(), governance.ActionQueryStatus, agent, nil, echoExecutor)
	require.NoError(t, err)
	_, err = mc.Execute(context.Background(), governance.ActionReadPublic, agent, nil, echoExecutor)
	require.NoError(t, err)

	data, err := mc.ExportAuditTrail()
	require.NoError(t, err)

	_, valid, err := audit.ParseExport(data)
	require.NoError(t, err)
	assert.True(t, valid)

	var exp audit.Export
	require.NoError(t, json.Unmarshal(data, &exp))
	require.Len(t, exp.Entries, 2)
	exp.Entries[0].EntryHash = "deadbeef"
	mutated, err := json.Marshal(exp)
	require.NoError(t, err)

	_, valid, err = audit.ParseExport(mutated)
	require.NoError(t, err)
	assert.False(t, valid, "mutated export must fail independent re-verification")

	assert.True(t, mc.VerifyAuditIntegrity(), "in-memory trail is untouched and must still verify")
}

func TestExecute_ExecutionFailedRecordsFailedEntry(t *testing.T) {
	mc, _ := newMC(t)
	agent := governance.AgentIdentity{ID: "a", Clearance: governance.L1}

	boom := errors.New("downstream unavailable")
	out, err := mc.Execute(context.Background(), governance.ActionDeployService, agent, nil, func(any) (any, error) {
		return nil, boom
	})
	require.Error(t, err)
	gerr, ok := err.(*governance.Error)
	require.True(t, ok)
	assert.Equal(t, governance.CodeExecutionFailed, gerr.Code)
	require.NotNil(t, out.Entry)
	assert.False(t, out.Entry.Result.Success)
	assert.Contains(t, out.Entry.Result.Error, "downstream unavailable")
}

func TestGetActiveContexts_EmptyAfterCompletion(t *testing.T) {
	mc, _ := newMC(t)
	agent := governance.AgentIdentity{ID: "a", Clearance: governance.L0}
	_, err := mc.Execute(context.Background(), governance.ActionQueryStatus, agent, nil, echoExecutor)
	require.NoError(t, err)
	assert.Empty(t, mc.GetActiveContexts())
}
