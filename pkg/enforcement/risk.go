package enforcement

import "github.com/mindburn-labs/aegis/pkg/governance"

// defaultRiskWeights is an advisory, non-blocking scoring table attached
// to EnforcementVerdict for operator review. It never changes Allowed —
// spec.md's Non-goals exclude throttling — grounded on
// pkg/governance/risk_envelope.go's AggregateRiskAccounting idea of a
// weighted score alongside (not instead of) a hard allow/deny decision.
var defaultRiskWeights = map[governance.ActionKind]float64{
	governance.ActionReadPublic:         0.0,
	governance.ActionQueryStatus:        0.0,
	governance.ActionListResources:      0.5,
	governance.ActionModifyConfig:       2.0,
	governance.ActionDeployService:      3.0,
	governance.ActionRotateCredential:   3.0,
	governance.ActionManageSecrets:      5.0,
	governance.ActionExecuteCommand:     4.0,
	governance.ActionDestroyResource:    8.0,
	governance.ActionModifyProduction:   7.0,
	governance.ActionTransferFunds:      9.5,
	governance.ActionDeleteAuditLog:     10.0,
	governance.ActionEscalatePrivileges: 9.0,
	governance.ActionExecuteArbitrary:   10.0,
}

// RiskScore returns the advisory risk weight for an action kind. The
// table above lists every kind in types.go, but types.go's init check
// covers only the clearance map, not this table; a kind with no entry
// here scores a conservative 1.0 rather than 0.
func RiskScore(kind governance.ActionKind) float64 {
	if w, ok := defaultRiskWeights[kind]; ok {
		return w
	}
	return 1.0
}
