package governance

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Config is the kernel's full governance configuration, covering both the
// Enforcement Engine's L2 deadline/audit settings and the Approval
// Workflow's quorum/escalation settings. Loaded from YAML via pkg/config.
type Config struct {
	L2ApprovalTimeoutMs  int64  `yaml:"l2_approval_timeout_ms" json:"l2ApprovalTimeoutMs"`
	RequiredApprovers    int    `yaml:"required_approvers" json:"requiredApprovers"`
	AutoRejectOnTimeout  bool   `yaml:"auto_reject_on_timeout" json:"autoRejectOnTimeout"`
	AuditRetentionDays   int    `yaml:"audit_retention_days" json:"auditRetentionDays"`
	HashAlgorithm        string `yaml:"hash_algorithm" json:"hashAlgorithm"`
	EnableImmutableAudit bool   `yaml:"enable_immutable_audit" json:"enableImmutableAudit"`
	EmergencyOverrideKey string `yaml:"emergency_override_key,omitempty" json:"emergencyOverrideKey,omitempty"`

	MinApprovers        int      `yaml:"min_approvers" json:"minApprovers"`
	MaxApprovers        int      `yaml:"max_approvers" json:"maxApprovers"`
	RequireUnanimous    bool     `yaml:"require_unanimous" json:"requireUnanimous"`
	EscalationTimeoutMs int64    `yaml:"escalation_timeout_ms" json:"escalationTimeoutMs"`
	NotifyChannels      []string `yaml:"notify_channels,omitempty" json:"notifyChannels,omitempty"`
	RequireMFA          bool     `yaml:"require_mfa" json:"requireMFA"`

	PolicyVersion string `yaml:"policy_version" json:"policyVersion"`
}

// DefaultConfig mirrors the values a freshly-deployed kernel ships with.
// EscalationTimeoutMs is 60% of L2ApprovalTimeoutMs so the escalation
// warning always fires strictly before the hard deadline (see
// SPEC_FULL.md §1's resolution of the escalation-vs-expiry open question).
func DefaultConfig() Config {
	return Config{
		L2ApprovalTimeoutMs:  300_000,
		RequiredApprovers:    1,
		AutoRejectOnTimeout:  true,
		AuditRetentionDays:   365,
		HashAlgorithm:        "SHA-256",
		EnableImmutableAudit: true,
		MinApprovers:         1,
		MaxApprovers:         3,
		RequireUnanimous:     false,
		EscalationTimeoutMs:  180_000,
		RequireMFA:           true,
		PolicyVersion:        "1.0.0",
	}
}

// Validate checks the fields that matter for correctness rather than just
// shape: a supported hash algorithm, a parseable semver policy version,
// and an escalation timer that actually precedes the hard deadline.
func (c Config) Validate() error {
	switch c.HashAlgorithm {
	case "SHA-256", "SHA-384", "SHA-512":
	default:
		return fmt.Errorf("unsupported hash algorithm %q", c.HashAlgorithm)
	}
	if c.PolicyVersion != "" {
		if _, err := semver.NewVersion(c.PolicyVersion); err != nil {
			return fmt.Errorf("invalid policy version %q: %w", c.PolicyVersion, err)
		}
	}
	if c.EscalationTimeoutMs > 0 && c.L2ApprovalTimeoutMs > 0 && c.EscalationTimeoutMs >= c.L2ApprovalTimeoutMs {
		return fmt.Errorf("escalation_timeout_ms must be strictly less than l2_approval_timeout_ms")
	}
	if c.MinApprovers < 0 || c.MaxApprovers < 0 {
		return fmt.Errorf("min_approvers and max_approvers must not be negative")
	}
	if c.MaxApprovers > 0 && c.MinApprovers > c.MaxApprovers {
		return fmt.Errorf("min_approvers must not exceed max_approvers")
	}
	return nil
}
