package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// EvidenceHashInput is the canonicalized input to an approval request's
// evidence hash. Unlike the audit entry's entryHash/immutableProof (which
// use the spec's explicit field concatenation), this struct's field order
// is not part of the wire contract, so RFC 8785 JSON Canonicalization
// (via gowebpki/jcs) governs it instead of a hand-rolled scheme.
type EvidenceHashInput struct {
	ActionID      string     `json:"action_id"`
	ActionKind    ActionKind `json:"action_kind"`
	AgentID       string     `json:"agent_id"`
	CreatedAt     time.Time  `json:"created_at"`
	PayloadDigest string     `json:"payload_digest"`
}

// EvidenceHash computes a JCS-canonicalized SHA-256 digest over an
// approval request's immutable identifying fields, letting an auditor
// later confirm an ApprovalRequest.EvidenceHash really does bind to the
// action request it claims to gate.
func EvidenceHash(in EvidenceHashInput) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal evidence input: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize evidence input: %w", err)
	}
	h := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// PayloadDigest computes a JCS-canonicalized, stable digest of an opaque
// action payload for use in EvidenceHashInput.PayloadDigest. A nil
// payload digests to the hash of canonical "null".
func PayloadDigest(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	h := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
