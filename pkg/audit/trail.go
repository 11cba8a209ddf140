// Package audit implements the kernel's tamper-evident, hash-chained
// append-only audit trail (spec.md §4.2). Grounded almost directly on
// pkg/ledger/ledger.go's Append/Verify/Head shape and its injectable
// clock, adapted from a single content hash to the spec's two-hash
// entryHash/immutableProof scheme with the spec's own exact field
// ordering (see canonical.go).
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/google/uuid"
	"github.com/mindburn-labs/aegis/pkg/clock"
	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Config configures a Trail's hash algorithm and retention policy.
// KeyMaterial, if set, switches genesis derivation to HKDF-SHA256 over
// the supplied secret (the "KeyedGenesis" mode for external-timestamping
// callers who want their anchor tied to key material they control,
// grounded on pkg/governance/keyring.go's HKDF usage).
type Config struct {
	Algorithm        HashAlgorithm
	RetentionDays    int
	EnforceIntegrity bool
	KeyMaterial      []byte

	// PolicySnapshot is embedded verbatim in every export (see export.go)
	// so an exported trail stays comparable across policy revisions even
	// after the live governance.Config it was produced under has changed.
	PolicySnapshot governance.Config
}

// TamperReason identifies which chain invariant VerifyChain found broken.
type TamperReason string

const (
	ReasonPreviousHashMismatch TamperReason = "PREVIOUS_HASH_MISMATCH"
	ReasonEntryHashMismatch    TamperReason = "ENTRY_HASH_MISMATCH"
	ReasonProofMismatch        TamperReason = "PROOF_MISMATCH"
)

// Trail is the append-only, hash-chained audit log. Every exported method
// is safe for concurrent use.
type Trail struct {
	mu          sync.RWMutex
	cfg         Config
	entries     []governance.AuditEntry
	genesisHash string
	seq         uint64
	clock       clock.Clock
	emitter     governance.EventEmitter
}

// NewTrail constructs a Trail. emitter may be nil, in which case tamper
// detection is silent (still returns false from VerifyChain, just emits
// nothing).
func NewTrail(cfg Config, clk clock.Clock, emitter governance.EventEmitter) *Trail {
	if clk == nil {
		clk = clock.Real()
	}
	t := &Trail{cfg: cfg, clock: clk, emitter: emitter}
	now := clk.Now()
	if len(cfg.KeyMaterial) > 0 {
		t.genesisHash = keyedGenesis(cfg, now)
	} else {
		t.genesisHash = hashBytes(cfg.Algorithm, genesisBytes(cfg, now))
	}
	return t
}

func keyedGenesis(cfg Config, createdAt time.Time) string {
	r := hkdf.New(sha256.New, cfg.KeyMaterial, nil, genesisBytes(cfg, createdAt))
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-Expand only fails if the requested length exceeds 255*hash
		// size; sha256.Size is far under that, so this is unreachable.
		panic("audit: hkdf expand failed: " + err.Error())
	}
	return hex.EncodeToString(out)
}

// Record appends a new entry, computing its entryHash and immutableProof
// from the current head and returning the finished entry.
func (t *Trail) Record(req governance.ActionRequest, res governance.ActionResult, agent governance.AgentIdentity, approval *governance.ApprovalRequest) governance.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	prev := t.genesisHash
	if n := len(t.entries); n > 0 {
		prev = t.entries[n-1].EntryHash
	}

	entry := governance.AuditEntry{
		ID:           uuid.New().String(),
		Timestamp:    t.clock.Now(),
		Sequence:     t.seq,
		Request:      req,
		Result:       res,
		Agent:        agent,
		Approval:     approval,
		PreviousHash: prev,
	}
	entry.EntryHash = hashBytes(t.cfg.Algorithm, canonicalEntryBytes(entry))
	entry.ImmutableProof = hashBytes(t.cfg.Algorithm, canonicalProofBytes(entry.EntryHash, entry.PreviousHash, entry.Sequence, entry.Timestamp))

	t.entries = append(t.entries, entry)
	return entry
}

// VerifyChain walks every entry, recomputing entryHash and immutableProof
// and checking previousHash linkage. It stops and emits exactly one
// audit-tamper-detected event at the first break found, so a single
// tampered field never produces a flood of events for every entry
// downstream of it.
func (t *Trail) VerifyChain() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.verifyLocked()
}

func (t *Trail) verifyLocked() bool {
	prev := t.genesisHash
	for _, e := range t.entries {
		if e.PreviousHash != prev {
			t.emit(ReasonPreviousHashMismatch, e.Sequence)
			return false
		}
		if wantHash := hashBytes(t.cfg.Algorithm, canonicalEntryBytes(e)); wantHash != e.EntryHash {
			t.emit(ReasonEntryHashMismatch, e.Sequence)
			return false
		}
		if wantProof := hashBytes(t.cfg.Algorithm, canonicalProofBytes(e.EntryHash, e.PreviousHash, e.Sequence, e.Timestamp)); wantProof != e.ImmutableProof {
			t.emit(ReasonProofMismatch, e.Sequence)
			return false
		}
		prev = e.EntryHash
	}
	return true
}

func (t *Trail) emit(reason TamperReason, seq uint64) {
	if t.emitter == nil {
		return
	}
	t.emitter.Emit(governance.Event{
		Kind:      governance.EventAuditTamperDetected,
		Severity:  governance.SeverityCritical,
		Timestamp: t.clock.Now(),
		Data:      map[string]any{"reason": string(reason), "sequence": seq},
	})
}

// Get returns the entry at the given sequence number (1-indexed).
func (t *Trail) Get(seq uint64) (governance.AuditEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if seq == 0 || seq > uint64(len(t.entries)) {
		return governance.AuditEntry{}, false
	}
	return t.entries[seq-1], true
}

// All returns a copy of every entry recorded so far, in sequence order.
func (t *Trail) All() []governance.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]governance.AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ByAction returns every entry whose action request carries the given
// kind, per spec.md §4.2's byAction(kind) query.
func (t *Trail) ByAction(kind governance.ActionKind) []governance.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []governance.AuditEntry
	for _, e := range t.entries {
		if e.Request.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ByAgent returns every entry attributed to the given agent id.
func (t *Trail) ByAgent(agentID string) []governance.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []governance.AuditEntry
	for _, e := range t.entries {
		if e.Agent.ID == agentID {
			out = append(out, e)
		}
	}
	return out
}

// ByTimeRange returns every entry with from <= timestamp < to.
func (t *Trail) ByTimeRange(from, to time.Time) []governance.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []governance.AuditEntry
	for _, e := range t.entries {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out
}

// LatestAnchor returns the head hash: the last entry's entryHash, or the
// genesis hash if the trail is empty.
func (t *Trail) LatestAnchor() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n := len(t.entries); n > 0 {
		return t.entries[n-1].EntryHash
	}
	return t.genesisHash
}

// Len returns the number of entries recorded.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
