package audit

import (
	"encoding/json"
	"fmt"

	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Export is the serializable form of a Trail, per spec.md §6's "Audit
// export format". ChainValid is computed at export time so a consumer
// gets an immediate signal without re-verifying, though ParseExport
// always re-verifies independently rather than trusting that field.
type Export struct {
	GenesisHash string                  `json:"genesisHash"`
	EntryCount  int                     `json:"entryCount"`
	Algorithm   HashAlgorithm           `json:"algorithm"`
	Config      governance.Config       `json:"config"`
	Entries     []governance.AuditEntry `json:"entries"`
	ChainValid  bool                    `json:"chainValid"`
}

// ExportJSON serializes the full trail, grounded on the kernel lineage's
// export-pack pattern (a single JSON document a downstream system can
// archive or replay verification against, see pkg/audit/export.go of the
// teacher lineage's own evidence pack generator).
func (t *Trail) ExportJSON() ([]byte, error) {
	t.mu.RLock()
	entries := make([]governance.AuditEntry, len(t.entries))
	copy(entries, t.entries)
	genesis := t.genesisHash
	alg := t.cfg.Algorithm
	policy := t.cfg.PolicySnapshot
	t.mu.RUnlock()

	valid := t.VerifyChain()
	exp := Export{
		GenesisHash: genesis,
		EntryCount:  len(entries),
		Algorithm:   alg,
		Config:      policy,
		Entries:     entries,
		ChainValid:  valid,
	}
	b, err := json.Marshal(exp)
	if err != nil {
		return nil, fmt.Errorf("marshal audit export: %w", err)
	}
	return b, nil
}

// ParseExport parses a previously exported trail and independently
// re-verifies its chain from the parsed entries — it never trusts the
// embedded ChainValid flag, closing the round trip spec.md §8's testable
// property 8 describes.
func ParseExport(data []byte) (*Export, bool, error) {
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, false, fmt.Errorf("parse audit export: %w", err)
	}
	valid := verifyEntries(exp.GenesisHash, exp.Algorithm, exp.Entries)
	return &exp, valid, nil
}

func verifyEntries(genesis string, alg HashAlgorithm, entries []governance.AuditEntry) bool {
	prev := genesis
	for _, e := range entries {
		if e.PreviousHash != prev {
			return false
		}
		if hashBytes(alg, canonicalEntryBytes(e)) != e.EntryHash {
			return false
		}
		if hashBytes(alg, canonicalProofBytes(e.EntryHash, e.PreviousHash, e.Sequence, e.Timestamp)) != e.ImmutableProof {
			return false
		}
		prev = e.EntryHash
	}
	return true
}
