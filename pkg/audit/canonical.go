package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/mindburn-labs/aegis/pkg/governance"
)

// Field separator for the canonical byte encodings below. The unit
// separator control character can never legitimately appear in any of
// the fields being joined (ids, timestamps, booleans, hex hashes), so it
// gives an unambiguous delimiter without a JSON library's field-ordering
// quirks getting in the way.
const fieldSep = "\x1f"

func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// canonicalEntryBytes encodes exactly the fields spec.md §4.2 names for
// entryHash, in the documented order: id, timestamp, sequence,
// action-request id, success flag, agent id, previous hash.
func canonicalEntryBytes(e governance.AuditEntry) []byte {
	fields := []string{
		e.ID,
		isoMillis(e.Timestamp),
		strconv.FormatUint(e.Sequence, 10),
		e.Request.ID,
		strconv.FormatBool(e.Result.Success),
		e.Agent.ID,
		e.PreviousHash,
	}
	return []byte(strings.Join(fields, fieldSep))
}

// canonicalProofBytes encodes the fields spec.md §4.2 names for
// immutableProof: entryHash, previousHash, sequence, timestamp.
func canonicalProofBytes(entryHash, previousHash string, seq uint64, ts time.Time) []byte {
	fields := []string{
		entryHash,
		previousHash,
		strconv.FormatUint(seq, 10),
		isoMillis(ts),
	}
	return []byte(strings.Join(fields, fieldSep))
}

// genesisBytes seeds the chain's first previousHash from the trail's own
// configuration and creation time, so two trails with different hash
// algorithms or retention policies never share a genesis hash by accident.
func genesisBytes(cfg Config, createdAt time.Time) []byte {
	fields := []string{
		string(cfg.Algorithm),
		strconv.Itoa(cfg.RetentionDays),
		isoMillis(createdAt),
	}
	return []byte(strings.Join(fields, fieldSep))
}
