package enforcement

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DenialReceipt is a lightweight record of one preExecute short-circuit,
// grounded on pkg/governance/denial.go's DenialReceipt/DenialLedger —
// gives an operator a fast "why was this denied" view without re-reading
// full audit entries.
type DenialReceipt struct {
	ID       string
	DeniedAt time.Time
	ActionID string
	AgentID  string
	Reason   string
	Detail   string
}

// DenialLedger accumulates DenialReceipts in memory for the lifetime of
// an Engine.
type DenialLedger struct {
	mu       sync.Mutex
	receipts []DenialReceipt
}

// NewDenialLedger constructs an empty ledger.
func NewDenialLedger() *DenialLedger { return &DenialLedger{} }

// Record appends a new denial receipt and returns it.
func (d *DenialLedger) Record(actionID, agentID, reason, detail string, at time.Time) DenialReceipt {
	r := DenialReceipt{
		ID:       uuid.New().String(),
		DeniedAt: at,
		ActionID: actionID,
		AgentID:  agentID,
		Reason:   reason,
		Detail:   detail,
	}
	d.mu.Lock()
	d.receipts = append(d.receipts, r)
	d.mu.Unlock()
	return r
}

// All returns a copy of every denial receipt recorded so far.
func (d *DenialLedger) All() []DenialReceipt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DenialReceipt, len(d.receipts))
	copy(out, d.receipts)
	return out
}
