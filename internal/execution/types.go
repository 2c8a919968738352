package execution

import (
	"time"

	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

type OperationStatus string

const (
	OperationStatusSubmitted OperationStatus = "submitted"
	OperationStatusConfirmed OperationStatus = "confirmed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusTimedOut  OperationStatus = "timed_out"
	OperationStatusCancelled OperationStatus = "cancelled"
)

type OperationKind string

const (
	OperationKindClaim   OperationKind = "claim"
	OperationKindApprove OperationKind = "approve"
	OperationKindTrade   OperationKind = "trade"
	OperationKindTrack   OperationKind = "track"
)

// OperationRecord is the stored history of one tracked write.
type OperationRecord struct {
	OperationID string          `json:"operation_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Kind        OperationKind   `json:"kind"`
	Label       string          `json:"label"`
	Status      OperationStatus `json:"status"`
	TxHash      string          `json:"tx_hash,omitempty"`
	ChainID     string          `json:"chain_id"`
	From        string          `json:"from,omitempty"`
	Target      string          `json:"target,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Attempts    int             `json:"attempts"`
	ElapsedMS   int64           `json:"elapsed_ms"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func NewOperationRecord(operationID string, kind OperationKind, label, chainID string) OperationRecord {
	now := time.Now().UTC().Format(time.RFC3339)
	return OperationRecord{
		OperationID: operationID,
		Kind:        kind,
		Label:       label,
		Status:      OperationStatusSubmitted,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *OperationRecord) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Apply copies a tracker outcome onto the record.
func (r *OperationRecord) Apply(o tracker.Outcome) {
	switch o.Kind {
	case tracker.KindConfirmed:
		r.Status = OperationStatusConfirmed
	case tracker.KindTimedOut:
		r.Status = OperationStatusTimedOut
	case tracker.KindCancelled:
		r.Status = OperationStatusCancelled
	default:
		r.Status = OperationStatusFailed
	}
	r.TxHash = o.Hash.Hex()
	r.Reason = o.Reason
	r.Attempts = o.Attempts
	r.ElapsedMS = o.Elapsed.Milliseconds()
	r.Touch()
}
