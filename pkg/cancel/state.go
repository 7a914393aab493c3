package cancel

import (
	"fmt"

	"github.com/certen/hyperbridge-core/pkg/kvstore"
)

// CancellationStage enumerates the cross-chain cancellation state machine's persisted
// stages, in the order §4.7 advances them.
type CancellationStage string

const (
	StageAwaitingNonInclusion    CancellationStage = "awaiting_non_inclusion"
	StageAwaitingGetRequest      CancellationStage = "awaiting_get_request"
	StageAwaitingSourceFinalized CancellationStage = "awaiting_source_finalized"
	StageSubmittingGetRequest    CancellationStage = "submitting_get_request"
	StageAwaitingDelivered       CancellationStage = "awaiting_delivered"
	StageAwaitingFinalized       CancellationStage = "awaiting_finalized"
	StageDone                    CancellationStage = "done"
)

// cancellationKeyPrefix namespaces this package's entries within the shared KV store, as
// pkg/intent/sessionstore.go does for session keys.
const cancellationKeyPrefix = "intents::cancel::"

// cancellationState is the persisted record one in-flight cross-chain cancellation
// carries between steps, so a process restart resumes exactly where it left off instead
// of re-deriving proofs it already fetched.
type cancellationState struct {
	Stage CancellationStage `json:"stage"`

	// Populated by step 1 (destination non-inclusion proof).
	NonInclusionHeight uint64 `json:"non_inclusion_height,omitempty"`
	NonInclusionProof  []byte `json:"non_inclusion_proof,omitempty"`

	// Populated by step 2 (GET-request dispatch observed on source).
	SourceTxHash   string `json:"source_tx_hash,omitempty"`
	GetRequest     []byte `json:"get_request,omitempty"` // SCALE-encoded codec.GetRequest
	GetCommitment  []byte `json:"get_commitment,omitempty"`

	// Populated by step 3 (source finality + proofs, ready to submit to the hub).
	SourceFinalizedHeight uint64 `json:"source_finalized_height,omitempty"`
	SourceProof           []byte `json:"source_proof,omitempty"`
	// ResponseProof is not written by any step: the hub submission uses
	// NonInclusionProof as its response proof.
	ResponseProof         []byte `json:"response_proof,omitempty"`
	HubSubmitAttempts     int    `json:"hub_submit_attempts,omitempty"`
}

func cancellationKey(orderID [32]byte) []byte {
	return append([]byte(cancellationKeyPrefix), orderID[:]...)
}

// loadState reads the persisted state for orderID, returning a fresh
// StageAwaitingNonInclusion record if none exists yet.
func (c *Canceller) loadState(orderID [32]byte) (cancellationState, error) {
	var st cancellationState
	ok, err := kvstore.GetJSON(c.kv, cancellationKey(orderID), &st)
	if err != nil {
		return cancellationState{}, fmt.Errorf("cancel: load state for %x: %w", orderID, err)
	}
	if !ok {
		return cancellationState{Stage: StageAwaitingNonInclusion}, nil
	}
	return st, nil
}

func (c *Canceller) saveState(orderID [32]byte, st cancellationState) error {
	if err := kvstore.PutJSON(c.kv, cancellationKey(orderID), st); err != nil {
		return fmt.Errorf("cancel: save state for %x: %w", orderID, err)
	}
	return nil
}

// Purge removes every persisted entry for orderID, per §4.7 step 4's "purge all
// persisted cancellation entries for the order" on reaching HYPERBRIDGE_FINALIZED.
func (c *Canceller) Purge(orderID [32]byte) error {
	if err := c.kv.Delete(cancellationKey(orderID)); err != nil {
		return fmt.Errorf("cancel: purge state for %x: %w", orderID, err)
	}
	return nil
}
