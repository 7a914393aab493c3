// Package chainadapter implements the polymorphic Chain Adapter (C3): a common
// operation surface over Evm, Substrate, and Tron chains, realized per-family the way
// pkg/chain/strategy realizes ChainExecutionStrategy per blockchain platform — a
// ChainConfig-driven constructor, a mutex-guarded struct wrapping the family's RPC
// client, and family-specific internals behind the shared interface.
package chainadapter

import (
	"context"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// StateProof is the family-encoded proof envelope query_state_proof returns. Payload is
// opaque outside the owning adapter; Kind names which codec.* envelope it contains.
type StateProof struct {
	Kind    string // "mmr", "overlay", "evm-account-storage"
	Payload []byte
}

// AccountStorageProof is the EVM-specific {contract_proof, storage_proof} shape named in
// §4.3's EVM-family internals.
type AccountStorageProof struct {
	ContractProof [][]byte
	StorageProof  []StorageProofEntry
}

// StorageProofEntry pairs a storage key's address with its deduplicated trie proof nodes.
type StorageProofEntry struct {
	Address    []byte
	ProofNodes [][]byte
}

// Adapter is the public contract every Chain Adapter implementation exposes, per
// SPEC_FULL.md §4.3's operation table.
type Adapter interface {
	// StateMachine identifies which chain this adapter instance talks to.
	StateMachine() codec.StateMachineId

	// Timestamp returns the chain's current wall-clock time in Unix seconds.
	Timestamp(ctx context.Context) (uint64, error)

	// RequestReceiptKey returns the family-specific storage key for a request's receipt.
	RequestReceiptKey(commitment []byte) ([]byte, error)

	// QueryRequestReceipt returns the receipt blob at commitment's receipt key, or nil if
	// the storage slot is empty/zero.
	QueryRequestReceipt(ctx context.Context, commitment []byte) ([]byte, error)

	// QueryStateProof returns a family-encoded proof of the given keys at height.
	QueryStateProof(ctx context.Context, height uint64, keys [][]byte) (StateProof, error)

	// QueryProof produces the family-appropriate proof of a request/response set for
	// delivery to counterparty, optionally pinned at a specific height.
	QueryProof(ctx context.Context, req ProofRequest, counterparty codec.StateMachineId, atHeight *uint64) (StateProof, error)

	// LatestStateMachineHeight returns the latest height this chain has recorded for id.
	LatestStateMachineHeight(ctx context.Context, id codec.StateMachineId) (uint64, error)

	// ChallengePeriod returns the configured challenge period, in seconds, for id.
	ChallengePeriod(ctx context.Context, id codec.StateMachineId) (uint64, error)

	// StateMachineUpdateTime returns the wall-clock time (Unix seconds) at which height
	// was registered.
	StateMachineUpdateTime(ctx context.Context, height codec.StateMachineHeight) (uint64, error)

	// Encode renders msg as calldata/extrinsic bytes this adapter's handler accepts.
	Encode(msg codec.IsmpMessage) ([]byte, error)
}

// ProofRequest names what QueryProof should produce a proof for: a set of request
// commitments (the common PostRequest/TimeoutPostRequest case) or a single GetRequest
// needing both a source proof and a response proof.
type ProofRequest struct {
	RequestCommitments [][]byte
	GetRequest         *codec.GetRequest
}
