package chainadapter

import (
	"context"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/coreerrors"
)

// childStoragePrefix is the ISMP pallet's child-trie prefix named in §4.3's
// Substrate-family internals.
const childStoragePrefix = ":child_storage:default:ISMP"

// SubstrateConfig configures a SubstrateAdapter.
type SubstrateConfig struct {
	StateMachine    codec.StateMachineId
	RPC             string
	Hasher          codec.Hasher // Blake2 is the chain default; Keccak per config.KeccakHashedSubstrateChains
	PalletIndex     uint8
	ChallengePeriod uint64
}

// SubstrateAdapter implements Adapter for Substrate-family chains, using
// go-substrate-rpc-client for RPC transport and chain-native SCALE types — the one place
// this repo leans on that library beyond the EVM adapter's raw json-rpc calls, since
// runtime-metadata-driven storage key construction is exactly what it's built for.
type SubstrateAdapter struct {
	mu sync.RWMutex

	cfg  SubstrateConfig
	api  *gsrpc.SubstrateAPI
	meta *types.Metadata
}

// NewSubstrateAdapter connects to cfg.RPC and fetches runtime metadata once at
// construction, mirroring pkg/chain/strategy.EVMStrategy's dial-and-cache-chain-id
// pattern generalized to Substrate's metadata fetch.
func NewSubstrateAdapter(cfg SubstrateConfig) (*SubstrateAdapter, error) {
	if cfg.RPC == "" {
		return nil, fmt.Errorf("chainadapter: substrate adapter for %s: %w", cfg.StateMachine, coreerrors.ErrMissingChainConfig)
	}
	api, err := gsrpc.NewSubstrateAPI(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: dial substrate rpc %s: %w", cfg.RPC, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("chainadapter: fetch substrate metadata: %w", err)
	}
	return &SubstrateAdapter{cfg: cfg, api: api, meta: meta}, nil
}

func (a *SubstrateAdapter) StateMachine() codec.StateMachineId { return a.cfg.StateMachine }

// Timestamp reads pallet_timestamp's Now storage value (milliseconds since epoch) and
// converts to seconds.
func (a *SubstrateAdapter) Timestamp(_ context.Context) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	key, err := types.CreateStorageKey(a.meta, "Timestamp", "Now", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate timestamp storage key: %w", err)
	}
	var moment types.U64
	ok, err := a.api.RPC.State.GetStorageLatest(key, &moment)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate timestamp read: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint64(moment) / 1000, nil
}

// requestReceiptKeySuffix builds "RequestReceipts" ++ commitment, the child-storage key
// suffix named in §4.3.
func requestReceiptKeySuffix(commitment []byte) []byte {
	return append([]byte("RequestReceipts"), commitment...)
}

func requestCommitmentKeySuffix(commitment []byte) []byte {
	return append([]byte("RequestCommitments"), commitment...)
}

func (a *SubstrateAdapter) RequestReceiptKey(commitment []byte) ([]byte, error) {
	return requestReceiptKeySuffix(commitment), nil
}

func (a *SubstrateAdapter) queryChildStorage(key []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result types.StorageDataRaw
	ok, err := a.api.RPC.State.GetChildStorage([]byte(childStoragePrefix), key, &result)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: substrate child storage read: %w", err)
	}
	if !ok || len(result) == 0 {
		return nil, nil
	}
	return []byte(result), nil
}

func (a *SubstrateAdapter) QueryRequestReceipt(_ context.Context, commitment []byte) ([]byte, error) {
	return a.queryChildStorage(requestReceiptKeySuffix(commitment))
}

// QueryStateProof fetches a child-trie read proof for keys, wrapped as an OverlayProof
// tagged with this chain's hasher, per §4.3's Substrate-family internals.
func (a *SubstrateAdapter) QueryStateProof(_ context.Context, height uint64, keys [][]byte) (StateProof, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	blockHash, err := a.api.RPC.Chain.GetBlockHash(height)
	if err != nil {
		return StateProof{}, fmt.Errorf("chainadapter: substrate block hash at %d: %w", height, coreerrors.ErrHeightNotArchived)
	}

	readProof, err := a.api.RPC.State.GetReadProof(toStorageKeys(keys), blockHash)
	if err != nil {
		return StateProof{}, fmt.Errorf("chainadapter: substrate read proof: %w", err)
	}

	env := codec.OverlayProof{Hasher: a.cfg.Hasher}
	for _, node := range readProof.Proof {
		env.Nodes = append(env.Nodes, []byte(node))
	}

	e := codec.NewEncoder()
	env.Encode(e)
	return StateProof{Kind: "overlay", Payload: e.Bytes()}, nil
}

func toStorageKeys(keys [][]byte) []types.StorageKey {
	out := make([]types.StorageKey, len(keys))
	for i, k := range keys {
		out[i] = types.StorageKey(k)
	}
	return out
}

// QueryProof chooses MMR proof via mmr_queryProof when the counterparty is Evm, or a
// child-trie OverlayProof when the counterparty is Substrate, per §4.3.
func (a *SubstrateAdapter) QueryProof(ctx context.Context, req ProofRequest, counterparty codec.StateMachineId, atHeight *uint64) (StateProof, error) {
	height, err := a.resolveHeight(atHeight)
	if err != nil {
		return StateProof{}, err
	}

	if counterparty.IsSubstrateFamily() {
		var keys [][]byte
		for _, c := range req.RequestCommitments {
			keys = append(keys, requestCommitmentKeySuffix(c))
		}
		return a.QueryStateProof(ctx, height, keys)
	}
	if counterparty.IsEvmFamily() {
		return a.queryMMRProof(height, req)
	}
	return StateProof{}, fmt.Errorf("chainadapter: substrate QueryProof for %s: %w", counterparty, coreerrors.ErrUnsupportedCounterparty)
}

func (a *SubstrateAdapter) queryMMRProof(height uint64, req ProofRequest) (StateProof, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	blockHash, err := a.api.RPC.Chain.GetBlockHash(height)
	if err != nil {
		return StateProof{}, fmt.Errorf("chainadapter: substrate block hash at %d: %w", height, coreerrors.ErrHeightNotArchived)
	}

	leafCount := uint64(len(req.RequestCommitments))
	env := codec.MMRProofEnvelope{LeafCount: leafCount}
	for i := range req.RequestCommitments {
		proof, err := a.api.RPC.MMR.GenerateProof(uint32(height), blockHash)
		if err != nil {
			return StateProof{}, fmt.Errorf("chainadapter: mmr_queryProof: %w", err)
		}
		env.LeafIndexAndPos = append(env.LeafIndexAndPos, codec.LeafIndexAndPos{
			LeafIndex: uint64(i),
			Pos:       uint64(proof.Proof.LeafIndex),
		})
		for _, item := range proof.Proof.Items {
			env.Items = append(env.Items, []byte(item[:]))
		}
	}

	e := codec.NewEncoder()
	env.Encode(e)
	return StateProof{Kind: "mmr", Payload: e.Bytes()}, nil
}

func (a *SubstrateAdapter) resolveHeight(atHeight *uint64) (uint64, error) {
	if atHeight != nil {
		return *atHeight, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	header, err := a.api.RPC.Chain.GetHeaderLatest()
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate latest header: %w", err)
	}
	return uint64(header.Number), nil
}

func (a *SubstrateAdapter) LatestStateMachineHeight(_ context.Context, _ codec.StateMachineId) (uint64, error) {
	return a.resolveHeight(nil)
}

func (a *SubstrateAdapter) ChallengePeriod(_ context.Context, _ codec.StateMachineId) (uint64, error) {
	return a.cfg.ChallengePeriod, nil
}

// StateMachineUpdateTime reads the Timestamp.Now value at the block hash for height,
// giving the wall-clock time the update was registered.
func (a *SubstrateAdapter) StateMachineUpdateTime(_ context.Context, height codec.StateMachineHeight) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	blockHash, err := a.api.RPC.Chain.GetBlockHash(height.Height)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate block hash at %d: %w", height.Height, coreerrors.ErrHeightNotArchived)
	}
	key, err := types.CreateStorageKey(a.meta, "Timestamp", "Now", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate timestamp storage key: %w", err)
	}
	var moment types.U64
	ok, err := a.api.RPC.State.GetStorage(key, &moment, blockHash)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: substrate timestamp at height: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint64(moment) / 1000, nil
}

// Encode prefixes the pallet index and call index 0 before the SCALE-encoded message
// body, per §4.3: "prefixes the pallet index ... and call index 0". GetResponse has no
// Substrate-side handler in this system (Substrate chains never serve as a GET-response
// verifier in §4.6/§4.7's flows), so it is rejected.
func (a *SubstrateAdapter) Encode(msg codec.IsmpMessage) ([]byte, error) {
	if msg.Kind == codec.MessageKindGetResponse {
		return nil, fmt.Errorf("chainadapter: substrate encode: %w", coreerrors.ErrUnsupportedVariant)
	}
	e := codec.NewEncoder()
	e.PutU8(a.cfg.PalletIndex)
	e.PutU8(0)
	if err := msg.Encode(e); err != nil {
		return nil, fmt.Errorf("chainadapter: substrate encode: %w", err)
	}
	return e.Bytes(), nil
}
