package chainadapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/coreerrors"
	"github.com/certen/hyperbridge-core/pkg/mmr"
)

// EvmConfig configures an EvmAdapter. Grounded on pkg/chain/strategy.EVMStrategyConfig.
type EvmConfig struct {
	StateMachine    codec.StateMachineId
	RPC             string
	HandlerAddress  string
	ChallengePeriod uint64 // seconds, static per-chain per §4.3
}

// EvmAdapter implements Adapter for Evm and (via TronAdapter's embedding) Tron-family
// chains. Grounded structurally on pkg/chain/strategy.EVMStrategy: ethclient.Client plus
// an RWMutex-guarded struct, dial-once-at-construction, context-scoped calls throughout.
type EvmAdapter struct {
	mu sync.RWMutex

	cfg     EvmConfig
	client  *ethclient.Client
	rpcConn *rpc.Client
	handler common.Address
}

// NewEvmAdapter dials cfg.RPC and returns a ready-to-use EvmAdapter.
func NewEvmAdapter(ctx context.Context, cfg EvmConfig) (*EvmAdapter, error) {
	if cfg.RPC == "" {
		return nil, fmt.Errorf("chainadapter: evm adapter for %s: %w", cfg.StateMachine, coreerrors.ErrMissingChainConfig)
	}
	rpcConn, err := rpc.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: dial evm rpc %s: %w", cfg.RPC, err)
	}
	client := ethclient.NewClient(rpcConn)

	a := &EvmAdapter{cfg: cfg, client: client, rpcConn: rpcConn}
	if cfg.HandlerAddress != "" {
		if !common.IsHexAddress(cfg.HandlerAddress) {
			return nil, fmt.Errorf("chainadapter: invalid handler address %q", cfg.HandlerAddress)
		}
		a.handler = common.HexToAddress(cfg.HandlerAddress)
	}
	return a, nil
}

func (a *EvmAdapter) StateMachine() codec.StateMachineId { return a.cfg.StateMachine }

func (a *EvmAdapter) Timestamp(ctx context.Context) (uint64, error) {
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: evm timestamp: %w", err)
	}
	return header.Time, nil
}

// RequestReceiptKey derives the storage key for a request's receipt at slot 2, per
// §4.3's EVM-family internals.
func (a *EvmAdapter) RequestReceiptKey(commitment []byte) ([]byte, error) {
	return codec.RequestReceiptSlot(commitment), nil
}

func (a *EvmAdapter) QueryRequestReceipt(ctx context.Context, commitment []byte) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	key := codec.RequestReceiptSlot(commitment)
	val, err := a.client.StorageAt(ctx, a.handler, common.BytesToHash(key), nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: evm storage read: %w", err)
	}
	if isZero(val) {
		return nil, nil
	}
	return val, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// ethStorageProof mirrors the subset of the eth_getProof JSON-RPC response this adapter
// consumes.
type ethStorageProof struct {
	AccountProof []string `json:"accountProof"`
	StorageProof []struct {
		Key   string   `json:"key"`
		Value string   `json:"value"`
		Proof []string `json:"proof"`
	} `json:"storageProof"`
}

// QueryStateProof fetches an eth_getProof account+storage proof for keys at height and
// wraps it as an AccountStorageProof, deduplicating proof nodes by identity per §4.3.
func (a *EvmAdapter) QueryStateProof(ctx context.Context, height uint64, keys [][]byte) (StateProof, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	hexKeys := make([]string, len(keys))
	for i, k := range keys {
		hexKeys[i] = hexutil.Encode(k)
	}

	var resp ethStorageProof
	blockTag := hexutil.EncodeUint64(height)
	if err := a.rpcConn.CallContext(ctx, &resp, "eth_getProof", a.handler, hexKeys, blockTag); err != nil {
		return StateProof{}, fmt.Errorf("chainadapter: evm eth_getProof: %w", err)
	}

	proof := AccountStorageProof{ContractProof: dedupeHexNodes(resp.AccountProof)}
	for _, sp := range resp.StorageProof {
		proof.StorageProof = append(proof.StorageProof, StorageProofEntry{
			Address:    a.handler.Bytes(),
			ProofNodes: dedupeHexNodes(sp.Proof),
		})
	}

	e := codec.NewEncoder()
	encodeAccountStorageProof(e, proof)
	return StateProof{Kind: "evm-account-storage", Payload: e.Bytes()}, nil
}

func dedupeHexNodes(nodes []string) [][]byte {
	seen := make(map[string]bool, len(nodes))
	out := make([][]byte, 0, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		b, err := hexutil.Decode(n)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

func encodeAccountStorageProof(e *codec.Encoder, p AccountStorageProof) {
	e.PutCompact(uint64(len(p.ContractProof)))
	for _, n := range p.ContractProof {
		e.PutBytes(n)
	}
	e.PutCompact(uint64(len(p.StorageProof)))
	for _, entry := range p.StorageProof {
		e.PutBytes(entry.Address)
		e.PutCompact(uint64(len(entry.ProofNodes)))
		for _, n := range entry.ProofNodes {
			e.PutBytes(n)
		}
	}
}

// QueryProof fabricates an MMR multiproof envelope for the given request commitments:
// leaf index/position pairs, the leaf count and the proof items. The synthetic-leaf
// construction lives in pkg/mmr. The height (atHeight, or the latest block) is resolved
// but not written into the envelope, which has no height field. This adapter is
// EVM-as-source and never sources an overlay/child-trie proof, so the MMR envelope is
// the only shape it produces, whatever the counterparty family.
func (a *EvmAdapter) QueryProof(ctx context.Context, req ProofRequest, counterparty codec.StateMachineId, atHeight *uint64) (StateProof, error) {
	if len(req.RequestCommitments) == 0 {
		return StateProof{}, fmt.Errorf("chainadapter: evm QueryProof: %w", coreerrors.ErrUnsupportedCounterparty)
	}

	if _, err := a.resolveHeight(ctx, atHeight); err != nil {
		return StateProof{}, err
	}

	treeSize := uint64(len(req.RequestCommitments))
	env := codec.MMRProofEnvelope{LeafCount: treeSize}
	for i, commitment := range req.RequestCommitments {
		_, proof, err := mmr.GenerateRootWithProof(commitment, treeSize)
		if err != nil {
			return StateProof{}, fmt.Errorf("chainadapter: generate mmr proof: %w", err)
		}
		env.LeafIndexAndPos = append(env.LeafIndexAndPos, codec.LeafIndexAndPos{
			LeafIndex: uint64(i),
			Pos:       mmr.LeafIndexToPosition(uint64(i)),
		})
		for _, item := range proof.Items {
			node, decErr := hexutil.Decode("0x" + item.Hash)
			if decErr != nil {
				continue
			}
			env.Items = append(env.Items, node)
		}
	}

	e := codec.NewEncoder()
	env.Encode(e)
	return StateProof{Kind: "mmr", Payload: e.Bytes()}, nil
}

func (a *EvmAdapter) resolveHeight(ctx context.Context, atHeight *uint64) (uint64, error) {
	if atHeight != nil {
		return *atHeight, nil
	}
	num, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: evm block number: %w", err)
	}
	return num, nil
}

func (a *EvmAdapter) LatestStateMachineHeight(ctx context.Context, id codec.StateMachineId) (uint64, error) {
	key := codec.LatestStateMachineHeightSlot(idKeyBytes(id))
	val, err := a.client.StorageAt(ctx, a.handler, common.BytesToHash(key), nil)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: evm latest height: %w", err)
	}
	return new(big.Int).SetBytes(val).Uint64(), nil
}

func idKeyBytes(id codec.StateMachineId) []byte {
	return []byte(id.String())
}

func (a *EvmAdapter) ChallengePeriod(ctx context.Context, id codec.StateMachineId) (uint64, error) {
	return a.cfg.ChallengePeriod, nil
}

func (a *EvmAdapter) StateMachineUpdateTime(ctx context.Context, height codec.StateMachineHeight) (uint64, error) {
	slot := codec.StateCommitmentFieldSlot(idKeyBytes(height.Id), height.Height, codec.StateCommitmentFieldTimestamp)
	val, err := a.client.StorageAt(ctx, a.handler, common.BytesToHash(slot), nil)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: evm update time: %w", err)
	}
	return new(big.Int).SetBytes(val).Uint64(), nil
}

// Encode renders msg as ABI-ready calldata. The handler call selector/struct packing is
// intentionally left to the application's generated contract bindings; this package
// produces the canonical SCALE-neutral byte payload (decoded MMR envelope plus request
// set) the binding layer packs into calldata, matching §4.3's "assemble the handler
// call" description without hard-coding an ABI this repo does not vendor.
func (a *EvmAdapter) Encode(msg codec.IsmpMessage) ([]byte, error) {
	if msg.Kind == codec.MessageKindGetResponse {
		return nil, fmt.Errorf("chainadapter: evm encode: %w", coreerrors.ErrUnsupportedVariant)
	}
	e := codec.NewEncoder()
	if err := msg.Encode(e); err != nil {
		return nil, fmt.Errorf("chainadapter: evm encode: %w", err)
	}
	return e.Bytes(), nil
}

// Client exposes the underlying ethclient.Client for callers (e.g. the intent executor)
// that need raw EVM RPC access beyond the Adapter interface.
func (a *EvmAdapter) Client() *ethclient.Client { return a.client }
