package chainadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// tronBroadcastRetries/tronBroadcastInterval bound the confirmation poll in
// BroadcastAndConfirm: 30 tries at 3-second intervals, per §4.3's Tron-family internals.
const (
	tronBroadcastRetries  = 30
	tronBroadcastInterval = 3 * time.Second
)

// TronAdapter implements Adapter for Tron-family chains by embedding an EvmAdapter: Tron's
// execution layer is EVM-compatible, so every ISMP read/encode operation (receipts, state
// proofs, MMR proofs, Encode) is identical to an Evm-family chain and is grounded the same
// way on pkg/chain/strategy/evm_strategy.go. The parts that differ are Tron-native: its
// base58check address format and its transaction-broadcast/confirmation lifecycle, which
// this type adds on top.
type TronAdapter struct {
	*EvmAdapter
}

// NewTronAdapter dials cfg.RPC (Tron's JSON-RPC-compatible full node endpoint) exactly as
// an EvmAdapter would, then wraps it.
func NewTronAdapter(ctx context.Context, cfg EvmConfig) (*TronAdapter, error) {
	base, err := NewEvmAdapter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: tron adapter for %s: %w", cfg.StateMachine, err)
	}
	return &TronAdapter{EvmAdapter: base}, nil
}

// Base58ToEvmAddress decodes a Tron base58check address (e.g. "T...") into its underlying
// 21-byte payload (0x41 prefix ++ 20-byte EVM address) and returns the common.Address
// portion, so callers can use it anywhere this package's EVM-family code expects an
// address.
func Base58ToEvmAddress(tronAddr string) (common.Address, error) {
	decoded, err := base58check(tronAddr)
	if err != nil {
		return common.Address{}, fmt.Errorf("chainadapter: decode tron address %q: %w", tronAddr, err)
	}
	if len(decoded) != 21 || decoded[0] != 0x41 {
		return common.Address{}, fmt.Errorf("chainadapter: tron address %q: unexpected payload length %d", tronAddr, len(decoded))
	}
	return common.BytesToAddress(decoded[1:]), nil
}

// EvmAddressToBase58 encodes addr as a Tron base58check address.
func EvmAddressToBase58(addr common.Address) string {
	return base58.CheckEncode(addr.Bytes(), 0x41)
}

// base58check decodes a Tron address string, which is base58check over the 21-byte
// 0x41-prefixed payload rather than btcutil's single-version-byte convention, so this
// wraps CheckDecode and re-attaches the version byte it strips.
func base58check(addr string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, err
	}
	return append([]byte{version}, payload...), nil
}

// TronTxIDToHash converts a Tron transaction id (a bare 32-byte hex string with no "0x"
// prefix) into the zero-prefixed common.Hash format the rest of this package and
// downstream receipt-tracking code expects.
func TronTxIDToHash(txID string) common.Hash {
	if len(txID) >= 2 && txID[:2] == "0x" {
		return common.HexToHash(txID)
	}
	return common.HexToHash("0x" + txID)
}

// BroadcastAndConfirm submits a raw Tron transaction via the underlying rpc.Client's
// broadcastTransaction RPC method, then polls for its receipt with a bounded retry —
// 30 tries at 3-second intervals — mirroring EVMStrategy.ObserveTransaction's
// poll-until-finalized idiom generalized to Tron's explicit broadcast+poll split (Tron's
// JSON-RPC surface does not support eth_sendRawTransaction's synchronous submit-and-hash
// return).
func (a *TronAdapter) BroadcastAndConfirm(ctx context.Context, rawTxHex string, txID string) (*codec.Proof, error) {
	var result map[string]interface{}
	if err := a.Client().Client().CallContext(ctx, &result, "wallet_broadcasttransaction", rawTxHex); err != nil {
		return nil, fmt.Errorf("chainadapter: tron broadcast: %w", err)
	}

	hash := TronTxIDToHash(txID)
	for i := 0; i < tronBroadcastRetries; i++ {
		receipt, err := a.Client().TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(tronBroadcastInterval):
		}
	}
	return nil, fmt.Errorf("chainadapter: tron transaction %s not confirmed after %d attempts", txID, tronBroadcastRetries)
}
