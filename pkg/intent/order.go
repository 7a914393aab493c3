// Package intent implements the Intent Order Executor (C6): preparing and placing
// orders, collecting and ranking filler bids, simulating and signing the winning bid,
// submitting it to a bundler, and polling for the fill receipt — plus the gas-estimation
// and fee-conversion math the submission step needs. Grounded on
// pkg/intent/discovery.go's overall shape (a long-lived component with a logger,
// mutex-guarded state, and a polling loop) generalized from block-monitoring to
// bid-collection, and on pkg/chain/strategy/evm_strategy.go's EstimateGas/SendTransaction
// idiom for the gas-estimation math in gas.go.
package intent

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// DispatchInfo bounds the gas an order's predispatch leg may consume, per OrderV2's
// `predispatch: DispatchInfo` field.
type DispatchInfo struct {
	MaxFeePerGas *big.Int
	GasLimit     *big.Int
}

// TokenAmount pairs a token address with an amount, used for both an order's requested
// inputs and a bid's promised outputs.
type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// PaymentInfo is an order's single requested output: token, amount, and the address that
// should receive it.
type PaymentInfo struct {
	Token       common.Address
	Amount      *big.Int
	Beneficiary common.Address
}

// OrderV2 is the intent order entity §3 names: a cross-chain (or same-chain) fill
// request a solver competes to satisfy.
type OrderV2 struct {
	ID          [32]byte
	User        [32]byte
	Source      codec.StateMachineId
	Destination codec.StateMachineId
	Deadline    uint64
	Nonce       uint64
	Fees        *big.Int
	Session     common.Address
	Predispatch DispatchInfo
	Inputs      []TokenAmount
	Output      PaymentInfo
}

// Commitment computes keccak(packed(...)) over the order's fields, following the same
// packed-keccak convention codec.PostRequest/codec.GetRequest use rather than a full
// Solidity ABI tuple encoding — this repo has no generated contract bindings to encode
// against (see DESIGN.md), and every other commitment in this codebase is a packed
// keccak, so OrderV2 stays consistent with that rather than introducing a second scheme.
func (o OrderV2) Commitment() []byte {
	parts := [][]byte{
		o.ID[:],
		o.User[:],
		[]byte(o.Source.String()),
		[]byte(o.Destination.String()),
		beU64(o.Deadline),
		beU64(o.Nonce),
		bigBytes(o.Fees),
		o.Session.Bytes(),
	}
	for _, in := range o.Inputs {
		parts = append(parts, in.Token.Bytes(), bigBytes(in.Amount))
	}
	parts = append(parts, o.Output.Token.Bytes(), bigBytes(o.Output.Amount), o.Output.Beneficiary.Bytes())
	return codec.Keccak256(parts...)
}

func beU64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}

func bigBytes(v *big.Int) []byte {
	if v == nil {
		return []byte{0}
	}
	return v.Bytes()
}

// SessionKey is the ephemeral signing key generated at order-preparation time and
// stamped into the order's `session` field (§3).
type SessionKey struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// GenerateSessionKey creates a fresh secp256k1 key pair for one order.
func GenerateSessionKey() (SessionKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return SessionKey{}, fmt.Errorf("intent: generate session key: %w", err)
	}
	return SessionKey{PrivateKey: priv, Address: crypto.PubkeyToAddress(priv.PublicKey)}, nil
}

// PreparedOrder is what PrepareOrder yields for the caller to sign and broadcast: the
// placeOrder calldata and the session key material to persist under the eventual
// commitment.
type PreparedOrder struct {
	Order    OrderV2
	Session  SessionKey
	Calldata []byte
}

// PrepareOrder implements place-order steps 1-3 (§4.6.1): generate the session key,
// stamp it into the order, and encode the placeOrder(order, graffiti) calldata.
func PrepareOrder(order OrderV2, graffiti []byte) (*PreparedOrder, error) {
	session, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	order.Session = session.Address

	calldata, err := encodePlaceOrderCalldata(order, graffiti)
	if err != nil {
		return nil, fmt.Errorf("intent: encode placeOrder calldata: %w", err)
	}

	return &PreparedOrder{Order: order, Session: session, Calldata: calldata}, nil
}

// ReconcileOrder implements place-order steps 4-5 (§4.6.1): given the OrderPlaced event
// decoded from the broadcast receipt, overwrite the locally-computed nonce/inputs with
// the contract-emitted values (the contract may deduct a protocol fee or normalize
// amounts) and recompute the commitment from the reconciled order.
func ReconcileOrder(order OrderV2, placed OrderPlacedEvent) (OrderV2, []byte) {
	order.Nonce = placed.Nonce
	order.Inputs = placed.Inputs
	return order, order.Commitment()
}

// OrderPlacedEvent is the decoded OrderPlaced log emitted by the order gateway contract.
type OrderPlacedEvent struct {
	Nonce  uint64
	Inputs []TokenAmount
}
