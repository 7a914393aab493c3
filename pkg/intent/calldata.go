package intent

import (
	"fmt"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// selector computes a 4-byte EVM function/event selector from a signature string, the
// same keccak-prefix convention Solidity itself uses, without pulling in a generated ABI
// binding this repo does not have (see DESIGN.md).
func selector(sig string) []byte {
	return codec.Keccak256([]byte(sig))[:4]
}

var (
	placeOrderSelector  = selector("placeOrder(bytes,bytes)")
	selectSelector      = selector("select(bytes32,address,bytes)")
	fillOrderSelector   = selector("fillOrder(bytes,bytes)")
	cancelOrderSelector = selector("cancelOrder(bytes)")

	orderPlacedTopic    = codec.Keccak256([]byte("OrderPlaced(bytes32,uint64,bytes)"))
	orderFilledTopic    = codec.Keccak256([]byte("OrderFilled(bytes32)"))
	partialFillTopic    = codec.Keccak256([]byte("PartialFill(bytes32,bytes)"))
	escrowRefundedTopic = codec.Keccak256([]byte("EscrowRefunded(bytes32)"))
	getRequestTopic     = codec.Keccak256([]byte("GetRequestEvent(bytes)"))
)

// encodeOrder packs an OrderV2 the same way every other wire payload in this codebase
// is packed: a SCALE-style Encoder, not a Solidity ABI tuple.
func encodeOrder(e *codec.Encoder, o OrderV2) {
	e.PutFixed(o.ID[:])
	e.PutFixed(o.User[:])
	e.PutBytes([]byte(o.Source.String()))
	e.PutBytes([]byte(o.Destination.String()))
	e.PutU64(o.Deadline)
	e.PutU64(o.Nonce)
	e.PutBytes(bigBytes(o.Fees))
	e.PutFixed(o.Session.Bytes())
	e.PutBytes(bigBytes(o.Predispatch.MaxFeePerGas))
	e.PutBytes(bigBytes(o.Predispatch.GasLimit))
	e.PutCompact(uint64(len(o.Inputs)))
	for _, in := range o.Inputs {
		e.PutFixed(in.Token.Bytes())
		e.PutBytes(bigBytes(in.Amount))
	}
	e.PutFixed(o.Output.Token.Bytes())
	e.PutBytes(bigBytes(o.Output.Amount))
	e.PutFixed(o.Output.Beneficiary.Bytes())
}

// encodePlaceOrderCalldata builds the placeOrder(order, graffiti) calldata: selector
// followed by the packed order and graffiti.
func encodePlaceOrderCalldata(order OrderV2, graffiti []byte) ([]byte, error) {
	e := codec.NewEncoder()
	encodeOrder(e, order)
	e.PutBytes(graffiti)
	return append(append([]byte{}, placeOrderSelector...), e.Bytes()...), nil
}

// decodeOrderPlacedLog decodes an OrderPlaced log's data payload (the log itself is
// matched against orderPlacedTopic by the caller) into the reconciled nonce/inputs.
func decodeOrderPlacedLog(data []byte) (OrderPlacedEvent, error) {
	d := codec.NewDecoder(data)
	nonce, err := d.GetU64()
	if err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("intent: decode OrderPlaced nonce: %w", err)
	}
	n, err := d.GetCompact()
	if err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("intent: decode OrderPlaced input count: %w", err)
	}
	inputs := make([]TokenAmount, 0, n)
	for i := uint64(0); i < n; i++ {
		tokenBytes, err := d.GetFixed(20)
		if err != nil {
			return OrderPlacedEvent{}, fmt.Errorf("intent: decode OrderPlaced input %d token: %w", i, err)
		}
		amountBytes, err := d.GetBytes()
		if err != nil {
			return OrderPlacedEvent{}, fmt.Errorf("intent: decode OrderPlaced input %d amount: %w", i, err)
		}
		inputs = append(inputs, TokenAmount{Token: addressFromBytes(tokenBytes), Amount: bigFromBytes(amountBytes)})
	}
	return OrderPlacedEvent{Nonce: nonce, Inputs: inputs}, nil
}

// encodeSelectCalldata builds the select(commitment, solver, signature) calldata
// submitted against the solver's batch executor during simulation and real submission.
func encodeSelectCalldata(commitment [32]byte, solver [20]byte, signature []byte) []byte {
	e := codec.NewEncoder()
	e.PutFixed(commitment[:])
	e.PutFixed(solver[:])
	e.PutBytes(signature)
	return append(append([]byte{}, selectSelector...), e.Bytes()...)
}

// encodeCancelOrderCalldata builds the cancelOrder(orderId) calldata used by the
// same-chain cancellation path.
func encodeCancelOrderCalldata(orderID [32]byte) []byte {
	e := codec.NewEncoder()
	e.PutFixed(orderID[:])
	return append(append([]byte{}, cancelOrderSelector...), e.Bytes()...)
}

// EncodeCancelOrderCalldata is encodeCancelOrderCalldata exported for the cancellation
// flow (pkg/cancel), which lives in its own package since it owns persisted state the
// order executor has no business touching.
func EncodeCancelOrderCalldata(orderID [32]byte) []byte {
	return encodeCancelOrderCalldata(orderID)
}

// EscrowRefundedTopic is the EscrowRefunded(bytes32) log topic a same-chain
// cancellation's receipt is checked against.
func EscrowRefundedTopic() []byte { return append([]byte{}, escrowRefundedTopic...) }

// GetRequestEventTopic is the GetRequestEvent(bytes) log topic a cross-chain
// cancellation's source-tx receipt is checked against in step 2 of §4.7.
func GetRequestEventTopic() []byte { return append([]byte{}, getRequestTopic...) }

// FillOrderPayload is what a solver's batch executor ultimately hands to fillOrder: the
// order being filled and the payment it promises the user.
type FillOrderPayload struct {
	Order  OrderV2
	Output PaymentInfo
}

// decodeFillOrderCalldata locates the fillOrder(order, fillOptions) call inside a
// solver's batch-executor payload and decodes its promised output. It only decodes — the
// validity check against the order's requested output is ValidateBid's job (§4.6.2 step
// 2), not this function's. A bid's user-operation callData is the solver's own
// batch-executor encoding wrapped around this call; this repo does not know that
// wrapper's shape, so it scans for the fillOrder selector rather than assuming a fixed
// offset.
func decodeFillOrderCalldata(calldata []byte) (FillOrderPayload, error) {
	idx := indexOf(calldata, fillOrderSelector)
	if idx < 0 {
		return FillOrderPayload{}, fmt.Errorf("intent: calldata does not contain a fillOrder call")
	}
	d := codec.NewDecoder(calldata[idx+len(fillOrderSelector):])

	orderBytes, err := d.GetBytes()
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder order: %w", err)
	}
	order, err := decodeOrder(codec.NewDecoder(orderBytes))
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder order body: %w", err)
	}

	optsBytes, err := d.GetBytes()
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder options: %w", err)
	}
	opt := codec.NewDecoder(optsBytes)
	tokenBytes, err := opt.GetFixed(20)
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder output token: %w", err)
	}
	amountBytes, err := opt.GetBytes()
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder output amount: %w", err)
	}
	beneficiaryBytes, err := opt.GetFixed(20)
	if err != nil {
		return FillOrderPayload{}, fmt.Errorf("intent: decode fillOrder output beneficiary: %w", err)
	}

	return FillOrderPayload{
		Order: order,
		Output: PaymentInfo{
			Token:       addressFromBytes(tokenBytes),
			Amount:      bigFromBytes(amountBytes),
			Beneficiary: addressFromBytes(beneficiaryBytes),
		},
	}, nil
}

// decodeOrder reverses encodeOrder.
func decodeOrder(d *codec.Decoder) (OrderV2, error) {
	var o OrderV2

	idBytes, err := d.GetFixed(32)
	if err != nil {
		return o, err
	}
	copy(o.ID[:], idBytes)

	userBytes, err := d.GetFixed(32)
	if err != nil {
		return o, err
	}
	copy(o.User[:], userBytes)

	sourceBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	if o.Source, err = codec.ParseStateMachineId(string(sourceBytes)); err != nil {
		return o, err
	}

	destBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	if o.Destination, err = codec.ParseStateMachineId(string(destBytes)); err != nil {
		return o, err
	}

	if o.Deadline, err = d.GetU64(); err != nil {
		return o, err
	}
	if o.Nonce, err = d.GetU64(); err != nil {
		return o, err
	}

	feesBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	o.Fees = bigFromBytes(feesBytes)

	sessionBytes, err := d.GetFixed(20)
	if err != nil {
		return o, err
	}
	o.Session = addressFromBytes(sessionBytes)

	maxFeeBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	o.Predispatch.MaxFeePerGas = bigFromBytes(maxFeeBytes)

	gasLimitBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	o.Predispatch.GasLimit = bigFromBytes(gasLimitBytes)

	n, err := d.GetCompact()
	if err != nil {
		return o, err
	}
	for i := uint64(0); i < n; i++ {
		tokenBytes, err := d.GetFixed(20)
		if err != nil {
			return o, err
		}
		amountBytes, err := d.GetBytes()
		if err != nil {
			return o, err
		}
		o.Inputs = append(o.Inputs, TokenAmount{Token: addressFromBytes(tokenBytes), Amount: bigFromBytes(amountBytes)})
	}

	outTokenBytes, err := d.GetFixed(20)
	if err != nil {
		return o, err
	}
	outAmountBytes, err := d.GetBytes()
	if err != nil {
		return o, err
	}
	outBeneficiaryBytes, err := d.GetFixed(20)
	if err != nil {
		return o, err
	}
	o.Output = PaymentInfo{
		Token:       addressFromBytes(outTokenBytes),
		Amount:      bigFromBytes(outAmountBytes),
		Beneficiary: addressFromBytes(outBeneficiaryBytes),
	}

	return o, nil
}

func indexOf(haystack, needle []byte) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
