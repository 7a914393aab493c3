package intent

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

func mustSM(t *testing.T, s string) codec.StateMachineId {
	t.Helper()
	sm, err := codec.ParseStateMachineId(s)
	if err != nil {
		t.Fatalf("ParseStateMachineId(%s): %v", s, err)
	}
	return sm
}

func sampleOrder(t *testing.T) OrderV2 {
	return OrderV2{
		ID:          [32]byte{1, 2, 3},
		User:        [32]byte{4, 5, 6},
		Source:      mustSM(t, "EVM-1"),
		Destination: mustSM(t, "EVM-2"),
		Deadline:    1000,
		Nonce:       7,
		Fees:        big.NewInt(500),
		Predispatch: DispatchInfo{MaxFeePerGas: big.NewInt(10), GasLimit: big.NewInt(21000)},
		Inputs: []TokenAmount{
			{Token: common.HexToAddress("0x1111111111111111111111111111111111111111"), Amount: big.NewInt(1_000_000)},
		},
		Output: PaymentInfo{
			Token:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Amount:      big.NewInt(2_000_000),
			Beneficiary: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		},
	}
}

func TestOrderCommitmentStableAndSensitiveToNonce(t *testing.T) {
	order := sampleOrder(t)
	c1 := order.Commitment()
	c2 := order.Commitment()
	if string(c1) != string(c2) {
		t.Fatalf("Commitment() not deterministic: %x != %x", c1, c2)
	}

	order.Nonce = 8
	c3 := order.Commitment()
	if string(c1) == string(c3) {
		t.Fatalf("Commitment() did not change after nonce change")
	}
}

func TestPrepareOrderReconcile(t *testing.T) {
	order := sampleOrder(t)
	prepared, err := PrepareOrder(order, []byte("graffiti"))
	if err != nil {
		t.Fatalf("PrepareOrder: %v", err)
	}
	if prepared.Order.Session == (common.Address{}) {
		t.Fatalf("PrepareOrder did not stamp a session address")
	}
	if len(prepared.Calldata) < 4 || string(prepared.Calldata[:4]) != string(placeOrderSelector) {
		t.Fatalf("PrepareOrder calldata missing placeOrder selector")
	}

	placed := OrderPlacedEvent{Nonce: 9, Inputs: []TokenAmount{{Token: order.Inputs[0].Token, Amount: big.NewInt(999)}}}
	reconciled, commitment := ReconcileOrder(prepared.Order, placed)
	if reconciled.Nonce != 9 {
		t.Fatalf("ReconcileOrder did not adopt emitted nonce")
	}
	if string(commitment) != string(reconciled.Commitment()) {
		t.Fatalf("ReconcileOrder returned a commitment that doesn't match the reconciled order")
	}
}

func TestEncodeDecodeOrderRoundTrip(t *testing.T) {
	order := sampleOrder(t)
	e := codec.NewEncoder()
	encodeOrder(e, order)
	decoded, err := decodeOrder(codec.NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatalf("decodeOrder: %v", err)
	}
	if decoded.Nonce != order.Nonce || decoded.Deadline != order.Deadline {
		t.Fatalf("decodeOrder round-trip mismatch: %+v vs %+v", decoded, order)
	}
	if len(decoded.Inputs) != 1 || decoded.Inputs[0].Amount.Cmp(order.Inputs[0].Amount) != 0 {
		t.Fatalf("decodeOrder inputs mismatch: %+v", decoded.Inputs)
	}
	if decoded.Output.Beneficiary != order.Output.Beneficiary {
		t.Fatalf("decodeOrder output beneficiary mismatch")
	}
}

func TestDecodeFillOrderCalldataFindsEmbeddedCall(t *testing.T) {
	order := sampleOrder(t)
	e := codec.NewEncoder()
	encodeOrder(e, order)
	orderBytes := e.Bytes()

	opt := codec.NewEncoder()
	opt.PutFixed(order.Output.Token.Bytes())
	opt.PutBytes(bigBytes(order.Output.Amount))
	opt.PutFixed(order.Output.Beneficiary.Bytes())

	inner := codec.NewEncoder()
	inner.PutBytes(orderBytes)
	inner.PutBytes(opt.Bytes())

	// Simulate a solver's batch-executor payload wrapping the fillOrder call in
	// arbitrary surrounding bytes this package does not attempt to parse.
	wrapped := append([]byte{0xde, 0xad, 0xbe, 0xef}, fillOrderSelector...)
	wrapped = append(wrapped, inner.Bytes()...)
	wrapped = append(wrapped, 0x01, 0x02, 0x03)

	payload, err := decodeFillOrderCalldata(wrapped)
	if err != nil {
		t.Fatalf("decodeFillOrderCalldata: %v", err)
	}
	if payload.Output.Amount.Cmp(order.Output.Amount) != 0 {
		t.Fatalf("decodeFillOrderCalldata output amount mismatch: got %s want %s", payload.Output.Amount, order.Output.Amount)
	}
	if payload.Order.Nonce != order.Nonce {
		t.Fatalf("decodeFillOrderCalldata order nonce mismatch")
	}
}

func TestPackUnpackUserOperationRoundTrip(t *testing.T) {
	factory := common.HexToAddress("0xaaaa000000000000000000000000000000000a")
	paymaster := common.HexToAddress("0xbbbb000000000000000000000000000000000b")
	u := UnpackedUserOperation{
		Sender:                        common.HexToAddress("0xcccc000000000000000000000000000000000c"),
		Nonce:                         big.NewInt(42),
		Factory:                       &factory,
		FactoryData:                   []byte{1, 2, 3},
		CallData:                      []byte{4, 5, 6},
		CallGasLimit:                  big.NewInt(100000),
		VerificationGasLimit:          big.NewInt(200000),
		PreVerificationGas:            big.NewInt(50000),
		MaxFeePerGas:                  big.NewInt(30_000_000_000),
		MaxPriorityFeePerGas:          big.NewInt(2_000_000_000),
		Paymaster:                     &paymaster,
		PaymasterVerificationGasLimit: big.NewInt(10000),
		PaymasterPostOpGasLimit:       big.NewInt(20000),
		PaymasterData:                 []byte{7, 8},
		Signature:                     []byte{9, 9, 9},
	}

	packed := Pack(u)
	back := Unpack(packed)

	if back.CallGasLimit.Cmp(u.CallGasLimit) != 0 || back.VerificationGasLimit.Cmp(u.VerificationGasLimit) != 0 {
		t.Fatalf("Pack/Unpack gas limits mismatch: %+v", back)
	}
	if back.MaxFeePerGas.Cmp(u.MaxFeePerGas) != 0 || back.MaxPriorityFeePerGas.Cmp(u.MaxPriorityFeePerGas) != 0 {
		t.Fatalf("Pack/Unpack fees mismatch: %+v", back)
	}
	if back.Factory == nil || *back.Factory != *u.Factory {
		t.Fatalf("Pack/Unpack factory mismatch: %+v", back.Factory)
	}
	if back.Paymaster == nil || *back.Paymaster != *u.Paymaster {
		t.Fatalf("Pack/Unpack paymaster mismatch: %+v", back.Paymaster)
	}
	if back.PaymasterVerificationGasLimit.Cmp(u.PaymasterVerificationGasLimit) != 0 {
		t.Fatalf("Pack/Unpack paymaster verification gas mismatch")
	}
}

func TestApplyMarginBps(t *testing.T) {
	got := applyMarginBps(big.NewInt(10_000), 50) // 0.5%
	if got.Cmp(big.NewInt(10_050)) != 0 {
		t.Fatalf("applyMarginBps(10000, 50bps) = %s, want 10050", got)
	}
}

func TestRescaleDecimals(t *testing.T) {
	got := rescaleDecimals(big.NewInt(1_000000), 6, 18)
	want := new(big.Int).Mul(big.NewInt(1_000000), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))
	if got.Cmp(want) != 0 {
		t.Fatalf("rescaleDecimals 6->18 = %s, want %s", got, want)
	}

	back := rescaleDecimals(got, 18, 6)
	if back.Cmp(big.NewInt(1_000000)) != 0 {
		t.Fatalf("rescaleDecimals 18->6 = %s, want 1000000", back)
	}
}

func TestEstimateFees(t *testing.T) {
	breakdown := EstimateFees(FeeInputs{
		NativeOutputAmount:  big.NewInt(1_000),
		RawDispatchFee:      big.NewInt(500_000),
		DispatchFeeDecimals: 6,
		DestinationDecimals: 18,
		RawProtocolFee:      big.NewInt(100),
		RawRelayerFee:       big.NewInt(200),
	}, 50, 50)

	wantDispatch := rescaleDecimals(big.NewInt(500_000), 6, 18)
	if breakdown.DispatchFee.Cmp(wantDispatch) != 0 {
		t.Fatalf("EstimateFees dispatch fee = %s, want %s", breakdown.DispatchFee, wantDispatch)
	}
	wantNative := new(big.Int).Add(big.NewInt(1_000), wantDispatch)
	if breakdown.NativeValue.Cmp(wantNative) != 0 {
		t.Fatalf("EstimateFees native value = %s, want %s", breakdown.NativeValue, wantNative)
	}
	if breakdown.ProtocolFee.Cmp(big.NewInt(100)) <= 0 {
		t.Fatalf("EstimateFees protocol fee did not carry its margin: %s", breakdown.ProtocolFee)
	}
}

func TestEstimateGasPricesBumpsBothLegs(t *testing.T) {
	prices := EstimateGasPrices(big.NewInt(100), big.NewInt(10), 8, 10)
	if prices.MaxFeePerGas.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("EstimateGasPrices maxFeePerGas = %s, want 110", prices.MaxFeePerGas)
	}
	if prices.MaxPriorityFeePerGas.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("EstimateGasPrices maxPriorityFeePerGas = %s, want 10 (8%% of 10 truncates to 0)", prices.MaxPriorityFeePerGas)
	}
}

// fakeOracle quotes a fixed USD price per unit of wrapped native, for ranking tests.
type fakeOracle struct{ usdPerUnit decimal.Decimal }

func (f fakeOracle) QuoteUSD(_ context.Context, _ common.Address, amount *big.Int) (decimal.Decimal, error) {
	return decimal.NewFromBigInt(amount, 0).Mul(f.usdPerUnit), nil
}

func bidWithOutput(t *testing.T, nonce uint64, output PaymentInfo) FillerBid {
	order := sampleOrder(t)
	order.Nonce = nonce
	e := codec.NewEncoder()
	encodeOrder(e, order)

	opt := codec.NewEncoder()
	opt.PutFixed(output.Token.Bytes())
	opt.PutBytes(bigBytes(output.Amount))
	opt.PutFixed(output.Beneficiary.Bytes())

	inner := codec.NewEncoder()
	inner.PutBytes(e.Bytes())
	inner.PutBytes(opt.Bytes())

	calldata := append(append([]byte{}, fillOrderSelector...), inner.Bytes()...)
	return FillerBid{
		Filler: common.HexToAddress("0xdddd000000000000000000000000000000000d").Bytes(),
		UserOp: PackedUserOperation{Nonce: big.NewInt(int64(nonce)), CallData: calldata},
	}
}

func TestRankBidsOrdersByUSDValueDescending(t *testing.T) {
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	wrappedNative := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	unknown := common.HexToAddress("0x9999999999999999999999999999999999999a")

	bids := []FillerBid{
		bidWithOutput(t, 1, PaymentInfo{Token: usdc, Amount: big.NewInt(50_000_000)}),       // 50 USDC (6dp)
		bidWithOutput(t, 2, PaymentInfo{Token: wrappedNative, Amount: big.NewInt(2_000)}),    // 2000 * 0.1 = 200
		bidWithOutput(t, 3, PaymentInfo{Token: unknown, Amount: big.NewInt(1_000_000_000)}), // scores 0
	}

	ranked, err := RankBids(context.Background(), bids, map[common.Address]int{usdc: 6}, wrappedNative, fakeOracle{usdPerUnit: decimal.NewFromFloat(0.1)})
	if err != nil {
		t.Fatalf("RankBids: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("RankBids dropped bids: got %d want 3", len(ranked))
	}
	if ranked[0].Bid.UserOp.Nonce.Int64() != 2 {
		t.Fatalf("RankBids top bid = nonce %d, want 2 (wrapped-native @200 USD)", ranked[0].Bid.UserOp.Nonce.Int64())
	}
	if ranked[1].Bid.UserOp.Nonce.Int64() != 1 {
		t.Fatalf("RankBids second bid = nonce %d, want 1 (50 USDC)", ranked[1].Bid.UserOp.Nonce.Int64())
	}
	if !ranked[2].USDValue.IsZero() {
		t.Fatalf("RankBids unknown-token bid should score zero, got %s", ranked[2].USDValue)
	}
}

// TestValidateBidEnforcesOutputRule covers Testable Property 8: a cross-chain bid must
// promise an amount at least the requested amount; a same-chain bid must promise the
// requested token present with a strictly positive amount.
func TestValidateBidEnforcesOutputRule(t *testing.T) {
	order := sampleOrder(t) // Source=EVM-1, Destination=EVM-2 (cross-chain), Output=2,000,000 of token 0x22...

	tests := []struct {
		name      string
		sameChain bool
		output    PaymentInfo
		want      bool
	}{
		{
			name:   "cross-chain: exact requested amount is valid",
			output: PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(2_000_000)},
			want:   true,
		},
		{
			name:   "cross-chain: amount exceeding requested is valid",
			output: PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(2_500_000)},
			want:   true,
		},
		{
			name:   "cross-chain: amount below requested is invalid",
			output: PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(1_999_999)},
			want:   false,
		},
		{
			name:   "cross-chain: wrong token is invalid regardless of amount",
			output: PaymentInfo{Token: common.HexToAddress("0x9999999999999999999999999999999999999a"), Amount: big.NewInt(10_000_000)},
			want:   false,
		},
		{
			name:      "same-chain: any strictly-positive amount of the requested token is valid (partial fill)",
			sameChain: true,
			output:    PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(1)},
			want:      true,
		},
		{
			name:      "same-chain: zero amount is invalid",
			sameChain: true,
			output:    PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(0)},
			want:      false,
		},
		{
			name:      "same-chain: wrong token is invalid",
			sameChain: true,
			output:    PaymentInfo{Token: common.HexToAddress("0x9999999999999999999999999999999999999a"), Amount: big.NewInt(5_000_000)},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := order
			if tt.sameChain {
				o.Destination = o.Source
			}
			got := ValidateBid(o, FillOrderPayload{Order: o, Output: tt.output})
			if got != tt.want {
				t.Fatalf("ValidateBid() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilterValidBidsDropsBelowRequestedAndUndecodable verifies FilterValidBids removes a
// bid promising less than order.Output.Amount before ranking ever sees it, per §4.6.2 step
// 2's stated ordering ("validate and rank").
func TestFilterValidBidsDropsBelowRequestedAndUndecodable(t *testing.T) {
	order := sampleOrder(t)

	valid := bidWithOutput(t, 1, PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(2_000_000)})
	short := bidWithOutput(t, 2, PaymentInfo{Token: order.Output.Token, Amount: big.NewInt(1)})
	garbage := FillerBid{Filler: []byte{0xaa}, UserOp: PackedUserOperation{Nonce: big.NewInt(3), CallData: []byte{0x01, 0x02}}}

	filtered := FilterValidBids(order, []FillerBid{valid, short, garbage})
	if len(filtered) != 1 {
		t.Fatalf("FilterValidBids kept %d bids, want 1 (got nonces: %v)", len(filtered), noncesOf(filtered))
	}
	if filtered[0].UserOp.Nonce.Int64() != 1 {
		t.Fatalf("FilterValidBids kept the wrong bid: nonce %d", filtered[0].UserOp.Nonce.Int64())
	}
}

func noncesOf(bids []FillerBid) []int64 {
	out := make([]int64, len(bids))
	for i, b := range bids {
		out[i] = b.UserOp.Nonce.Int64()
	}
	return out
}

func TestClassifyFillReceipt(t *testing.T) {
	full := &UserOpReceipt{Success: true, Logs: []ReceiptLog{{Topics: []common.Hash{common.BytesToHash(orderFilledTopic)}}}}
	if ok, err := classifyFillReceipt(full); err != nil || !ok {
		t.Fatalf("classifyFillReceipt(OrderFilled) = %v, %v", ok, err)
	}

	partial := &UserOpReceipt{Success: true, Logs: []ReceiptLog{{Topics: []common.Hash{common.BytesToHash(partialFillTopic)}}}}
	if ok, err := classifyFillReceipt(partial); err != nil || ok {
		t.Fatalf("classifyFillReceipt(PartialFill) = %v, %v", ok, err)
	}

	reverted := &UserOpReceipt{Success: false}
	if _, err := classifyFillReceipt(reverted); err == nil {
		t.Fatalf("classifyFillReceipt(reverted) did not return an error")
	}
}
