package intent

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// bpsDenominator is the basis-points scale ProtocolFeeMarginBps/RelayerFeeMarginBps are
// expressed in (10000 bps = 100%).
const bpsDenominator = 10_000

// applyMarginBps scales amount up by marginBps/10000, per §4.6.3's 0.5%-default safety
// margin on protocol and relayer fees.
func applyMarginBps(amount *big.Int, marginBps int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, big.NewInt(int64(bpsDenominator+marginBps)))
	return scaled.Div(scaled, big.NewInt(bpsDenominator))
}

// rescaleDecimals converts amount expressed with fromDecimals precision into one
// expressed with toDecimals precision, used when a source-chain fee quote must be
// expressed in the destination chain's fee-token decimals (§4.6.3).
func rescaleDecimals(amount *big.Int, fromDecimals, toDecimals int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}
	if toDecimals > fromDecimals {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		return new(big.Int).Mul(amount, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
	return new(big.Int).Div(amount, factor)
}

// FeeBreakdown is the computed native-value and fee-token amounts PrepareOrder's caller
// needs to fund the order, per §4.6.3.
type FeeBreakdown struct {
	NativeValue  *big.Int // native-typed outputs + protocol dispatch fee
	DispatchFee  *big.Int // source-chain post-request fee, rescaled to destination decimals
	ProtocolFee  *big.Int // with ProtocolFeeMarginBps applied
	RelayerFee   *big.Int // with RelayerFeeMarginBps applied
}

// FeeInputs collects the raw quantities EstimateFees combines.
type FeeInputs struct {
	NativeOutputAmount *big.Int // non-zero only when the order's output token is the chain's native asset
	RawDispatchFee     *big.Int
	DispatchFeeDecimals int
	DestinationDecimals int
	RawProtocolFee     *big.Int
	RawRelayerFee      *big.Int
}

// EstimateFees implements §4.6.3's fee computation: native value is native-typed output
// plus the protocol dispatch fee; the dispatch fee is rescaled from the source chain's
// fee-token decimals to the destination's; protocol and relayer fees both carry their
// configured safety margin.
func EstimateFees(in FeeInputs, protocolMarginBps, relayerMarginBps int) FeeBreakdown {
	dispatchFee := rescaleDecimals(in.RawDispatchFee, in.DispatchFeeDecimals, in.DestinationDecimals)
	protocolFee := applyMarginBps(in.RawProtocolFee, protocolMarginBps)
	relayerFee := applyMarginBps(in.RawRelayerFee, relayerMarginBps)

	nativeValue := new(big.Int)
	if in.NativeOutputAmount != nil {
		nativeValue.Add(nativeValue, in.NativeOutputAmount)
	}
	nativeValue.Add(nativeValue, dispatchFee)

	return FeeBreakdown{
		NativeValue: nativeValue,
		DispatchFee: dispatchFee,
		ProtocolFee: protocolFee,
		RelayerFee:  relayerFee,
	}
}

// gasBufferBps is the 5% buffer §4.6.3 applies over whatever gas dimensions the bundler
// returns from eth_estimateUserOperationGas.
const gasBufferBps = 10_500

func withGasBuffer(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(v, big.NewInt(gasBufferBps))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// EstimateCallGasLimit implements §4.6.3's callGasLimit rule: prefer the bundler's
// eth_estimateUserOperationGas (optionally with state overrides simulating the order's
// preconditions), buffered by 5%; fall back to a direct eth_estimateGas-equivalent value
// supplied by the caller when the bundler call fails.
func EstimateCallGasLimit(ctx context.Context, bundler BundlerClient, op UnpackedUserOperation, entryPoint common.Address, stateOverrides map[string]any, directEstimate *big.Int) (*GasEstimate, error) {
	est, err := bundler.EstimateUserOperationGas(ctx, op, entryPoint, stateOverrides)
	if err != nil {
		if directEstimate == nil {
			return nil, fmt.Errorf("intent: bundler gas estimate failed and no direct fallback available: %w", err)
		}
		return &GasEstimate{
			PreVerificationGas:   big.NewInt(0),
			VerificationGasLimit: big.NewInt(0),
			CallGasLimit:         withGasBuffer(directEstimate),
		}, nil
	}
	return &GasEstimate{
		PreVerificationGas:   withGasBuffer(est.PreVerificationGas),
		VerificationGasLimit: withGasBuffer(est.VerificationGasLimit),
		CallGasLimit:         withGasBuffer(est.CallGasLimit),
	}, nil
}

// GasPrices is the bumped maxPriorityFeePerGas/maxFeePerGas pair a user-operation signs
// against, per §4.6.3's "base + bump%" rule (default +8% priority, +10% max).
type GasPrices struct {
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// EstimateGasPrices bumps baseFee/basePriorityFee by the configured percentages.
func EstimateGasPrices(baseFeePerGas, basePriorityFeePerGas *big.Int, priorityBumpPercent, maxBumpPercent int) GasPrices {
	bump := func(v *big.Int, pct int) *big.Int {
		if v == nil {
			return big.NewInt(0)
		}
		out := new(big.Int).Mul(v, big.NewInt(int64(100+pct)))
		return out.Div(out, big.NewInt(100))
	}
	return GasPrices{
		MaxPriorityFeePerGas: bump(basePriorityFeePerGas, priorityBumpPercent),
		MaxFeePerGas:         bump(baseFeePerGas, maxBumpPercent),
	}
}
