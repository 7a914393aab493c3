package intent

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FillerBid is the hub's off-chain bid record (§6): a filler account, the packed
// user-operation it proposes, and the deposit it has posted against non-performance.
type FillerBid struct {
	Filler  []byte
	UserOp  PackedUserOperation
	Deposit *big.Int
}

// BidStore reads the hub's off-chain bid store (§6: key
// "intents::bid::" ++ commitment ++ filler_account_id, SCALE {filler, user_op}) for a
// given order commitment.
type BidStore interface {
	Bids(ctx context.Context, commitment []byte) ([]FillerBid, error)
}

// usedKey identifies a (solver, nonce) pair already consumed by a prior partial fill, so
// PollBids does not re-offer it.
type usedKey struct {
	solver common.Address
	nonce  uint64
}

// PollBids implements §4.6.2's bid-collection loop: poll the bid store until at least
// minBids distinct, not-yet-used bids arrive or bidTimeoutMs elapses, whichever comes
// first. Grounded on pkg/intent/discovery.go's ticker-poll-until-condition idiom.
func PollBids(ctx context.Context, store BidStore, commitment []byte, minBids int, bidTimeoutMs int, used map[usedKey]bool, pollInterval time.Duration, logger *log.Logger) ([]FillerBid, error) {
	deadline := time.Now().Add(time.Duration(bidTimeoutMs) * time.Millisecond)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var collected []FillerBid
	for {
		bids, err := store.Bids(ctx, commitment)
		if err != nil {
			logger.Printf("⚠️ intent: bid poll for %x failed: %v", commitment, err)
		} else {
			collected = collected[:0]
			for _, b := range bids {
				k := usedKey{solver: addressFromBytes(b.Filler), nonce: b.UserOp.Nonce.Uint64()}
				if used[k] {
					continue
				}
				collected = append(collected, b)
			}
			if len(collected) >= minBids {
				return collected, nil
			}
		}

		if time.Now().After(deadline) {
			logger.Printf("⏱️ intent: bid window for %x closed with %d/%d bids", commitment, len(collected), minBids)
			return collected, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsSameChain reports whether order's source and destination name the same chain — the
// discriminator §4.6.2's bid-validity rule and §4.7's cancellation path both switch on.
func IsSameChain(order OrderV2) bool {
	return order.Source.String() == order.Destination.String()
}

// ValidateBid reports whether a bid's decoded fillOrder output satisfies §4.6.2 step 2's
// validity rule for order (Testable Property 8): a cross-chain bid must promise an amount
// at least the requested amount; a same-chain bid (a candidate partial fill) must promise
// the requested token present with a strictly positive amount. Either way the bid must be
// quoting the token order actually requested — a bid for a different token never satisfies
// the order regardless of amount.
func ValidateBid(order OrderV2, fill FillOrderPayload) bool {
	if fill.Output.Token != order.Output.Token || fill.Output.Amount == nil {
		return false
	}
	if IsSameChain(order) {
		return fill.Output.Amount.Sign() > 0
	}
	return fill.Output.Amount.Cmp(order.Output.Amount) >= 0
}

// FilterValidBids decodes each bid's promised fillOrder output and keeps only those
// satisfying ValidateBid against order, dropping both bids this repo cannot decode and
// bids that decode but fail the validity rule — the explicit "validate" half of §4.6.2
// step 2, run before RankBids so a bid promising less than requested is never ranked,
// let alone submitted.
func FilterValidBids(order OrderV2, bids []FillerBid) []FillerBid {
	valid := make([]FillerBid, 0, len(bids))
	for _, b := range bids {
		fill, err := decodeFillOrderCalldata(b.UserOp.CallData)
		if err != nil {
			continue
		}
		if ValidateBid(order, fill) {
			valid = append(valid, b)
		}
	}
	return valid
}

// RankedBid pairs a bid with the USD value of what it promises to deliver.
type RankedBid struct {
	Bid      FillerBid
	USDValue decimal.Decimal
}

// PriceOracle quotes the USD value of amount units of a wrapped-native or other token
// not already pegged to a stablecoin, per §4.6.2's ranking rule (USDC/USDT=1,
// wrapped-native via DEX quote, others=0).
type PriceOracle interface {
	QuoteUSD(ctx context.Context, token common.Address, amount *big.Int) (decimal.Decimal, error)
}

// RankBids decodes each bid's promised fillOrder output and ranks bids by its USD value,
// descending, per §4.6.2: USDC/USDT amounts convert 1:1, wrapped-native is quoted through
// oracle, everything else scores zero and sorts last.
func RankBids(ctx context.Context, bids []FillerBid, stablecoins map[common.Address]int, wrappedNative common.Address, oracle PriceOracle) ([]RankedBid, error) {
	ranked := make([]RankedBid, 0, len(bids))
	for _, b := range bids {
		fill, err := decodeFillOrderCalldata(b.UserOp.CallData)
		if err != nil {
			// A bid whose callData this repo cannot parse is simply dropped from
			// ranking (§7: decoded-data failure => skip record), not a fatal error.
			continue
		}

		usd := decimal.Zero
		if decimals, ok := stablecoins[fill.Output.Token]; ok {
			usd = decimalFromUnits(fill.Output.Amount, decimals)
		} else if fill.Output.Token == wrappedNative {
			usd, err = oracle.QuoteUSD(ctx, fill.Output.Token, fill.Output.Amount)
			if err != nil {
				continue
			}
		}
		ranked = append(ranked, RankedBid{Bid: b, USDValue: usd})
	}

	sortRankedBidsDescending(ranked)
	return ranked, nil
}

func sortRankedBidsDescending(ranked []RankedBid) {
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].USDValue.GreaterThan(ranked[j-1].USDValue); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
}

func decimalFromUnits(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, 0).Shift(int32(-decimals))
}
