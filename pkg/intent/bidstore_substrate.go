package intent

import (
	"context"
	"fmt"
	"math/big"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// bidStoragePrefix is the hub's off-chain bid store key prefix named in §6:
// "intents::bid::" ++ commitment(32B) ++ filler_account_id(32B).
const bidStoragePrefix = "intents::bid::"

// SubstrateBidStore reads the hub's off-chain bid store over go-substrate-rpc-client,
// the same library pkg/chainadapter.SubstrateAdapter uses for all its own runtime-state
// reads — enumerating unknown filler keys under one commitment prefix is exactly the
// prefix key scan (state_getKeys) plus storage read that library provides.
type SubstrateBidStore struct {
	api *gsrpc.SubstrateAPI
}

// NewSubstrateBidStore dials rpcURL and returns a BidStore backed by it.
func NewSubstrateBidStore(rpcURL string) (*SubstrateBidStore, error) {
	api, err := gsrpc.NewSubstrateAPI(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("intent: dial hub rpc %s: %w", rpcURL, err)
	}
	return &SubstrateBidStore{api: api}, nil
}

// Bids implements BidStore by scanning all storage keys under this commitment's prefix
// and SCALE-decoding each {filler: [u8;32], user_op: Vec<u8>} entry found.
func (s *SubstrateBidStore) Bids(_ context.Context, commitment []byte) ([]FillerBid, error) {
	prefix := append([]byte(bidStoragePrefix), commitment...)
	keys, err := s.api.RPC.State.GetKeysLatest(types.NewStorageKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("intent: hub bid store key scan for %x: %w", commitment, err)
	}

	bids := make([]FillerBid, 0, len(keys))
	for _, key := range keys {
		var raw types.StorageDataRaw
		ok, err := s.api.RPC.State.GetStorageLatest(key, &raw)
		if err != nil {
			return nil, fmt.Errorf("intent: hub bid store read %x: %w", key, err)
		}
		if !ok || len(raw) == 0 {
			continue
		}
		bid, err := decodeBidEntry([]byte(raw))
		if err != nil {
			// A malformed bid entry is skipped (§7: decoded-data failure => skip
			// record), not a fatal error for the whole poll.
			continue
		}
		bids = append(bids, bid)
	}
	return bids, nil
}

func decodeBidEntry(data []byte) (FillerBid, error) {
	d := codec.NewDecoder(data)
	filler, err := d.GetFixed(32)
	if err != nil {
		return FillerBid{}, fmt.Errorf("intent: decode bid filler: %w", err)
	}
	userOpBytes, err := d.GetBytes()
	if err != nil {
		return FillerBid{}, fmt.Errorf("intent: decode bid user_op: %w", err)
	}

	userOp, err := decodePackedUserOp(codec.NewDecoder(userOpBytes))
	if err != nil {
		return FillerBid{}, fmt.Errorf("intent: decode bid user_op body: %w", err)
	}

	// The off-chain entry carries no deposit, so the returned bid's Deposit is nil.
	return FillerBid{Filler: filler, UserOp: userOp}, nil
}

// decodePackedUserOp SCALE-decodes a PackedUserOperation the same way the order/fillOrder
// payloads are hand-encoded elsewhere in this package.
func decodePackedUserOp(d *codec.Decoder) (PackedUserOperation, error) {
	var p PackedUserOperation

	senderBytes, err := d.GetFixed(20)
	if err != nil {
		return p, err
	}
	p.Sender = addressFromBytes(senderBytes)

	nonceBytes, err := d.GetBytes()
	if err != nil {
		return p, err
	}
	p.Nonce = new(big.Int).SetBytes(nonceBytes)

	if p.InitCode, err = d.GetBytes(); err != nil {
		return p, err
	}
	if p.CallData, err = d.GetBytes(); err != nil {
		return p, err
	}

	accountGasLimits, err := d.GetFixed(32)
	if err != nil {
		return p, err
	}
	copy(p.AccountGasLimits[:], accountGasLimits)

	preVerifBytes, err := d.GetBytes()
	if err != nil {
		return p, err
	}
	p.PreVerificationGas = new(big.Int).SetBytes(preVerifBytes)

	gasFees, err := d.GetFixed(32)
	if err != nil {
		return p, err
	}
	copy(p.GasFees[:], gasFees)

	if p.PaymasterAndData, err = d.GetBytes(); err != nil {
		return p, err
	}
	if p.Signature, err = d.GetBytes(); err != nil {
		return p, err
	}

	return p, nil
}
