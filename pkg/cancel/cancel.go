// Package cancel implements the Cancellation Flow (C7): same-chain cancellation by a
// single cancelOrder call, and the cross-chain resumable state machine that carries a
// destination non-inclusion proof through a GET-request round trip to the hub.
//
// Grounded on pkg/ledger/store.go's KV-backed resumable-state pattern (global meta +
// per-key state, both JSON-marshaled through a narrow KV interface) generalized from
// Accumulate block/anchor bookkeeping to one cancellation's stage progression, and on
// pkg/tracker/tracker.go's waitForStateMachineUpdate/waitForChallengePeriod polling
// idiom, which this package reuses directly since both streams poll the same
// indexer.IndexerClient surface for state-machine-update events.
package cancel

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/hyperbridge-core/pkg/chainadapter"
	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
	"github.com/certen/hyperbridge-core/pkg/intent"
	"github.com/certen/hyperbridge-core/pkg/kvstore"
)

// Canceller executes both cancellation paths §4.7 names. It depends on the same Chain
// Adapter and IndexerClient interfaces the tracker and executor depend on, plus a scoped
// KV store for the cross-chain flow's resumable state.
type Canceller struct {
	hub          chainadapter.Adapter
	adapters     map[string]chainadapter.Adapter
	idx          indexer.IndexerClient
	kv           kvstore.KV
	pollInterval time.Duration
	hubRetries   int
	hubBackoff   time.Duration
	logger       *log.Logger
}

// New constructs a Canceller. adapters is keyed by StateMachineId.String(), matching
// pkg/tracker.New's convention.
func New(hub chainadapter.Adapter, adapters map[string]chainadapter.Adapter, idx indexer.IndexerClient, kv kvstore.KV, pollInterval time.Duration, hubRetries int, hubBackoff time.Duration, logger *log.Logger) *Canceller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if hubRetries <= 0 {
		hubRetries = 10
	}
	if hubBackoff <= 0 {
		hubBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[canceller] ", log.LstdFlags)
	}
	return &Canceller{hub: hub, adapters: adapters, idx: idx, kv: kv, pollInterval: pollInterval, hubRetries: hubRetries, hubBackoff: hubBackoff, logger: logger}
}

func (c *Canceller) adapter(id codec.StateMachineId) (chainadapter.Adapter, error) {
	if a, ok := c.adapters[id.String()]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("cancel: no chain adapter configured for %s", id)
}

// CancelSameChain implements §4.7's same-chain path: it builds the cancelOrder(orderId)
// calldata for the caller to sign and broadcast against order's source chain. The caller
// is expected to feed the resulting receipt's logs to ParseEscrowRefunded to confirm.
func (c *Canceller) CancelSameChain(order intent.OrderV2) []byte {
	c.logger.Printf("🔍 cancel: built same-chain cancelOrder calldata for order %x", order.ID)
	return intent.EncodeCancelOrderCalldata(order.ID)
}

// ParseEscrowRefunded scans a same-chain cancellation's receipt logs for
// EscrowRefunded(bytes32) and reports whether the refund for orderID was observed.
func ParseEscrowRefunded(logs []intent.ReceiptLog, orderID [32]byte) bool {
	topic := common.BytesToHash(intent.EscrowRefundedTopic())
	refunded := common.BytesToHash(orderID[:])
	for _, l := range logs {
		if len(l.Topics) < 2 || l.Topics[0] != topic {
			continue
		}
		if l.Topics[1] == refunded {
			return true
		}
	}
	return false
}

// IsSameChain reports whether order requires only the same-chain cancellation path —
// source and destination name the same chain, so no GET-request round trip through the
// hub is needed to prove non-inclusion. Delegates to intent.IsSameChain, the canonical
// same-chain/cross-chain discriminator §4.6.2's bid validity rule also switches on.
func IsSameChain(order intent.OrderV2) bool {
	return intent.IsSameChain(order)
}

// cancelErr wraps the stage a caller must resolve before the state machine can advance,
// distinguishing "waiting on you" from an actual failure.
type cancelErr struct {
	stage CancellationStage
}

func (e *cancelErr) Error() string {
	return fmt.Sprintf("cancel: awaiting caller input at stage %s", e.stage)
}

// AwaitingCallerInput reports whether err is a yield (not a failure) requesting the
// caller supply data the state machine cannot proceed without.
func AwaitingCallerInput(err error) bool {
	_, ok := err.(*cancelErr)
	return ok
}
