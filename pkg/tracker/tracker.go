// Package tracker implements the Indexer-driven Tracker (C5): lazy status streams for
// post-requests and their timeout continuation, plus enrichment of indexer-reported
// records with synthetic finality milestones. The streaming shape is the same
// ticker+channel+stopCh idiom pkg/intent's block-monitoring loop uses, generalized from a
// single poll loop advancing one cursor into one goroutine per tracked commitment
// advancing its own status cursor, with progress reported over a channel instead of a
// shared field.
package tracker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/certen/hyperbridge-core/pkg/chainadapter"
	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
)

// StatusEvent is one step of a post-request status stream.
type StatusEvent struct {
	Status   codec.RequestStatus
	Calldata []byte
	Height   uint64
	Time     uint64
}

// TimeoutEvent is one step of a timeout continuation stream.
type TimeoutEvent struct {
	Status   codec.TimeoutStatus
	Calldata []byte
	Height   uint64
	Time     uint64
}

// Tracker streams post-request and timeout status for commitments tracked by an
// IndexerClient, consulting Chain Adapters only when fresh calldata or proofs must be
// computed for a transition that the indexer itself cannot observe.
type Tracker struct {
	hub          chainadapter.Adapter
	adapters     map[string]chainadapter.Adapter
	idx          indexer.IndexerClient
	pollInterval time.Duration
	logger       *log.Logger
}

// New constructs a Tracker. adapters is keyed by StateMachineId.String().
func New(hub chainadapter.Adapter, adapters map[string]chainadapter.Adapter, idx indexer.IndexerClient, pollInterval time.Duration, logger *log.Logger) *Tracker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[tracker] ", log.LstdFlags)
	}
	return &Tracker{hub: hub, adapters: adapters, idx: idx, pollInterval: pollInterval, logger: logger}
}

func (t *Tracker) adapter(id codec.StateMachineId) (chainadapter.Adapter, error) {
	if a, ok := t.adapters[id.String()]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("tracker: no chain adapter configured for %s", id)
}

func (t *Tracker) isHub(id codec.StateMachineId) bool {
	return t.hub != nil && id.String() == t.hub.StateMachine().String()
}

// ProofRequestFor builds a ProofRequest for a single post-request commitment, the common
// case §4.5.1/§4.5.2 need when querying a proof for delivery or timeout.
func ProofRequestFor(commitment []byte) chainadapter.ProofRequest {
	return chainadapter.ProofRequest{RequestCommitments: [][]byte{commitment}}
}

// waitForStateMachineUpdate polls the indexer at pollInterval until it reports an update
// for stateMachine at a height strictly greater than afterHeight, returning the first
// such event.
func (t *Tracker) waitForStateMachineUpdate(ctx context.Context, stateMachine codec.StateMachineId, afterHeight uint64) (indexer.StateMachineUpdateEvent, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		updates, err := t.idx.StateMachineUpdatesAfter(stateMachine, afterHeight)
		if err != nil {
			t.logger.Printf("⚠️ tracker: state machine update poll for %s failed: %v", stateMachine, err)
		} else if len(updates) > 0 {
			return updates[0], nil
		}

		select {
		case <-ctx.Done():
			return indexer.StateMachineUpdateEvent{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForChallengePeriod sleeps the remaining delta, if any, between updateTime and the
// moment stateMachine's configured challenge period elapses on chain.
func (t *Tracker) waitForChallengePeriod(ctx context.Context, chain chainadapter.Adapter, stateMachine codec.StateMachineId, updateTime uint64) error {
	period, err := chain.ChallengePeriod(ctx, stateMachine)
	if err != nil {
		return fmt.Errorf("tracker: challenge period for %s: %w", stateMachine, err)
	}
	deadline := updateTime + period

	now, err := chain.Timestamp(ctx)
	if err != nil {
		return fmt.Errorf("tracker: chain timestamp: %w", err)
	}
	if now >= deadline {
		return nil
	}

	remaining := time.Duration(deadline-now) * time.Second
	t.logger.Printf("🔄 tracker: waiting %v for challenge period on %s to elapse", remaining, stateMachine)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}
