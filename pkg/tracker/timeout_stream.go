package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
)

// TrackTimeout streams the timeout continuation for a request that has already been
// observed past its timeout, fabricating the proofs required to mark it timed out on the
// source chain (§4.5.2). Terminates at TIMED_OUT.
func (t *Tracker) TrackTimeout(ctx context.Context, commitment []byte) (<-chan TimeoutEvent, <-chan error) {
	out := make(chan TimeoutEvent, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		record, err := t.bootstrapRequest(ctx, commitment)
		if err != nil {
			errc <- err
			return
		}

		current := t.initialTimeoutStatus(record)
		for current != codec.TimeoutStatusTimedOut {
			next, ev, err := t.advanceTimeoutStatus(ctx, record, current)
			if err != nil {
				errc <- err
				return
			}
			current = next
			out <- ev
			t.logger.Printf("✅ tracker: commitment %x timeout stream advanced to %s", commitment, current)
		}
	}()

	return out, errc
}

func (t *Tracker) initialTimeoutStatus(record *indexer.RequestRecord) codec.TimeoutStatus {
	status := codec.TimeoutStatusPendingTimeout
	for _, ev := range indexer.SortedTimeoutStatuses(record.TimeoutStatusEvents) {
		if ev.Status.Weight() > status.Weight() {
			status = ev.Status
		}
	}
	return status
}

func (t *Tracker) advanceTimeoutStatus(ctx context.Context, record *indexer.RequestRecord, current codec.TimeoutStatus) (codec.TimeoutStatus, TimeoutEvent, error) {
	switch current {
	case codec.TimeoutStatusPendingTimeout:
		return t.advancePendingTimeout(ctx, record)
	case codec.TimeoutStatusDestinationFinalizedTimeout:
		return t.advanceDestinationFinalizedTimeout(ctx, record)
	case codec.TimeoutStatusHyperbridgeTimedOut:
		return t.advanceHyperbridgeTimedOut(ctx, record)
	case codec.TimeoutStatusHyperbridgeFinalizedTimeout:
		return t.advanceHyperbridgeFinalizedTimeout(ctx, record)
	default:
		return current, TimeoutEvent{}, fmt.Errorf("tracker: no transition defined out of timeout status %s", current)
	}
}

// advancePendingTimeout confirms the request was never delivered on destination and that
// the destination clock has passed the request's timeout before moving on.
func (t *Tracker) advancePendingTimeout(ctx context.Context, record *indexer.RequestRecord) (codec.TimeoutStatus, TimeoutEvent, error) {
	destAdapter, err := t.adapter(record.Dest)
	if err != nil {
		return 0, TimeoutEvent{}, err
	}

	receipt, err := destAdapter.QueryRequestReceipt(ctx, record.Commitment)
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: query destination receipt: %w", err)
	}
	if len(receipt) != 0 {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: commitment %x was delivered, cannot time out", record.Commitment)
	}

	now, err := destAdapter.Timestamp(ctx)
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: destination timestamp: %w", err)
	}
	if now < record.TimeoutTimestamp {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: destination clock %d has not yet passed timeout %d", now, record.TimeoutTimestamp)
	}

	return codec.TimeoutStatusDestinationFinalizedTimeout, TimeoutEvent{Status: codec.TimeoutStatusDestinationFinalizedTimeout, Time: now}, nil
}

// advanceDestinationFinalizedTimeout waits for the hub to record an update of the
// destination past timeoutTimestamp, then queries a state proof of the (empty) receipt
// key on destination at that height for submission to the hub as an unsigned
// TimeoutPostRequest.
func (t *Tracker) advanceDestinationFinalizedTimeout(ctx context.Context, record *indexer.RequestRecord) (codec.TimeoutStatus, TimeoutEvent, error) {
	// Walk the destination's updates by height until one's update time has reached the
	// request's timeout timestamp.
	var update indexer.StateMachineUpdateEvent
	for afterHeight := uint64(0); ; {
		u, err := t.waitForStateMachineUpdate(ctx, record.Dest, afterHeight)
		if err != nil {
			return 0, TimeoutEvent{}, err
		}
		if u.UpdateTime >= record.TimeoutTimestamp {
			update = u
			break
		}
		afterHeight = u.Height
	}

	destAdapter, err := t.adapter(record.Dest)
	if err != nil {
		return 0, TimeoutEvent{}, err
	}

	receiptKey, err := destAdapter.RequestReceiptKey(record.Commitment)
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: destination receipt key: %w", err)
	}
	proof, err := destAdapter.QueryStateProof(ctx, update.Height, [][]byte{receiptKey})
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: query destination empty-receipt proof: %w", err)
	}

	calldata, err := t.hub.Encode(codec.NewTimeoutPostRequestMessage(
		[]codec.PostRequest{record.Request},
		codec.Proof{Height: update.Height, StateMachine: record.Dest, Payload: proof.Payload},
	))
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: encode hub timeout submission: %w", err)
	}

	return codec.TimeoutStatusHyperbridgeTimedOut, TimeoutEvent{
		Status:   codec.TimeoutStatusHyperbridgeTimedOut,
		Calldata: calldata,
		Height:   update.Height,
		Time:     update.UpdateTime,
	}, nil
}

// advanceHyperbridgeTimedOut waits for the indexer to confirm the hub has registered the
// timeout, then waits for the source chain to observe the hub's finalization of it.
func (t *Tracker) advanceHyperbridgeTimedOut(ctx context.Context, record *indexer.RequestRecord) (codec.TimeoutStatus, TimeoutEvent, error) {
	if _, err := t.waitForIndexerTimeoutStatus(ctx, record, codec.TimeoutStatusHyperbridgeTimedOut); err != nil {
		return 0, TimeoutEvent{}, err
	}

	sourceAdapter, err := t.adapter(record.Source)
	if err != nil {
		return 0, TimeoutEvent{}, err
	}

	update, err := t.waitForStateMachineUpdate(ctx, t.hub.StateMachine(), 0)
	if err != nil {
		return 0, TimeoutEvent{}, err
	}

	hubFinalizedHeight := update.Height
	proof, err := t.hub.QueryProof(ctx, ProofRequestFor(record.Commitment), record.Source, &hubFinalizedHeight)
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: query hub proof of destination empty receipt: %w", err)
	}

	calldata, err := sourceAdapter.Encode(codec.NewTimeoutPostRequestMessage(
		[]codec.PostRequest{record.Request},
		codec.Proof{Height: hubFinalizedHeight, StateMachine: t.hub.StateMachine(), Payload: proof.Payload},
	))
	if err != nil {
		return 0, TimeoutEvent{}, fmt.Errorf("tracker: encode source timeout submission: %w", err)
	}

	return codec.TimeoutStatusHyperbridgeFinalizedTimeout, TimeoutEvent{
		Status:   codec.TimeoutStatusHyperbridgeFinalizedTimeout,
		Calldata: calldata,
		Height:   hubFinalizedHeight,
		Time:     update.UpdateTime,
	}, nil
}

// advanceHyperbridgeFinalizedTimeout waits for the indexer to confirm the source-chain
// timeout event landed.
func (t *Tracker) advanceHyperbridgeFinalizedTimeout(ctx context.Context, record *indexer.RequestRecord) (codec.TimeoutStatus, TimeoutEvent, error) {
	ev, err := t.waitForIndexerTimeoutStatus(ctx, record, codec.TimeoutStatusTimedOut)
	if err != nil {
		return 0, TimeoutEvent{}, err
	}
	return codec.TimeoutStatusTimedOut, ev, nil
}

func (t *Tracker) waitForIndexerTimeoutStatus(ctx context.Context, record *indexer.RequestRecord, want codec.TimeoutStatus) (TimeoutEvent, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		fresh, err := t.idx.RequestByCommitment(record.Commitment)
		if err != nil {
			t.logger.Printf("⚠️ tracker: indexer timeout-status poll for %x failed: %v", record.Commitment, err)
		} else if fresh != nil {
			record.TimeoutStatusEvents = fresh.TimeoutStatusEvents
			for _, ev := range fresh.TimeoutStatusEvents {
				if ev.Status == want {
					return TimeoutEvent{Status: ev.Status, Calldata: ev.Calldata, Height: ev.Height, Time: ev.Time}, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return TimeoutEvent{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
