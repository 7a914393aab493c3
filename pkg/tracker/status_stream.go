package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
)

// TrackRequest streams (status, metadata) for commitment, starting from the indexer's
// bootstrap record and terminating once DESTINATION is reached or the interleaved
// timeout watcher observes the request has passed its timeout (§4.5.1). Cancelling ctx
// cancels the stream; both returned channels are closed when the stream ends.
func (t *Tracker) TrackRequest(ctx context.Context, commitment []byte) (<-chan StatusEvent, <-chan error) {
	out := make(chan StatusEvent, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		record, err := t.bootstrapRequest(ctx, commitment)
		if err != nil {
			errc <- err
			return
		}

		current := t.initialRequestStatus(record)
		t.logger.Printf("🔍 tracker: commitment %x bootstrapped at status %s", commitment, current)

		timedOut := make(chan struct{}, 1)
		watcherCtx, cancelWatcher := context.WithCancel(ctx)
		defer cancelWatcher()
		go t.watchForTimeout(watcherCtx, record, timedOut)

		for current != codec.StatusDestination {
			type advanceResult struct {
				next codec.RequestStatus
				ev   StatusEvent
				err  error
			}
			advanceCh := make(chan advanceResult, 1)
			advanceCtx, cancelAdvance := context.WithCancel(ctx)

			go func(cur codec.RequestStatus) {
				next, ev, err := t.advanceRequestStatus(advanceCtx, record, cur)
				advanceCh <- advanceResult{next, ev, err}
			}(current)

			select {
			case <-ctx.Done():
				cancelAdvance()
				errc <- ctx.Err()
				return
			case <-timedOut:
				cancelAdvance()
				t.logger.Printf("⏱️ tracker: commitment %x passed its timeout, handing off to timeout stream", commitment)
				out <- StatusEvent{Status: codec.StatusHyperbridgeTimedOut}
				return
			case res := <-advanceCh:
				cancelAdvance()
				if res.err != nil {
					errc <- res.err
					return
				}
				current = res.next
				out <- res.ev
				t.logger.Printf("✅ tracker: commitment %x advanced to %s", commitment, current)
			}
		}
	}()

	return out, errc
}

// bootstrapRequest polls the indexer until a record for commitment exists.
func (t *Tracker) bootstrapRequest(ctx context.Context, commitment []byte) (*indexer.RequestRecord, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		record, err := t.idx.RequestByCommitment(commitment)
		if err != nil {
			t.logger.Printf("⚠️ tracker: bootstrap poll for %x failed: %v", commitment, err)
		} else if record != nil {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// initialRequestStatus is the bootstrap status per §4.5.1: HYPERBRIDGE_DELIVERED if the
// source chain is the hub, SOURCE otherwise, then resumed from the indexer's latest
// observed status if that is further along by weight.
func (t *Tracker) initialRequestStatus(record *indexer.RequestRecord) codec.RequestStatus {
	status := codec.StatusSource
	if t.isHub(record.Source) {
		status = codec.StatusHyperbridgeDelivered
	}

	for _, ev := range indexer.SortedStatuses(record.StatusEvents) {
		if ev.Status.Weight() > status.Weight() {
			status = ev.Status
		}
	}
	return status
}

// advanceRequestStatus blocks until the evidence required for the next transition out of
// current appears, returning the next status and the event to yield for it.
func (t *Tracker) advanceRequestStatus(ctx context.Context, record *indexer.RequestRecord, current codec.RequestStatus) (codec.RequestStatus, StatusEvent, error) {
	switch current {
	case codec.StatusSource:
		return t.advanceSourceToSourceFinalized(ctx, record)
	case codec.StatusSourceFinalized:
		return t.advanceSourceFinalized(ctx, record)
	case codec.StatusHyperbridgeDelivered:
		return t.advanceHyperbridgeDelivered(ctx, record)
	case codec.StatusHyperbridgeFinalized:
		return t.advanceHyperbridgeFinalized(ctx, record)
	default:
		return current, StatusEvent{}, fmt.Errorf("tracker: no transition defined out of status %s", current)
	}
}

// advanceSourceToSourceFinalized waits for a hub state-machine update advancing past the
// source block that contains the request.
func (t *Tracker) advanceSourceToSourceFinalized(ctx context.Context, record *indexer.RequestRecord) (codec.RequestStatus, StatusEvent, error) {
	sourceHeight := t.latestEventHeight(record.StatusEvents, codec.StatusSource)
	update, err := t.waitForStateMachineUpdate(ctx, record.Source, sourceHeight)
	if err != nil {
		return 0, StatusEvent{}, err
	}
	return codec.StatusSourceFinalized, StatusEvent{Status: codec.StatusSourceFinalized, Height: update.Height, Time: update.UpdateTime}, nil
}

// advanceSourceFinalized waits for a second indexer status event (the hub or destination
// observing delivery), skipping straight to DESTINATION when the destination is the hub.
func (t *Tracker) advanceSourceFinalized(ctx context.Context, record *indexer.RequestRecord) (codec.RequestStatus, StatusEvent, error) {
	if t.isHub(record.Dest) {
		ev, err := t.waitForIndexerStatus(ctx, record, codec.StatusDestination)
		if err != nil {
			return 0, StatusEvent{}, err
		}
		return codec.StatusDestination, ev, nil
	}

	ev, err := t.waitForIndexerStatus(ctx, record, codec.StatusHyperbridgeDelivered)
	if err != nil {
		return 0, StatusEvent{}, err
	}
	return codec.StatusHyperbridgeDelivered, ev, nil
}

// advanceHyperbridgeDelivered waits for a destination state-machine update past the hub
// block that recorded delivery, then builds the destination calldata needed to deliver
// the PostRequest: a hub proof of the commitment, encoded by the destination adapter,
// gated on the destination's challenge period having elapsed.
func (t *Tracker) advanceHyperbridgeDelivered(ctx context.Context, record *indexer.RequestRecord) (codec.RequestStatus, StatusEvent, error) {
	hubHeight := t.latestEventHeight(record.StatusEvents, codec.StatusHyperbridgeDelivered)
	update, err := t.waitForStateMachineUpdate(ctx, t.hub.StateMachine(), hubHeight)
	if err != nil {
		return 0, StatusEvent{}, err
	}

	destAdapter, err := t.adapter(record.Dest)
	if err != nil {
		return 0, StatusEvent{}, err
	}

	calldata, err := t.buildDestinationCalldata(ctx, record, update.Height)
	if err != nil {
		return 0, StatusEvent{}, err
	}

	if err := t.waitForChallengePeriod(ctx, destAdapter, t.hub.StateMachine(), update.UpdateTime); err != nil {
		return 0, StatusEvent{}, err
	}

	return codec.StatusHyperbridgeFinalized, StatusEvent{
		Status:   codec.StatusHyperbridgeFinalized,
		Calldata: calldata,
		Height:   update.Height,
		Time:     update.UpdateTime,
	}, nil
}

// buildDestinationCalldata queries the hub for a proof of record's commitment at
// hubFinalizedHeight and encodes the resulting PostRequest delivery message the way the
// destination adapter's handler expects.
func (t *Tracker) buildDestinationCalldata(ctx context.Context, record *indexer.RequestRecord, hubFinalizedHeight uint64) ([]byte, error) {
	destAdapter, err := t.adapter(record.Dest)
	if err != nil {
		return nil, err
	}

	proof, err := t.hub.QueryProof(ctx, ProofRequestFor(record.Commitment), record.Dest, &hubFinalizedHeight)
	if err != nil {
		return nil, fmt.Errorf("tracker: query hub proof for %x: %w", record.Commitment, err)
	}

	calldata, err := destAdapter.Encode(codec.NewPostRequestMessage(
		[]codec.PostRequest{record.Request},
		codec.Proof{Height: hubFinalizedHeight, StateMachine: t.hub.StateMachine(), Payload: proof.Payload},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("tracker: encode destination calldata: %w", err)
	}
	return calldata, nil
}

// advanceHyperbridgeFinalized waits for the indexer to report delivery on destination.
func (t *Tracker) advanceHyperbridgeFinalized(ctx context.Context, record *indexer.RequestRecord) (codec.RequestStatus, StatusEvent, error) {
	ev, err := t.waitForIndexerStatus(ctx, record, codec.StatusDestination)
	if err != nil {
		return 0, StatusEvent{}, err
	}
	return codec.StatusDestination, ev, nil
}

// waitForIndexerStatus polls the indexer for record's commitment until it reports want
// among its status events, returning that event.
func (t *Tracker) waitForIndexerStatus(ctx context.Context, record *indexer.RequestRecord, want codec.RequestStatus) (StatusEvent, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		fresh, err := t.idx.RequestByCommitment(record.Commitment)
		if err != nil {
			t.logger.Printf("⚠️ tracker: indexer status poll for %x failed: %v", record.Commitment, err)
		} else if fresh != nil {
			record.StatusEvents = fresh.StatusEvents
			for _, ev := range fresh.StatusEvents {
				if ev.Status == want {
					return StatusEvent{Status: ev.Status, Calldata: ev.Calldata, Height: ev.Height, Time: ev.Time}, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return StatusEvent{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tracker) latestEventHeight(events []indexer.StatusEvent, status codec.RequestStatus) uint64 {
	var height uint64
	for _, ev := range events {
		if ev.Status == status && ev.Height > height {
			height = ev.Height
		}
	}
	return height
}

// watchForTimeout compares the destination chain's clock against record's timeout
// timestamp, signalling timedOut once it has passed. Runs until ctx is cancelled.
func (t *Tracker) watchForTimeout(ctx context.Context, record *indexer.RequestRecord, timedOut chan<- struct{}) {
	destAdapter, err := t.adapter(record.Dest)
	if err != nil {
		// No adapter for the destination (e.g. it's the hub, which never times out
		// its own delivery): the watcher has nothing to observe.
		return
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now, err := destAdapter.Timestamp(ctx)
		if err != nil {
			t.logger.Printf("⚠️ tracker: timeout watcher timestamp read failed: %v", err)
			continue
		}
		if now >= record.TimeoutTimestamp {
			select {
			case timedOut <- struct{}{}:
			default:
			}
			return
		}
	}
}
