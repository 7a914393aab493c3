package cancel

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
	"github.com/certen/hyperbridge-core/pkg/intent"
)

// Advance drives the cross-chain cancellation state machine for order one or more steps
// forward, blocking on whatever on-chain evidence the current stage needs. It returns
// three things: the stage reached, calldata to broadcast if this step produced any (the
// hub GET-request submission in step 3; nil otherwise), and an error. A *cancelErr
// (test with AwaitingCallerInput) means the state machine is parked at
// StageAwaitingGetRequest waiting for SubmitSourceTx, not a failure.
func (c *Canceller) Advance(ctx context.Context, order intent.OrderV2) (CancellationStage, []byte, error) {
	st, err := c.loadState(order.ID)
	if err != nil {
		return "", nil, err
	}

	for {
		switch st.Stage {
		case StageAwaitingNonInclusion:
			if err := c.advanceNonInclusion(ctx, order, &st); err != nil {
				return st.Stage, nil, err
			}
		case StageAwaitingGetRequest:
			if err := c.saveState(order.ID, st); err != nil {
				return st.Stage, nil, err
			}
			c.logger.Printf("🔄 cancel: order %x awaiting GET-request dispatch from caller", order.ID)
			return st.Stage, nil, &cancelErr{stage: st.Stage}
		case StageAwaitingSourceFinalized:
			if err := c.advanceSourceFinalized(ctx, order, &st); err != nil {
				return st.Stage, nil, err
			}
		case StageSubmittingGetRequest:
			calldata, done, err := c.advanceSubmittingGetRequest(ctx, order, &st)
			if err != nil {
				return st.Stage, nil, err
			}
			if !done {
				if serr := c.saveState(order.ID, st); serr != nil {
					return st.Stage, nil, serr
				}
				return st.Stage, calldata, nil
			}
		case StageAwaitingDelivered:
			if err := c.advanceAwaitingDelivered(ctx, order, &st); err != nil {
				return st.Stage, nil, err
			}
		case StageAwaitingFinalized:
			if err := c.advanceAwaitingFinalized(ctx, order, &st); err != nil {
				return st.Stage, nil, err
			}
		case StageDone:
			if err := c.Purge(order.ID); err != nil {
				return st.Stage, nil, err
			}
			return StageDone, nil, nil
		default:
			return st.Stage, nil, fmt.Errorf("cancel: order %x in unknown stage %q", order.ID, st.Stage)
		}

		if st.Stage != StageDone {
			if err := c.saveState(order.ID, st); err != nil {
				return st.Stage, nil, err
			}
		}
		c.logger.Printf("✅ cancel: order %x advanced to %s", order.ID, st.Stage)
	}
}

// advanceNonInclusion implements §4.7 step 1: wait for a hub-registered destination
// update past order.Deadline, then fetch a state proof of the order's (still-empty)
// receipt slot at that height.
func (c *Canceller) advanceNonInclusion(ctx context.Context, order intent.OrderV2, st *cancellationState) error {
	destAdapter, err := c.adapter(order.Destination)
	if err != nil {
		return err
	}

	update, err := c.waitForUpdatePastTime(ctx, order.Destination, order.Deadline)
	if err != nil {
		return err
	}

	key, err := destAdapter.RequestReceiptKey(order.Commitment())
	if err != nil {
		return fmt.Errorf("cancel: destination receipt key for order %x: %w", order.ID, err)
	}
	proof, err := destAdapter.QueryStateProof(ctx, update.Height, [][]byte{key})
	if err != nil {
		return fmt.Errorf("cancel: destination non-inclusion proof for order %x: %w", order.ID, err)
	}

	st.NonInclusionHeight = update.Height
	st.NonInclusionProof = proof.Payload
	st.Stage = StageAwaitingGetRequest
	return nil
}

// SubmitSourceTx resolves step 2: the caller reports the source tx hash that dispatched
// the GET request, and this parses the GetRequestEvent log from its receipt.
func (c *Canceller) SubmitSourceTx(order intent.OrderV2, sourceTxHash string, logs []intent.ReceiptLog) error {
	st, err := c.loadState(order.ID)
	if err != nil {
		return err
	}
	if st.Stage != StageAwaitingGetRequest {
		return fmt.Errorf("cancel: order %x is at stage %s, not awaiting a source tx", order.ID, st.Stage)
	}

	getReq, err := decodeGetRequestEvent(logs)
	if err != nil {
		return fmt.Errorf("cancel: order %x: %w", order.ID, err)
	}

	e := codec.NewEncoder()
	getReq.Encode(e)

	st.SourceTxHash = sourceTxHash
	st.GetRequest = e.Bytes()
	st.GetCommitment = getReq.Commitment()
	st.Stage = StageAwaitingSourceFinalized

	if err := c.saveState(order.ID, st); err != nil {
		return err
	}
	c.logger.Printf("✅ cancel: order %x GET request %x observed in tx %s", order.ID, st.GetCommitment, sourceTxHash)
	return nil
}

// decodeGetRequestEvent scans logs for GetRequestEvent(bytes) and decodes its payload.
func decodeGetRequestEvent(logs []intent.ReceiptLog) (codec.GetRequest, error) {
	topic := intent.GetRequestEventTopic()
	for _, l := range logs {
		if len(l.Topics) == 0 || !bytesEqual(l.Topics[0].Bytes(), topic) {
			continue
		}
		return codec.DecodeGetRequest(codec.NewDecoder(l.Data))
	}
	return codec.GetRequest{}, fmt.Errorf("no GetRequestEvent log found")
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// advanceSourceFinalized implements §4.7 step 3's finality half: wait for the hub to
// record a source-chain update, fetch a source-side proof of the GET request's
// commitment at that height, then wait out the hub's challenge period for the source
// state machine before moving on to building the hub submission.
func (c *Canceller) advanceSourceFinalized(ctx context.Context, order intent.OrderV2, st *cancellationState) error {
	getReq, err := codec.DecodeGetRequest(codec.NewDecoder(st.GetRequest))
	if err != nil {
		return fmt.Errorf("cancel: decode persisted GET request for order %x: %w", order.ID, err)
	}

	sourceAdapter, err := c.adapter(getReq.Source)
	if err != nil {
		return err
	}

	update, err := c.waitForStateMachineUpdate(ctx, getReq.Source, 0)
	if err != nil {
		return err
	}

	key, err := sourceAdapter.RequestReceiptKey(st.GetCommitment)
	if err != nil {
		return fmt.Errorf("cancel: source receipt key for GET request %x: %w", st.GetCommitment, err)
	}
	proof, err := sourceAdapter.QueryStateProof(ctx, update.Height, [][]byte{key})
	if err != nil {
		return fmt.Errorf("cancel: source state proof for GET request %x: %w", st.GetCommitment, err)
	}

	if err := c.waitForChallengePeriod(ctx, getReq.Source, update.UpdateTime); err != nil {
		return err
	}

	st.SourceFinalizedHeight = update.Height
	st.SourceProof = proof.Payload
	st.Stage = StageSubmittingGetRequest
	return nil
}

// advanceSubmittingGetRequest implements §4.7 step 3's submission half. The first call
// builds and returns the IsmpMessage::GetRequest calldata for the caller to broadcast
// unsigned to the hub; later calls poll for the hub's receipt, retrying up to the
// configured attempt count with the configured backoff before giving up.
func (c *Canceller) advanceSubmittingGetRequest(ctx context.Context, order intent.OrderV2, st *cancellationState) (calldata []byte, done bool, err error) {
	getReq, err := codec.DecodeGetRequest(codec.NewDecoder(st.GetRequest))
	if err != nil {
		return nil, false, fmt.Errorf("cancel: decode persisted GET request for order %x: %w", order.ID, err)
	}

	if st.HubSubmitAttempts == 0 {
		msg := codec.NewGetRequestMessage(
			[]codec.GetRequest{getReq},
			codec.Proof{Height: st.SourceFinalizedHeight, StateMachine: getReq.Source, Payload: st.SourceProof},
			codec.Proof{Height: st.NonInclusionHeight, StateMachine: order.Destination, Payload: st.NonInclusionProof},
			nil,
		)
		encoded, err := c.hub.Encode(msg)
		if err != nil {
			return nil, false, fmt.Errorf("cancel: encode hub GET request message for order %x: %w", order.ID, err)
		}
		st.HubSubmitAttempts = 1
		c.logger.Printf("🔍 cancel: order %x built hub GetRequest submission, awaiting broadcast", order.ID)
		return encoded, false, nil
	}

	receipt, err := c.pollHubReceipt(ctx, st.GetCommitment)
	if err != nil {
		return nil, false, err
	}
	if receipt == nil {
		return nil, false, nil
	}

	st.Stage = StageAwaitingDelivered
	return nil, true, nil
}

// pollHubReceipt retries the hub's request-receipt query for commitment up to
// c.hubRetries times with c.hubBackoff between attempts, per §4.7 step 3's "retry up to
// 10 times with 5s backoff".
func (c *Canceller) pollHubReceipt(ctx context.Context, commitment []byte) ([]byte, error) {
	for attempt := 1; attempt <= c.hubRetries; attempt++ {
		receipt, err := c.hub.QueryRequestReceipt(ctx, commitment)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil {
			c.logger.Printf("⚠️ cancel: hub receipt poll for %x failed (attempt %d/%d): %v", commitment, attempt, c.hubRetries, err)
		}
		if attempt == c.hubRetries {
			return nil, fmt.Errorf("cancel: hub did not record a receipt for %x after %d attempts", commitment, c.hubRetries)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.hubBackoff):
		}
	}
	return nil, nil
}

// advanceAwaitingDelivered waits for the indexer to report HYPERBRIDGE_DELIVERED for the
// GET request's commitment before moving on to the finalized wait.
func (c *Canceller) advanceAwaitingDelivered(ctx context.Context, order intent.OrderV2, st *cancellationState) error {
	if _, err := c.waitForIndexerGetRequestStatus(ctx, st.GetCommitment, codec.StatusHyperbridgeDelivered); err != nil {
		return err
	}
	st.Stage = StageAwaitingFinalized
	return nil
}

// advanceAwaitingFinalized waits for HYPERBRIDGE_FINALIZED on the GET request, which per
// §4.7 step 4 is the terminal signal: the cancellation's cross-chain leg is complete and
// every persisted entry for the order can be purged.
func (c *Canceller) advanceAwaitingFinalized(ctx context.Context, order intent.OrderV2, st *cancellationState) error {
	if _, err := c.waitForIndexerGetRequestStatus(ctx, st.GetCommitment, codec.StatusHyperbridgeFinalized); err != nil {
		return err
	}
	st.Stage = StageDone
	return nil
}

func (c *Canceller) waitForIndexerGetRequestStatus(ctx context.Context, commitment []byte, want codec.RequestStatus) (indexer.StatusEvent, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		record, err := c.idx.GetRequestByCommitment(commitment)
		if err != nil {
			c.logger.Printf("⚠️ cancel: GET request status poll for %x failed: %v", commitment, err)
		} else if record != nil {
			for _, ev := range record.StatusEvents {
				if ev.Status == want {
					return ev, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return indexer.StatusEvent{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForUpdatePastTime polls the indexer until stateMachine has a recorded update whose
// UpdateTime is at least afterTime, returning the first such update — §4.7 step 1's
// "poll for a hub-registered state-machine update past order.deadline".
func (c *Canceller) waitForUpdatePastTime(ctx context.Context, stateMachine codec.StateMachineId, afterTime uint64) (indexer.StateMachineUpdateEvent, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var cursor uint64
	for {
		updates, err := c.idx.StateMachineUpdatesAfter(stateMachine, cursor)
		if err != nil {
			c.logger.Printf("⚠️ cancel: state machine update poll for %s failed: %v", stateMachine, err)
		}
		for _, u := range updates {
			if u.Height > cursor {
				cursor = u.Height
			}
			if u.UpdateTime >= afterTime {
				return u, nil
			}
		}
		select {
		case <-ctx.Done():
			return indexer.StateMachineUpdateEvent{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForStateMachineUpdate polls the indexer for the first update of stateMachine at a
// height strictly greater than afterHeight, mirroring pkg/tracker.Tracker's helper of the
// same name — this package polls the identical indexer.IndexerClient surface but does
// not import pkg/tracker, since neither package is a natural dependency of the other,
// so the small helper is duplicated rather than shared.
func (c *Canceller) waitForStateMachineUpdate(ctx context.Context, stateMachine codec.StateMachineId, afterHeight uint64) (indexer.StateMachineUpdateEvent, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		updates, err := c.idx.StateMachineUpdatesAfter(stateMachine, afterHeight)
		if err != nil {
			c.logger.Printf("⚠️ cancel: state machine update poll for %s failed: %v", stateMachine, err)
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
// moment the hub's configured challenge period for stateMachine elapses.
func (c *Canceller) waitForChallengePeriod(ctx context.Context, stateMachine codec.StateMachineId, updateTime uint64) error {
	period, err := c.hub.ChallengePeriod(ctx, stateMachine)
	if err != nil {
		return fmt.Errorf("cancel: challenge period for %s: %w", stateMachine, err)
	}
	deadline := updateTime + period

	now, err := c.hub.Timestamp(ctx)
	if err != nil {
		return fmt.Errorf("cancel: hub timestamp: %w", err)
	}
	if now >= deadline {
		return nil
	}

	remaining := time.Duration(deadline-now) * time.Second
	c.logger.Printf("🔄 cancel: waiting %v for challenge period on %s to elapse", remaining, stateMachine)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}
