package tracker

import (
	"context"

	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
)

// AddRequestFinalityEvents consumes a raw indexer record and, for each unobserved
// finality milestone between its recorded statuses, injects a SOURCE_FINALIZED or
// HYPERBRIDGE_FINALIZED synthetic status (with pre-computed calldata where the milestone
// needs it) by consulting state-machine-update events, per §4.5.3. The returned record's
// StatusEvents are sorted by combined weight and free of gaps.
func (t *Tracker) AddRequestFinalityEvents(ctx context.Context, record *indexer.RequestRecord) *indexer.RequestRecord {
	has := func(status codec.RequestStatus) bool {
		for _, ev := range record.StatusEvents {
			if ev.Status == status {
				return true
			}
		}
		return false
	}

	if has(codec.StatusSource) && !has(codec.StatusSourceFinalized) {
		if ev, ok := t.synthesizeSourceFinalized(record); ok {
			record.StatusEvents = append(record.StatusEvents, ev)
		}
	}

	if has(codec.StatusHyperbridgeDelivered) && !has(codec.StatusHyperbridgeFinalized) {
		if ev, ok := t.synthesizeHyperbridgeFinalized(ctx, record); ok {
			record.StatusEvents = append(record.StatusEvents, ev)
		}
	}

	record.StatusEvents = indexer.SortedStatuses(record.StatusEvents)
	return record
}

func (t *Tracker) synthesizeSourceFinalized(record *indexer.RequestRecord) (indexer.StatusEvent, bool) {
	sourceHeight := t.latestEventHeight(record.StatusEvents, codec.StatusSource)
	updates, err := t.idx.StateMachineUpdatesAfter(record.Source, sourceHeight)
	if err != nil || len(updates) == 0 {
		if err != nil {
			t.logger.Printf("⚠️ tracker: enrichment could not check source finality for %x: %v", record.Commitment, err)
		}
		return indexer.StatusEvent{}, false
	}
	u := updates[0]
	return indexer.StatusEvent{Status: codec.StatusSourceFinalized, Height: u.Height, Time: u.UpdateTime}, true
}

func (t *Tracker) synthesizeHyperbridgeFinalized(ctx context.Context, record *indexer.RequestRecord) (indexer.StatusEvent, bool) {
	hubHeight := t.latestEventHeight(record.StatusEvents, codec.StatusHyperbridgeDelivered)
	updates, err := t.idx.StateMachineUpdatesAfter(t.hub.StateMachine(), hubHeight)
	if err != nil || len(updates) == 0 {
		if err != nil {
			t.logger.Printf("⚠️ tracker: enrichment could not check hub finality for %x: %v", record.Commitment, err)
		}
		return indexer.StatusEvent{}, false
	}
	u := updates[0]

	calldata, err := t.buildDestinationCalldata(ctx, record, u.Height)
	if err != nil {
		t.logger.Printf("⚠️ tracker: enrichment computed no calldata for %x: %v", record.Commitment, err)
	}
	return indexer.StatusEvent{Status: codec.StatusHyperbridgeFinalized, Calldata: calldata, Height: u.Height, Time: u.UpdateTime}, true
}
