package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/certen/hyperbridge-core/pkg/chainadapter"
	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
)

// fakeAdapter is a minimal chainadapter.Adapter stub for tracker tests.
type fakeAdapter struct {
	mu           sync.Mutex
	sm           codec.StateMachineId
	now          uint64
	challenge    uint64
	receipts     map[string][]byte
	encodeCalls  int
}

func newFakeAdapter(sm codec.StateMachineId) *fakeAdapter {
	return &fakeAdapter{sm: sm, receipts: map[string][]byte{}, challenge: 0}
}

func (f *fakeAdapter) StateMachine() codec.StateMachineId { return f.sm }

func (f *fakeAdapter) Timestamp(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now, nil
}

func (f *fakeAdapter) RequestReceiptKey(commitment []byte) ([]byte, error) {
	return append([]byte("receipt:"), commitment...), nil
}

func (f *fakeAdapter) QueryRequestReceipt(ctx context.Context, commitment []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[string(commitment)], nil
}

func (f *fakeAdapter) QueryStateProof(ctx context.Context, height uint64, keys [][]byte) (chainadapter.StateProof, error) {
	return chainadapter.StateProof{Kind: "fake", Payload: []byte("state-proof")}, nil
}

func (f *fakeAdapter) QueryProof(ctx context.Context, req chainadapter.ProofRequest, counterparty codec.StateMachineId, atHeight *uint64) (chainadapter.StateProof, error) {
	return chainadapter.StateProof{Kind: "fake", Payload: []byte("commitment-proof")}, nil
}

func (f *fakeAdapter) LatestStateMachineHeight(ctx context.Context, id codec.StateMachineId) (uint64, error) {
	return 0, nil
}

func (f *fakeAdapter) ChallengePeriod(ctx context.Context, id codec.StateMachineId) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge, nil
}

func (f *fakeAdapter) StateMachineUpdateTime(ctx context.Context, height codec.StateMachineHeight) (uint64, error) {
	return 0, nil
}

func (f *fakeAdapter) Encode(msg codec.IsmpMessage) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encodeCalls++
	return []byte("encoded"), nil
}

// fakeIndexer is a minimal indexer.IndexerClient stub that lets tests script the
// record/state-machine-update sequence a real indexer would eventually report.
type fakeIndexer struct {
	mu      sync.Mutex
	records map[string]*indexer.RequestRecord
	updates map[string][]indexer.StateMachineUpdateEvent
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{records: map[string]*indexer.RequestRecord{}, updates: map[string][]indexer.StateMachineUpdateEvent{}}
}

func (f *fakeIndexer) RequestByCommitment(commitment []byte) (*indexer.RequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.records[string(commitment)]
	if r == nil {
		return nil, nil
	}
	cp := *r
	cp.StatusEvents = append([]indexer.StatusEvent(nil), r.StatusEvents...)
	cp.TimeoutStatusEvents = append([]indexer.TimeoutStatusEvent(nil), r.TimeoutStatusEvents...)
	return &cp, nil
}

func (f *fakeIndexer) GetRequestByCommitment(commitment []byte) (*indexer.GetRequestRecord, error) {
	return nil, nil
}
func (f *fakeIndexer) OrderByCommitment(commitment []byte) (*indexer.OrderRecord, error) { return nil, nil }
func (f *fakeIndexer) TeleportByCommitment(commitment []byte) (*indexer.TeleportRecord, error) {
	return nil, nil
}

func (f *fakeIndexer) StateMachineUpdatesAfter(sm codec.StateMachineId, afterHeight uint64) ([]indexer.StateMachineUpdateEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []indexer.StateMachineUpdateEvent
	for _, u := range f.updates[sm.String()] {
		if u.Height > afterHeight {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeIndexer) setRecord(commitment []byte, r *indexer.RequestRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[string(commitment)] = r
}

func (f *fakeIndexer) pushUpdate(sm codec.StateMachineId, u indexer.StateMachineUpdateEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[sm.String()] = append(f.updates[sm.String()], u)
}

func (f *fakeIndexer) setRecordStatus(commitment []byte, ev indexer.StatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r := f.records[string(commitment)]; r != nil {
		r.StatusEvents = append(r.StatusEvents, ev)
	}
}

func mustSM(t *testing.T, s string) codec.StateMachineId {
	t.Helper()
	sm, err := codec.ParseStateMachineId(s)
	if err != nil {
		t.Fatalf("ParseStateMachineId(%s): %v", s, err)
	}
	return sm
}

func TestInitialRequestStatusHubSource(t *testing.T) {
	hub := newFakeAdapter(mustSM(t, "EVM-0"))
	tr := New(hub, map[string]chainadapter.Adapter{}, newFakeIndexer(), time.Millisecond, nil)

	record := &indexer.RequestRecord{Source: mustSM(t, "EVM-0"), Dest: mustSM(t, "EVM-1")}
	if got := tr.initialRequestStatus(record); got != codec.StatusHyperbridgeDelivered {
		t.Fatalf("initialRequestStatus = %v, want HYPERBRIDGE_DELIVERED", got)
	}
}

func TestInitialRequestStatusResumesFromLatestWeight(t *testing.T) {
	hub := newFakeAdapter(mustSM(t, "EVM-0"))
	tr := New(hub, map[string]chainadapter.Adapter{}, newFakeIndexer(), time.Millisecond, nil)

	record := &indexer.RequestRecord{
		Source: mustSM(t, "EVM-1"),
		Dest:   mustSM(t, "EVM-2"),
		StatusEvents: []indexer.StatusEvent{
			{Status: codec.StatusSource},
			{Status: codec.StatusSourceFinalized},
		},
	}
	if got := tr.initialRequestStatus(record); got != codec.StatusSourceFinalized {
		t.Fatalf("initialRequestStatus = %v, want SOURCE_FINALIZED", got)
	}
}

func TestLatestEventHeight(t *testing.T) {
	events := []indexer.StatusEvent{
		{Status: codec.StatusSource, Height: 5},
		{Status: codec.StatusSource, Height: 12},
		{Status: codec.StatusDestination, Height: 99},
	}
	hub := newFakeAdapter(mustSM(t, "EVM-0"))
	tr := New(hub, map[string]chainadapter.Adapter{}, newFakeIndexer(), time.Millisecond, nil)
	if got := tr.latestEventHeight(events, codec.StatusSource); got != 12 {
		t.Fatalf("latestEventHeight = %d, want 12", got)
	}
}

func TestAddRequestFinalityEventsInjectsSourceFinalized(t *testing.T) {
	source := mustSM(t, "EVM-1")
	hub := newFakeAdapter(mustSM(t, "EVM-0"))
	idx := newFakeIndexer()
	idx.pushUpdate(source, indexer.StateMachineUpdateEvent{StateMachine: source, Height: 10, UpdateTime: 1000})

	tr := New(hub, map[string]chainadapter.Adapter{}, idx, time.Millisecond, nil)
	record := &indexer.RequestRecord{
		Commitment: []byte{0xaa},
		Source:     source,
		Dest:       mustSM(t, "EVM-2"),
		StatusEvents: []indexer.StatusEvent{
			{Status: codec.StatusSource, Height: 1},
		},
	}

	enriched := tr.AddRequestFinalityEvents(context.Background(), record)

	var found bool
	for _, ev := range enriched.StatusEvents {
		if ev.Status == codec.StatusSourceFinalized {
			found = true
			if ev.Height != 10 {
				t.Fatalf("synthesized SOURCE_FINALIZED height = %d, want 10", ev.Height)
			}
		}
	}
	if !found {
		t.Fatalf("AddRequestFinalityEvents did not inject SOURCE_FINALIZED, got %+v", enriched.StatusEvents)
	}
	// Sorted ascending by weight: SOURCE (0) must precede SOURCE_FINALIZED (1).
	if enriched.StatusEvents[0].Status != codec.StatusSource {
		t.Fatalf("enriched events not sorted by weight: %+v", enriched.StatusEvents)
	}
}

func TestTrackRequestReachesDestination(t *testing.T) {
	hubSM := mustSM(t, "EVM-0")
	sourceSM := mustSM(t, "EVM-1")
	destSM := mustSM(t, "EVM-2")

	hub := newFakeAdapter(hubSM)
	dest := newFakeAdapter(destSM)
	dest.now = 1000 // past any configured challenge period (0) relative to update times used below
	commitment := []byte{0x01, 0x02}

	idx := newFakeIndexer()
	idx.setRecord(commitment, &indexer.RequestRecord{
		Commitment:       commitment,
		Source:           sourceSM,
		Dest:             destSM,
		TimeoutTimestamp: 1 << 40, // far in the future, timeout watcher never fires
		Request:          codec.PostRequest{Source: sourceSM, Dest: destSM, Nonce: 1},
		StatusEvents:     []indexer.StatusEvent{{Status: codec.StatusSource, Height: 1}},
	})
	idx.pushUpdate(sourceSM, indexer.StateMachineUpdateEvent{StateMachine: sourceSM, Height: 5, UpdateTime: 100})
	idx.pushUpdate(hubSM, indexer.StateMachineUpdateEvent{StateMachine: hubSM, Height: 7, UpdateTime: 200})

	tr := New(hub, map[string]chainadapter.Adapter{destSM.String(): dest}, idx, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, errc := tr.TrackRequest(ctx, commitment)

	var statuses []codec.RequestStatus
	go func() {
		time.Sleep(20 * time.Millisecond)
		idx.setRecordStatus(commitment, indexer.StatusEvent{Status: codec.StatusHyperbridgeDelivered})
	}()
	go func() {
		time.Sleep(40 * time.Millisecond)
		idx.setRecordStatus(commitment, indexer.StatusEvent{Status: codec.StatusDestination})
	}()

	for ev := range out {
		statuses = append(statuses, ev.Status)
	}
	if err := <-errc; err != nil {
		t.Fatalf("TrackRequest returned error: %v", err)
	}

	if len(statuses) == 0 || statuses[len(statuses)-1] != codec.StatusDestination {
		t.Fatalf("TrackRequest did not terminate at DESTINATION, got %v", statuses)
	}
}
