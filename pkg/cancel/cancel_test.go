package cancel

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/hyperbridge-core/pkg/chainadapter"
	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/indexer"
	"github.com/certen/hyperbridge-core/pkg/intent"
	"github.com/certen/hyperbridge-core/pkg/kvstore"
)

// fakeAdapter is a minimal chainadapter.Adapter stub, grounded on the equivalent fake in
// pkg/tracker/tracker_test.go.
type fakeAdapter struct {
	mu        sync.Mutex
	sm        codec.StateMachineId
	now       uint64
	challenge uint64
	receipts  map[string][]byte
}

func newFakeAdapter(sm codec.StateMachineId) *fakeAdapter {
	return &fakeAdapter{sm: sm, receipts: map[string][]byte{}}
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
	return []byte("encoded-get-request"), nil
}

func (f *fakeAdapter) setReceipt(commitment []byte, v []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[string(commitment)] = v
}

// fakeIndexer is a minimal indexer.IndexerClient stub scripted per-test.
type fakeIndexer struct {
	mu          sync.Mutex
	updates     map[string][]indexer.StateMachineUpdateEvent
	getRequests map[string]*indexer.GetRequestRecord
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{updates: map[string][]indexer.StateMachineUpdateEvent{}, getRequests: map[string]*indexer.GetRequestRecord{}}
}

func (f *fakeIndexer) RequestByCommitment(commitment []byte) (*indexer.RequestRecord, error) {
	return nil, nil
}

func (f *fakeIndexer) GetRequestByCommitment(commitment []byte) (*indexer.GetRequestRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getRequests[string(commitment)], nil
}

func (f *fakeIndexer) OrderByCommitment(commitment []byte) (*indexer.OrderRecord, error) {
	return nil, nil
}

func (f *fakeIndexer) TeleportByCommitment(commitment []byte) (*indexer.TeleportRecord, error) {
	return nil, nil
}

func (f *fakeIndexer) StateMachineUpdatesAfter(stateMachine codec.StateMachineId, afterHeight uint64) ([]indexer.StateMachineUpdateEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []indexer.StateMachineUpdateEvent
	for _, u := range f.updates[stateMachine.String()] {
		if u.Height > afterHeight {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeIndexer) pushUpdate(sm codec.StateMachineId, ev indexer.StateMachineUpdateEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[sm.String()] = append(f.updates[sm.String()], ev)
}

func (f *fakeIndexer) setGetRequestStatus(commitment []byte, status codec.RequestStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.getRequests[string(commitment)]
	if rec == nil {
		rec = &indexer.GetRequestRecord{Commitment: commitment}
		f.getRequests[string(commitment)] = rec
	}
	rec.StatusEvents = append(rec.StatusEvents, indexer.StatusEvent{Status: status})
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t}, "[cancel-test] ", 0)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func sampleCancelOrder(t *testing.T) intent.OrderV2 {
	t.Helper()
	src, err := codec.ParseStateMachineId("EVM-1")
	if err != nil {
		t.Fatalf("parse source: %v", err)
	}
	dst, err := codec.ParseStateMachineId("EVM-2")
	if err != nil {
		t.Fatalf("parse dest: %v", err)
	}
	var id [32]byte
	id[0] = 0xAB
	return intent.OrderV2{
		ID:          id,
		Source:      src,
		Destination: dst,
		Deadline:    1_000,
		Output:      intent.PaymentInfo{Token: common.HexToAddress("0x01"), Amount: nil, Beneficiary: common.HexToAddress("0x02")},
	}
}

func TestCancelSameChainBuildsCalldataAndParsesEscrowRefunded(t *testing.T) {
	order := sampleCancelOrder(t)
	c := New(nil, nil, nil, kvstore.NewMemoryStore(), time.Millisecond, 0, 0, testLogger(t))

	calldata := c.CancelSameChain(order)
	if len(calldata) < 4 {
		t.Fatalf("expected calldata with at least a 4-byte selector, got %d bytes", len(calldata))
	}

	refundedTopic := common.BytesToHash(intent.EscrowRefundedTopic())
	logs := []intent.ReceiptLog{
		{Topics: []common.Hash{refundedTopic, common.BytesToHash(order.ID[:])}},
	}
	if !ParseEscrowRefunded(logs, order.ID) {
		t.Fatalf("expected EscrowRefunded to be detected")
	}

	otherOrder := order
	otherOrder.ID[31] = 0xFF
	if ParseEscrowRefunded(logs, otherOrder.ID) {
		t.Fatalf("did not expect EscrowRefunded to match a different order id")
	}
}

func TestIsSameChain(t *testing.T) {
	order := sampleCancelOrder(t)
	if IsSameChain(order) {
		t.Fatalf("source and destination differ, expected false")
	}
	order.Destination = order.Source
	if !IsSameChain(order) {
		t.Fatalf("source equals destination, expected true")
	}
}

// TestCrossChainCancellationFullCycle drives the state machine end to end: non-inclusion
// proof, a yield for the caller's GET-request tx, source finality, hub submission and
// receipt, then delivery/finality, ending in a purge.
func TestCrossChainCancellationFullCycle(t *testing.T) {
	order := sampleCancelOrder(t)

	hub := newFakeAdapter(codec.Evm(9999))
	destAdapter := newFakeAdapter(order.Destination)
	sourceAdapter := newFakeAdapter(order.Source)
	idx := newFakeIndexer()
	kv := kvstore.NewMemoryStore()

	c := New(hub, map[string]chainadapter.Adapter{
		order.Source.String():      sourceAdapter,
		order.Destination.String(): destAdapter,
	}, idx, kv, time.Millisecond, 3, time.Millisecond, testLogger(t))

	// Step 1: no destination update yet -> Advance blocks until one is pushed. Push it
	// in a goroutine so the ticker-driven poll inside Advance has something to find.
	go func() {
		time.Sleep(5 * time.Millisecond)
		idx.pushUpdate(order.Destination, indexer.StateMachineUpdateEvent{Height: 500, UpdateTime: 2_000})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stage, calldata, err := c.Advance(ctx, order)
	if !AwaitingCallerInput(err) {
		t.Fatalf("expected a caller-input yield after step 1, got stage=%s calldata=%v err=%v", stage, calldata, err)
	}
	if stage != StageAwaitingGetRequest {
		t.Fatalf("expected StageAwaitingGetRequest, got %s", stage)
	}

	// Step 2: caller reports the source tx hash; its receipt carries the GetRequestEvent.
	getReq := codec.GetRequest{
		Source:           order.Source,
		Dest:             hub.sm,
		From:             []byte("from"),
		Nonce:            1,
		Height:           0,
		TimeoutTimestamp: 5_000,
		Keys:             [][]byte{[]byte("key")},
		Context:          []byte("ctx"),
	}
	e := codec.NewEncoder()
	getReq.Encode(e)
	logs := []intent.ReceiptLog{
		{Topics: []common.Hash{common.BytesToHash(intent.GetRequestEventTopic())}, Data: e.Bytes()},
	}
	if err := c.SubmitSourceTx(order, "0xsourcetx", logs); err != nil {
		t.Fatalf("SubmitSourceTx: %v", err)
	}

	// Step 3: push a source-chain update so the finality wait resolves, then drive
	// Advance through proof fetch, challenge wait (zero here: the hub clock already reads
	// the update time and the challenge period is zero), and hub submission.
	hub.now = 100
	go func() {
		time.Sleep(5 * time.Millisecond)
		idx.pushUpdate(order.Source, indexer.StateMachineUpdateEvent{Height: 10, UpdateTime: 100})
	}()

	stage, calldata, err = c.Advance(ctx, order)
	if err != nil {
		t.Fatalf("Advance (hub submission): %v", err)
	}
	if stage != StageSubmittingGetRequest {
		t.Fatalf("expected StageSubmittingGetRequest, got %s", stage)
	}
	if len(calldata) == 0 {
		t.Fatalf("expected hub GetRequest calldata to be yielded")
	}

	// Hub hasn't recorded the receipt yet: Advance should retry and fail.
	if _, _, err := c.Advance(ctx, order); err == nil {
		t.Fatalf("expected an error while the hub receipt has not appeared")
	}

	// Now the receipt appears; the retry loop should pick it up and move on, and the
	// indexer reports delivery/finality so the flow completes and purges its state.
	hub.setReceipt(getReq.Commitment(), []byte("receipt-bytes"))
	idx.setGetRequestStatus(getReq.Commitment(), codec.StatusHyperbridgeDelivered)
	idx.setGetRequestStatus(getReq.Commitment(), codec.StatusHyperbridgeFinalized)

	stage, _, err = c.Advance(ctx, order)
	if err != nil {
		t.Fatalf("Advance (final): %v", err)
	}
	if stage != StageDone {
		t.Fatalf("expected StageDone, got %s", stage)
	}

	if ok, err := kv.Has(cancellationKey(order.ID)); err != nil || ok {
		t.Fatalf("expected cancellation state to be purged, has=%v err=%v", ok, err)
	}
}

func TestSubmitSourceTxRejectsWrongStage(t *testing.T) {
	order := sampleCancelOrder(t)
	c := New(newFakeAdapter(codec.Evm(1)), nil, newFakeIndexer(), kvstore.NewMemoryStore(), time.Millisecond, 1, time.Millisecond, testLogger(t))

	if err := c.SubmitSourceTx(order, "0xabc", nil); err == nil {
		t.Fatalf("expected an error: no cancellation is in flight for this order yet")
	}
}
