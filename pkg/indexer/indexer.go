// Package indexer implements the Query Client (C4): a thin, retrying read facade over an
// external indexer that tracks request/get-request/order/teleport records and
// state-machine-update events, normalizing indexer-reported statuses into the sorted
// sequences §3's weights define. The indexer's GraphQL schema and transport are explicitly
// out of scope per SPEC_FULL.md §1 — the Tracker (C5) and Executor (C6) depend only on the
// IndexerClient interface below; GraphQLClient is one replaceable implementation of it.
package indexer

import (
	"github.com/certen/hyperbridge-core/pkg/codec"
)

// StatusEvent pairs an observed status with the metadata the tracker needs to resume or
// display it — calldata if the transition carries precomputed submission bytes, and the
// chain height/time the event was recorded at.
type StatusEvent struct {
	Status   codec.RequestStatus
	Calldata []byte
	Height   uint64
	Time     uint64
}

// TimeoutStatusEvent is StatusEvent's counterpart for the timeout continuation stream.
type TimeoutStatusEvent struct {
	Status   codec.TimeoutStatus
	Calldata []byte
	Height   uint64
	Time     uint64
}

// RequestRecord is the indexer's view of one PostRequest's lifecycle.
type RequestRecord struct {
	Commitment          []byte
	Source              codec.StateMachineId
	Dest                codec.StateMachineId
	TimeoutTimestamp    uint64
	Request             codec.PostRequest
	StatusEvents        []StatusEvent
	TimeoutStatusEvents []TimeoutStatusEvent
}

// GetRequestRecord is the indexer's view of one GetRequest's lifecycle.
type GetRequestRecord struct {
	Commitment   []byte
	Request      codec.GetRequest
	StatusEvents []StatusEvent
}

// OrderRecord is the indexer's view of one intent order (§4.6/§4.7).
type OrderRecord struct {
	ID          [32]byte
	Commitment  []byte
	Source      codec.StateMachineId
	Destination codec.StateMachineId
	Deadline    uint64
	Cancelled   bool
}

// TeleportRecord is the indexer's view of a cross-chain asset teleport, named in C4's
// responsibility list alongside requests/get-requests/orders.
type TeleportRecord struct {
	Commitment []byte
	Source     codec.StateMachineId
	Dest       codec.StateMachineId
	Delivered  bool
}

// StateMachineUpdateEvent is a single finality checkpoint the hub (or a destination chain,
// for the cancellation flow's non-inclusion proof) has recorded for a state machine.
type StateMachineUpdateEvent struct {
	StateMachine codec.StateMachineId
	Height       uint64
	UpdateTime   uint64
}

// IndexerClient is the narrow read contract the Tracker and Executor depend on.
type IndexerClient interface {
	RequestByCommitment(commitment []byte) (*RequestRecord, error)
	GetRequestByCommitment(commitment []byte) (*GetRequestRecord, error)
	OrderByCommitment(commitment []byte) (*OrderRecord, error)
	TeleportByCommitment(commitment []byte) (*TeleportRecord, error)

	// StateMachineUpdatesAfter returns update events for stateMachine recorded at a
	// height strictly greater than afterHeight, ordered by height ascending.
	StateMachineUpdatesAfter(stateMachine codec.StateMachineId, afterHeight uint64) ([]StateMachineUpdateEvent, error)
}

// SortedStatuses returns events sorted ascending by combined weight, per §3's "returns
// statuses sorted by a fixed weight".
func SortedStatuses(events []StatusEvent) []StatusEvent {
	out := make([]StatusEvent, len(events))
	copy(out, events)
	insertionSortByWeight(out, func(e StatusEvent) int { return e.Status.Weight() })
	return out
}

// SortedTimeoutStatuses is SortedStatuses's counterpart for the timeout stream.
func SortedTimeoutStatuses(events []TimeoutStatusEvent) []TimeoutStatusEvent {
	out := make([]TimeoutStatusEvent, len(events))
	copy(out, events)
	insertionSortByWeight(out, func(e TimeoutStatusEvent) int { return e.Status.Weight() })
	return out
}

// insertionSortByWeight is a small stable sort; event lists here are always short (at most
// the 7-element RequestStatus/5-element TimeoutStatus domains), so an O(n^2) insertion
// sort is simpler than importing sort.Slice's closure overhead for no measurable benefit.
func insertionSortByWeight[T any](items []T, weight func(T) int) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && weight(items[j-1]) > weight(items[j]) {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}
