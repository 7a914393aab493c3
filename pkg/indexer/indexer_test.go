package indexer

import (
	"testing"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

func TestSortedStatusesOrdersByWeight(t *testing.T) {
	events := []StatusEvent{
		{Status: codec.StatusDestination},
		{Status: codec.StatusSource},
		{Status: codec.StatusHyperbridgeDelivered},
	}
	sorted := SortedStatuses(events)

	want := []codec.RequestStatus{codec.StatusSource, codec.StatusHyperbridgeDelivered, codec.StatusDestination}
	for i, w := range want {
		if sorted[i].Status != w {
			t.Fatalf("sorted[%d].Status = %v, want %v", i, sorted[i].Status, w)
		}
	}
	if events[0].Status != codec.StatusDestination {
		t.Fatalf("SortedStatuses mutated its input slice")
	}
}

func TestSortedTimeoutStatusesOrdersByWeight(t *testing.T) {
	events := []TimeoutStatusEvent{
		{Status: codec.TimeoutStatusTimedOut},
		{Status: codec.TimeoutStatusPendingTimeout},
		{Status: codec.TimeoutStatusHyperbridgeTimedOut},
	}
	sorted := SortedTimeoutStatuses(events)

	want := []codec.TimeoutStatus{
		codec.TimeoutStatusPendingTimeout,
		codec.TimeoutStatusHyperbridgeTimedOut,
		codec.TimeoutStatusTimedOut,
	}
	for i, w := range want {
		if sorted[i].Status != w {
			t.Fatalf("sorted[%d].Status = %v, want %v", i, sorted[i].Status, w)
		}
	}
}

func TestParseRequestStatusRoundTrip(t *testing.T) {
	cases := []codec.RequestStatus{
		codec.StatusSource, codec.StatusSourceFinalized, codec.StatusHyperbridgeDelivered,
		codec.StatusHyperbridgeFinalized, codec.StatusDestination, codec.StatusHyperbridgeTimedOut,
		codec.StatusTimedOut,
	}
	for _, want := range cases {
		got, err := parseRequestStatus(want.String())
		if err != nil {
			t.Fatalf("parseRequestStatus(%s): %v", want.String(), err)
		}
		if got != want {
			t.Fatalf("parseRequestStatus(%s) = %v, want %v", want.String(), got, want)
		}
	}

	if _, err := parseRequestStatus("NOT_A_STATUS"); err == nil {
		t.Fatalf("parseRequestStatus accepted an unknown status string")
	}
}

func TestDecodeHexMaybeHandlesPrefixAndEmpty(t *testing.T) {
	b, err := decodeHexMaybe("0xdeadbeef")
	if err != nil {
		t.Fatalf("decodeHexMaybe: %v", err)
	}
	if len(b) != 4 || b[0] != 0xde {
		t.Fatalf("decodeHexMaybe(0xdeadbeef) = %x, want de ad be ef", b)
	}

	b, err = decodeHexMaybe("")
	if err != nil || b != nil {
		t.Fatalf("decodeHexMaybe(\"\") = (%x, %v), want (nil, nil)", b, err)
	}
}

func TestWireRequestRecordToDomain(t *testing.T) {
	w := wireRequestRecord{
		Commitment:       "0x" + "ab" + "cd",
		Source:           "EVM-1",
		Dest:             "EVM-2",
		TimeoutTimestamp: 1000,
		StatusEvents: []wireStatusEvent{
			{Status: "SOURCE", Height: 5, Time: 10},
			{Status: "DESTINATION", Height: 20, Time: 30},
		},
	}
	rec := w.toDomain()

	if rec.Source.String() != "EVM-1" || rec.Dest.String() != "EVM-2" {
		t.Fatalf("toDomain source/dest = %s/%s, want EVM-1/EVM-2", rec.Source, rec.Dest)
	}
	if len(rec.StatusEvents) != 2 {
		t.Fatalf("toDomain produced %d status events, want 2", len(rec.StatusEvents))
	}
	if rec.StatusEvents[1].Status != codec.StatusDestination {
		t.Fatalf("second status event = %v, want DESTINATION", rec.StatusEvents[1].Status)
	}
}
