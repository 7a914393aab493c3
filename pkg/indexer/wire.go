package indexer

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// wireStatusEvent/wireTimeoutStatusEvent/wire*Record mirror the JSON shape the GraphQL
// endpoint returns, decoded into the domain types (StatusEvent, RequestRecord, …) that the
// rest of this package and its callers use — the wire<->domain split keeps hex-decoding
// and state-machine-id parsing out of the domain types themselves.

type wireStatusEvent struct {
	Status   string `json:"status"`
	Calldata string `json:"calldata"`
	Height   uint64 `json:"height"`
	Time     uint64 `json:"time"`
}

func (w wireStatusEvent) toDomain() (StatusEvent, error) {
	status, err := parseRequestStatus(w.Status)
	if err != nil {
		return StatusEvent{}, err
	}
	calldata, err := decodeHexMaybe(w.Calldata)
	if err != nil {
		return StatusEvent{}, err
	}
	return StatusEvent{Status: status, Calldata: calldata, Height: w.Height, Time: w.Time}, nil
}

type wireTimeoutStatusEvent struct {
	Status   string `json:"status"`
	Calldata string `json:"calldata"`
	Height   uint64 `json:"height"`
	Time     uint64 `json:"time"`
}

func (w wireTimeoutStatusEvent) toDomain() (TimeoutStatusEvent, error) {
	status, err := parseTimeoutStatus(w.Status)
	if err != nil {
		return TimeoutStatusEvent{}, err
	}
	calldata, err := decodeHexMaybe(w.Calldata)
	if err != nil {
		return TimeoutStatusEvent{}, err
	}
	return TimeoutStatusEvent{Status: status, Calldata: calldata, Height: w.Height, Time: w.Time}, nil
}

type wireRequestRecord struct {
	Commitment          string                   `json:"commitment"`
	Source              string                   `json:"source"`
	Dest                string                   `json:"dest"`
	From                string                   `json:"from"`
	To                  string                   `json:"to"`
	Nonce               uint64                   `json:"nonce"`
	Body                string                   `json:"body"`
	TimeoutTimestamp    uint64                   `json:"timeoutTimestamp"`
	StatusEvents        []wireStatusEvent        `json:"statusEvents"`
	TimeoutStatusEvents []wireTimeoutStatusEvent `json:"timeoutStatusEvents"`
}

func (w *wireRequestRecord) toDomain() *RequestRecord {
	commitment, _ := decodeHexMaybe(w.Commitment)
	source, _ := codec.ParseStateMachineId(w.Source)
	dest, _ := codec.ParseStateMachineId(w.Dest)
	from, _ := decodeHexMaybe(w.From)
	to, _ := decodeHexMaybe(w.To)
	body, _ := decodeHexMaybe(w.Body)

	r := &RequestRecord{
		Commitment:       commitment,
		Source:           source,
		Dest:             dest,
		TimeoutTimestamp: w.TimeoutTimestamp,
		Request: codec.PostRequest{
			Source:           source,
			Dest:             dest,
			From:             from,
			To:               to,
			Nonce:            w.Nonce,
			Body:             body,
			TimeoutTimestamp: w.TimeoutTimestamp,
		},
	}
	for _, e := range w.StatusEvents {
		if ev, err := e.toDomain(); err == nil {
			r.StatusEvents = append(r.StatusEvents, ev)
		}
	}
	for _, e := range w.TimeoutStatusEvents {
		if ev, err := e.toDomain(); err == nil {
			r.TimeoutStatusEvents = append(r.TimeoutStatusEvents, ev)
		}
	}
	return r
}

type wireGetRequestRecord struct {
	Commitment   string            `json:"commitment"`
	StatusEvents []wireStatusEvent `json:"statusEvents"`
}

func (w *wireGetRequestRecord) toDomain() *GetRequestRecord {
	commitment, _ := decodeHexMaybe(w.Commitment)
	r := &GetRequestRecord{Commitment: commitment}
	for _, e := range w.StatusEvents {
		if ev, err := e.toDomain(); err == nil {
			r.StatusEvents = append(r.StatusEvents, ev)
		}
	}
	return r
}

type wireOrderRecord struct {
	ID          string `json:"id"`
	Commitment  string `json:"commitment"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Deadline    uint64 `json:"deadline"`
	Cancelled   bool   `json:"cancelled"`
}

func (w *wireOrderRecord) toDomain() *OrderRecord {
	var id [32]byte
	if b, err := decodeHexMaybe(w.ID); err == nil {
		copy(id[:], b)
	}
	commitment, _ := decodeHexMaybe(w.Commitment)
	source, _ := codec.ParseStateMachineId(w.Source)
	dest, _ := codec.ParseStateMachineId(w.Destination)
	return &OrderRecord{
		ID:          id,
		Commitment:  commitment,
		Source:      source,
		Destination: dest,
		Deadline:    w.Deadline,
		Cancelled:   w.Cancelled,
	}
}

type wireTeleportRecord struct {
	Commitment string `json:"commitment"`
	Source     string `json:"source"`
	Dest       string `json:"dest"`
	Delivered  bool   `json:"delivered"`
}

func (w *wireTeleportRecord) toDomain() *TeleportRecord {
	commitment, _ := decodeHexMaybe(w.Commitment)
	source, _ := codec.ParseStateMachineId(w.Source)
	dest, _ := codec.ParseStateMachineId(w.Dest)
	return &TeleportRecord{Commitment: commitment, Source: source, Dest: dest, Delivered: w.Delivered}
}

type wireStateMachineUpdate struct {
	StateMachine string `json:"stateMachine"`
	Height       uint64 `json:"height"`
	UpdateTime   uint64 `json:"updateTime"`
}

func decodeHexMaybe(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("indexer: decode hex %q: %w", s, err)
	}
	return b, nil
}

func parseRequestStatus(s string) (codec.RequestStatus, error) {
	switch s {
	case "SOURCE":
		return codec.StatusSource, nil
	case "SOURCE_FINALIZED":
		return codec.StatusSourceFinalized, nil
	case "HYPERBRIDGE_DELIVERED":
		return codec.StatusHyperbridgeDelivered, nil
	case "HYPERBRIDGE_FINALIZED":
		return codec.StatusHyperbridgeFinalized, nil
	case "DESTINATION":
		return codec.StatusDestination, nil
	case "HYPERBRIDGE_TIMED_OUT":
		return codec.StatusHyperbridgeTimedOut, nil
	case "TIMED_OUT":
		return codec.StatusTimedOut, nil
	default:
		return 0, fmt.Errorf("indexer: unknown request status %q", s)
	}
}

func parseTimeoutStatus(s string) (codec.TimeoutStatus, error) {
	switch s {
	case "PENDING_TIMEOUT":
		return codec.TimeoutStatusPendingTimeout, nil
	case "DESTINATION_FINALIZED_TIMEOUT":
		return codec.TimeoutStatusDestinationFinalizedTimeout, nil
	case "HYPERBRIDGE_TIMED_OUT":
		return codec.TimeoutStatusHyperbridgeTimedOut, nil
	case "HYPERBRIDGE_FINALIZED_TIMEOUT":
		return codec.TimeoutStatusHyperbridgeFinalizedTimeout, nil
	case "TIMED_OUT":
		return codec.TimeoutStatusTimedOut, nil
	default:
		return 0, fmt.Errorf("indexer: unknown timeout status %q", s)
	}
}
