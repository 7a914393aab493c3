// Package kvstore implements the scoped key/value store used by the intent executor's
// session-key bookkeeping and the cancellation flow's resumable state machine (§4.6.1,
// §4.7). Grounded on pkg/kvdb/adapter.go's KV interface shape, extended with Delete/Has
// since both callers need removal (purging a cancellation's persisted entries, dropping a
// consumed session key).
package kvstore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// KV is the persisted key/value contract every backend implements.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// BigInt wraps a big (decimal-string) integer so it round-trips through JSON using the
// tagged {"__type":"bigint","value":"..."} representation, since plain json.Number loses
// precision past 2^53 and a bare string loses its type tag on decode.
type BigInt struct {
	Value string
}

type bigIntWire struct {
	Type  string `json:"__type"`
	Value string `json:"value"`
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(bigIntWire{Type: "bigint", Value: b.Value})
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var w bigIntWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("kvstore: decode BigInt: %w", err)
	}
	if w.Type != "bigint" {
		return fmt.Errorf("kvstore: decode BigInt: unexpected __type %q", w.Type)
	}
	b.Value = w.Value
	return nil
}

// NewBigIntFromUint64 is a convenience constructor for callers holding a native integer.
func NewBigIntFromUint64(v uint64) BigInt {
	return BigInt{Value: strconv.FormatUint(v, 10)}
}

// PutJSON is a convenience wrapper that marshals v and stores it under key.
func PutJSON(kv KV, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvstore: marshal value for key %q: %w", key, err)
	}
	return kv.Set(key, b)
}

// GetJSON is a convenience wrapper that fetches key and unmarshals it into v. It returns
// (false, nil) without touching v when the key is absent.
func GetJSON(kv KV, key []byte, v interface{}) (bool, error) {
	b, err := kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("kvstore: get key %q: %w", key, err)
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("kvstore: unmarshal value for key %q: %w", key, err)
	}
	return true, nil
}
