package kvstore

import (
	"encoding/json"
	"testing"
)

func TestMemoryStoreGetSetDeleteHas(t *testing.T) {
	m := NewMemoryStore()

	if ok, err := m.Has([]byte("k")); err != nil || ok {
		t.Fatalf("Has on empty store = (%v, %v), want (false, nil)", ok, err)
	}
	if v, err := m.Get([]byte("k")); err != nil || v != nil {
		t.Fatalf("Get on empty store = (%v, %v), want (nil, nil)", v, err)
	}

	if err := m.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := m.Get([]byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("Get after Set = (%q, %v), want (\"v1\", nil)", v, err)
	}
	if ok, err := m.Has([]byte("k")); err != nil || !ok {
		t.Fatalf("Has after Set = (%v, %v), want (true, nil)", ok, err)
	}

	if err := m.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := m.Has([]byte("k")); ok {
		t.Fatalf("Has after Delete = true, want false")
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	m := NewMemoryStore()
	buf := []byte("original")
	if err := m.Set([]byte("k"), buf); err != nil {
		t.Fatalf("Set: %v", err)
	}
	buf[0] = 'X'

	v, err := m.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "original" {
		t.Fatalf("Get returned %q, want the value unaffected by later mutation of the caller's buffer", v)
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	b := NewBigIntFromUint64(123456789012345)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"__type":"bigint","value":"123456789012345"}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}

	var out BigInt
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Value != b.Value {
		t.Fatalf("round-tripped Value = %q, want %q", out.Value, b.Value)
	}
}

func TestBigIntRejectsWrongType(t *testing.T) {
	var out BigInt
	err := json.Unmarshal([]byte(`{"__type":"int","value":"5"}`), &out)
	if err == nil {
		t.Fatalf("Unmarshal accepted a non-bigint __type tag")
	}
}

func TestPutGetJSON(t *testing.T) {
	m := NewMemoryStore()
	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := record{Name: "solver-1", Count: 3}
	if err := PutJSON(m, []byte("rec"), in); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	var out record
	ok, err := GetJSON(m, []byte("rec"), &out)
	if err != nil || !ok {
		t.Fatalf("GetJSON = (%v, %v), want (true, nil)", ok, err)
	}
	if out != in {
		t.Fatalf("GetJSON = %+v, want %+v", out, in)
	}

	ok, err = GetJSON(m, []byte("missing"), &out)
	if err != nil || ok {
		t.Fatalf("GetJSON for missing key = (%v, %v), want (false, nil)", ok, err)
	}
}
