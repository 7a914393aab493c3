package codec

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"
)

func TestStateMachineIdParseRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want StateMachineId
	}{
		{"EVM-97", Evm(97)},
		{"POLKADOT-3367", Polkadot(3367)},
		{"KUSAMA-2000", Kusama(2000)},
		{"SUBSTRATE-cere", Substrate([4]byte{'c', 'e', 'r', 'e'})},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseStateMachineId(c.in)
			if err != nil {
				t.Fatalf("ParseStateMachineId(%q) error: %v", c.in, err)
			}
			if got != c.want {
				t.Fatalf("ParseStateMachineId(%q) = %+v, want %+v", c.in, got, c.want)
			}
			if got.String() != c.in {
				t.Fatalf("round-trip string mismatch: got %q, want %q", got.String(), c.in)
			}
		})
	}
}

func TestStateMachineIdParseRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "EVM", "BOGUS-1", "EVM-notanumber"} {
		if _, err := ParseStateMachineId(bad); err == nil {
			t.Fatalf("ParseStateMachineId(%q) expected error, got none", bad)
		}
	}
}

func TestPostRequestCommitmentRoundTrip(t *testing.T) {
	r := PostRequest{
		Source:           Evm(1),
		Dest:             Evm(2),
		From:             []byte{0xAA},
		To:               []byte{0xBB},
		Nonce:            5,
		Body:             []byte{0xCC},
		TimeoutTimestamp: 1000,
	}
	want := Keccak256([]byte("EVM-1"), []byte("EVM-2"), beU64(5), beU64(1000), r.From, r.To, r.Body)
	if !bytes.Equal(r.Commitment(), want) {
		t.Fatalf("commitment mismatch: got %x, want %x", r.Commitment(), want)
	}

	e := NewEncoder()
	r.Encode(e)
	decoded, err := DecodePostRequest(NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(decoded.Commitment(), r.Commitment()) {
		t.Fatalf("commitment(decode(encode(r))) != commitment(r)")
	}
}

func TestIsmpMessageRoundTrip(t *testing.T) {
	req := PostRequest{Source: Evm(1), Dest: Substrate([4]byte{'d', 'o', 't', 0}), Nonce: 1, TimeoutTimestamp: 10}
	proof := Proof{Height: 42, StateMachine: Evm(1), Payload: []byte{1, 2, 3}}
	msg := NewPostRequestMessage([]PostRequest{req}, proof, nil)

	e := NewEncoder()
	if err := msg.Encode(e); err != nil {
		t.Fatalf("encode error: %v", err)
	}
	decoded, err := DecodeIsmpMessage(NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded.Kind != MessageKindPostRequest {
		t.Fatalf("kind mismatch: got %v", decoded.Kind)
	}
	if len(decoded.Requests) != 1 || !bytes.Equal(decoded.Requests[0].Commitment(), req.Commitment()) {
		t.Fatalf("request round-trip mismatch")
	}
	if decoded.Proof.Height != proof.Height {
		t.Fatalf("proof height mismatch: got %d, want %d", decoded.Proof.Height, proof.Height)
	}
}

func TestDeriveMappingSlot(t *testing.T) {
	// S2: commitment = 0x00..01 at mapping slot 0.
	commitment := make([]byte, 32)
	commitment[31] = 1
	slot2 := DeriveMappingSlot(commitment, big.NewInt(0))
	wantSlot2 := Keccak256(commitment, make([]byte, 32))
	if !bytes.Equal(slot2, wantSlot2) {
		t.Fatalf("slot2 mismatch: got %s, want %s", hex.EncodeToString(slot2), hex.EncodeToString(wantSlot2))
	}

	slot1, slot2Again := RequestCommitmentSlots(commitment)
	if !bytes.Equal(slot2Again, slot2) {
		t.Fatalf("RequestCommitmentSlots slot2 mismatch")
	}
	wantSlot1 := StructFieldSlot(slot2, 1)
	if !bytes.Equal(slot1, wantSlot1) {
		t.Fatalf("slot1 mismatch: got %s, want %s", hex.EncodeToString(slot1), hex.EncodeToString(wantSlot1))
	}
}

// TestLatestStateMachineHeightSlotDistinctFromCommitmentSlot guards against regressing into
// reading the height-zero commitment entry's timestamp field as if it were the latest height.
func TestLatestStateMachineHeightSlotDistinctFromCommitmentSlot(t *testing.T) {
	id := []byte("EVM-1")

	latest := LatestStateMachineHeightSlot(id)
	wantLatest := DeriveMappingSlot(id, big.NewInt(latestStateMachineHeightSlot))
	if !bytes.Equal(latest, wantLatest) {
		t.Fatalf("LatestStateMachineHeightSlot mismatch: got %s, want %s", hex.EncodeToString(latest), hex.EncodeToString(wantLatest))
	}

	heightZeroTimestamp := StateCommitmentFieldSlot(id, 0, StateCommitmentFieldTimestamp)
	if bytes.Equal(latest, heightZeroTimestamp) {
		t.Fatalf("LatestStateMachineHeightSlot must not collide with the height-zero commitment's timestamp slot")
	}
}

func TestCompactRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 63, 64, 16383, 16384, 1 << 29, 1 << 40, 1<<63 - 1} {
		e := NewEncoder()
		e.PutCompact(v)
		got, err := NewDecoder(e.Bytes()).GetCompact()
		if err != nil {
			t.Fatalf("GetCompact(%d) error: %v", v, err)
		}
		if got != v {
			t.Fatalf("compact round-trip mismatch: put %d, got %d", v, got)
		}
	}
}
