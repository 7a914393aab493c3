package codec

import "fmt"

// Encode writes id as the SCALE tagged enum Enum{Evm(u32)|Polkadot(u32)|Kusama(u32)|
// Substrate([u8;4])|Tendermint([u8;4])}: a one-byte variant index followed by the
// variant's payload.
func (id StateMachineId) Encode(e *Encoder) {
	e.PutU8(uint8(id.Family))
	if id.IsNumeric() {
		e.PutU32(id.Numeric)
	} else {
		e.PutFixed(id.Bytes[:])
	}
}

// DecodeStateMachineId reads the tagged enum written by StateMachineId.Encode.
func DecodeStateMachineId(d *Decoder) (StateMachineId, error) {
	tag, err := d.GetU8()
	if err != nil {
		return StateMachineId{}, err
	}
	family := StateMachineFamily(tag)
	switch family {
	case FamilyEvm, FamilyPolkadot, FamilyKusama:
		n, err := d.GetU32()
		if err != nil {
			return StateMachineId{}, err
		}
		return StateMachineId{Family: family, Numeric: n}, nil
	case FamilySubstrate, FamilyTendermint:
		b, err := d.GetFixed(4)
		if err != nil {
			return StateMachineId{}, err
		}
		var tag4 [4]byte
		copy(tag4[:], b)
		return StateMachineId{Family: family, Bytes: tag4}, nil
	default:
		return StateMachineId{}, fmt.Errorf("codec: scale decode: unknown state machine family tag %d", tag)
	}
}

// Encode writes a StateMachineHeight as {id, consensusStateId, height}.
func (h StateMachineHeight) Encode(e *Encoder) {
	h.Id.Encode(e)
	e.PutFixed(h.ConsensusStateId[:])
	e.PutU64(h.Height)
}

// DecodeStateMachineHeight reads the struct written by StateMachineHeight.Encode.
func DecodeStateMachineHeight(d *Decoder) (StateMachineHeight, error) {
	id, err := DecodeStateMachineId(d)
	if err != nil {
		return StateMachineHeight{}, err
	}
	csid, err := d.GetFixed(4)
	if err != nil {
		return StateMachineHeight{}, err
	}
	height, err := d.GetU64()
	if err != nil {
		return StateMachineHeight{}, err
	}
	var csid4 [4]byte
	copy(csid4[:], csid)
	return StateMachineHeight{Id: id, ConsensusStateId: csid4, Height: height}, nil
}
