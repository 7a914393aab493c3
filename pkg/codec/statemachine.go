// Package codec implements the SCALE tagged-union/struct encoders, the keccak/Blake2
// hash primitives, and the EVM storage-slot derivation rules that every other
// package in this module builds on.
//
// Grounded on pkg/commitment/commitment.go (canonical hashing conventions, "0x"-prefixed
// hex helpers) and pkg/chain/strategy/interface.go (typed, exhaustively-matched config
// structs), generalized from SHA256/JSON canonicalization to Keccak256/SCALE.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// StateMachineFamily is the closed set of chain families a StateMachineId can belong to.
type StateMachineFamily uint8

const (
	FamilyEvm StateMachineFamily = iota
	FamilyPolkadot
	FamilyKusama
	FamilySubstrate
	FamilyTendermint
)

func (f StateMachineFamily) String() string {
	switch f {
	case FamilyEvm:
		return "EVM"
	case FamilyPolkadot:
		return "POLKADOT"
	case FamilyKusama:
		return "KUSAMA"
	case FamilySubstrate:
		return "SUBSTRATE"
	case FamilyTendermint:
		return "TENDERMINT"
	default:
		return "UNKNOWN"
	}
}

// StateMachineId is a closed tagged union: Evm(u32) | Polkadot(u32) | Kusama(u32) |
// Substrate([4]byte) | Tendermint([4]byte). Only one of Numeric/Bytes is meaningful,
// selected by Family - this mirrors how the teacher models ChainPlatform as an
// exhaustively-switched enum rather than an interface with one impl per case.
type StateMachineId struct {
	Family  StateMachineFamily
	Numeric uint32  // meaningful for Evm, Polkadot, Kusama
	Bytes   [4]byte // meaningful for Substrate, Tendermint
}

func Evm(id uint32) StateMachineId      { return StateMachineId{Family: FamilyEvm, Numeric: id} }
func Polkadot(id uint32) StateMachineId { return StateMachineId{Family: FamilyPolkadot, Numeric: id} }
func Kusama(id uint32) StateMachineId   { return StateMachineId{Family: FamilyKusama, Numeric: id} }

func Substrate(tag [4]byte) StateMachineId {
	return StateMachineId{Family: FamilySubstrate, Bytes: tag}
}

func Tendermint(tag [4]byte) StateMachineId {
	return StateMachineId{Family: FamilyTendermint, Bytes: tag}
}

// IsNumeric reports whether this family carries a numeric value rather than a byte tag.
func (id StateMachineId) IsNumeric() bool {
	switch id.Family {
	case FamilyEvm, FamilyPolkadot, FamilyKusama:
		return true
	default:
		return false
	}
}

// String renders the "<FAMILY>-<value>" form: decimal for numeric families, raw UTF-8
// text for byte-tag families (trailing NUL padding is trimmed).
func (id StateMachineId) String() string {
	if id.IsNumeric() {
		return fmt.Sprintf("%s-%d", id.Family, id.Numeric)
	}
	return fmt.Sprintf("%s-%s", id.Family, strings.TrimRight(string(id.Bytes[:]), "\x00"))
}

// ParseStateMachineId parses the "<FAMILY>-<value>" string form. Parsing is total over
// well-formed strings and rejects everything else.
func ParseStateMachineId(s string) (StateMachineId, error) {
	idx := strings.IndexByte(s, '-')
	if idx < 0 {
		return StateMachineId{}, fmt.Errorf("codec: malformed state machine id %q: missing '-'", s)
	}
	family, value := s[:idx], s[idx+1:]

	switch family {
	case "EVM":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return StateMachineId{}, fmt.Errorf("codec: invalid EVM id %q: %w", value, err)
		}
		return Evm(uint32(n)), nil
	case "POLKADOT":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return StateMachineId{}, fmt.Errorf("codec: invalid POLKADOT id %q: %w", value, err)
		}
		return Polkadot(uint32(n)), nil
	case "KUSAMA":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return StateMachineId{}, fmt.Errorf("codec: invalid KUSAMA id %q: %w", value, err)
		}
		return Kusama(uint32(n)), nil
	case "SUBSTRATE":
		var tag [4]byte
		if len(value) == 0 || len(value) > 4 {
			return StateMachineId{}, fmt.Errorf("codec: SUBSTRATE tag %q must be 1-4 bytes", value)
		}
		copy(tag[:], value)
		return Substrate(tag), nil
	case "TENDERMINT":
		var tag [4]byte
		if len(value) == 0 || len(value) > 4 {
			return StateMachineId{}, fmt.Errorf("codec: TENDERMINT tag %q must be 1-4 bytes", value)
		}
		copy(tag[:], value)
		return Tendermint(tag), nil
	default:
		return StateMachineId{}, fmt.Errorf("codec: unknown state machine family %q", family)
	}
}

// Family reports the chain family of id. It is total: every constructed StateMachineId
// has a valid, partition-respecting family.
func Family(id StateMachineId) StateMachineFamily { return id.Family }

// IsEvmFamily, IsSubstrateFamily and IsTendermintFamily are the partition predicates the
// chain adapter layer (C3) switches on to select a concrete implementation.
func (id StateMachineId) IsEvmFamily() bool { return id.Family == FamilyEvm }
func (id StateMachineId) IsSubstrateFamily() bool {
	return id.Family == FamilySubstrate || id.Family == FamilyPolkadot || id.Family == FamilyKusama
}
func (id StateMachineId) IsTendermintFamily() bool { return id.Family == FamilyTendermint }

// StateMachineHeight represents a finalized view of one chain on another.
type StateMachineHeight struct {
	Id                StateMachineId
	ConsensusStateId  [4]byte
	Height            uint64
}
