package codec

import (
	"bytes"
	"fmt"
)

// Encoder is a minimal SCALE encoder covering exactly the primitives §4.1/§6 require:
// fixed-width integers, compact (variable-length) integers, and length-prefixed byte
// vectors. The compact-integer format is pinned bit-for-bit by the wire format this
// package emits, so it is hand-rolled here against the stdlib rather than taken from
// go-substrate-rpc-client's encoder (whose exported shape this repo does not depend on
// precisely enough to risk silent reframing) — see DESIGN.md for the full justification.
// The Substrate chain adapter still uses go-substrate-rpc-client for RPC transport and
// chain-native type definitions, where the library's documented surface is used as-is.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// PutU8/PutU32/PutU64 write little-endian fixed-width integers, per SCALE's convention.
func (e *Encoder) PutU8(v uint8) { e.buf.WriteByte(v) }

func (e *Encoder) PutU32(v uint32) {
	e.buf.WriteByte(byte(v))
	e.buf.WriteByte(byte(v >> 8))
	e.buf.WriteByte(byte(v >> 16))
	e.buf.WriteByte(byte(v >> 24))
}

func (e *Encoder) PutU64(v uint64) {
	for i := 0; i < 8; i++ {
		e.buf.WriteByte(byte(v >> (8 * i)))
	}
}

// PutCompact writes v using the SCALE compact-integer format: the low two bits of the
// first byte select a mode (single-byte, two-byte, four-byte, or big-integer), with the
// value shifted left to make room.
func (e *Encoder) PutCompact(v uint64) {
	switch {
	case v < 1<<6:
		e.buf.WriteByte(byte(v << 2))
	case v < 1<<14:
		e.PutU32Raw(uint32(v<<2) | 0b01)
	case v < 1<<30:
		val := uint32(v<<2) | 0b10
		e.buf.WriteByte(byte(val))
		e.buf.WriteByte(byte(val >> 8))
		e.buf.WriteByte(byte(val >> 16))
		e.buf.WriteByte(byte(val >> 24))
	default:
		// Big-integer mode: mode byte encodes (byteLen-4)<<2 | 0b11, followed by the
		// little-endian minimal byte representation.
		var raw [8]byte
		for i := range raw {
			raw[i] = byte(v >> (8 * i))
		}
		n := 8
		for n > 1 && raw[n-1] == 0 {
			n--
		}
		e.buf.WriteByte(byte((n-4)<<2) | 0b11)
		e.buf.Write(raw[:n])
	}
}

// PutU32Raw writes only the low two bytes, used internally by the two-byte compact mode.
func (e *Encoder) PutU32Raw(val uint32) {
	e.buf.WriteByte(byte(val))
	e.buf.WriteByte(byte(val >> 8))
}

// PutBytes writes a SCALE `Vec<u8>`: a compact length prefix followed by the raw bytes.
func (e *Encoder) PutBytes(v []byte) {
	e.PutCompact(uint64(len(v)))
	e.buf.Write(v)
}

// PutFixed writes raw bytes with no length prefix, for fixed-size arrays like [u8;4].
func (e *Encoder) PutFixed(v []byte) { e.buf.Write(v) }

// Decoder is the corresponding minimal SCALE reader.
type Decoder struct {
	data []byte
	pos  int
}

func NewDecoder(data []byte) *Decoder { return &Decoder{data: data} }

func (d *Decoder) remaining() int { return len(d.data) - d.pos }

func (d *Decoder) GetU8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, fmt.Errorf("codec: scale decode: unexpected EOF reading u8")
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) GetU32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("codec: scale decode: unexpected EOF reading u32")
	}
	v := uint32(d.data[d.pos]) | uint32(d.data[d.pos+1])<<8 | uint32(d.data[d.pos+2])<<16 | uint32(d.data[d.pos+3])<<24
	d.pos += 4
	return v, nil
}

func (d *Decoder) GetU64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("codec: scale decode: unexpected EOF reading u64")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(d.data[d.pos+i]) << (8 * i)
	}
	d.pos += 8
	return v, nil
}

func (d *Decoder) GetCompact() (uint64, error) {
	first, err := d.GetU8()
	if err != nil {
		return 0, err
	}
	switch first & 0b11 {
	case 0b00:
		return uint64(first >> 2), nil
	case 0b01:
		second, err := d.GetU8()
		if err != nil {
			return 0, err
		}
		return uint64(first>>2) | uint64(second)<<6, nil
	case 0b10:
		if d.remaining() < 3 {
			return 0, fmt.Errorf("codec: scale decode: unexpected EOF reading compact u32")
		}
		b1, b2, b3 := d.data[d.pos], d.data[d.pos+1], d.data[d.pos+2]
		d.pos += 3
		return uint64(first>>2) | uint64(b1)<<6 | uint64(b2)<<14 | uint64(b3)<<22, nil
	default:
		n := int(first>>2) + 4
		if d.remaining() < n {
			return 0, fmt.Errorf("codec: scale decode: unexpected EOF reading big-int compact")
		}
		var v uint64
		for i := 0; i < n && i < 8; i++ {
			v |= uint64(d.data[d.pos+i]) << (8 * i)
		}
		d.pos += n
		return v, nil
	}
}

func (d *Decoder) GetBytes() ([]byte, error) {
	n, err := d.GetCompact()
	if err != nil {
		return nil, err
	}
	if d.remaining() < int(n) {
		return nil, fmt.Errorf("codec: scale decode: unexpected EOF reading %d-byte vec", n)
	}
	out := make([]byte, n)
	copy(out, d.data[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *Decoder) GetFixed(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, fmt.Errorf("codec: scale decode: unexpected EOF reading %d fixed bytes", n)
	}
	out := make([]byte, n)
	copy(out, d.data[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

// Done reports whether the decoder has consumed all input; trailing bytes indicate a
// malformed or truncated message.
func (d *Decoder) Done() bool { return d.remaining() == 0 }
