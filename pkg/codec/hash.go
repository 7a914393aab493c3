package codec

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Hasher selects the chain-local hash function used for commitment and storage-proof
// computation. Substrate chains parameterize this per-chain; EVM chains always use Keccak.
type Hasher uint8

const (
	HasherKeccak Hasher = iota
	HasherBlake2
)

func (h Hasher) String() string {
	if h == HasherBlake2 {
		return "Blake2"
	}
	return "Keccak"
}

// Keccak256 hashes data with Keccak-256 (always used for EVM-family chains and for the
// request/order commitment hash regardless of source family, per §3).
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// Blake2b256 hashes data with Blake2b-256 (used for Substrate chains parameterized with
// hasher=Blake2; see config.KeccakHashedSubstrateChains for the selection rule).
func Blake2b256(data ...[]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on a bad key, and we never pass one.
		panic(err)
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Hash dispatches to the hasher named by h.
func Hash(h Hasher, data ...[]byte) []byte {
	if h == HasherBlake2 {
		return Blake2b256(data...)
	}
	return Keccak256(data...)
}

// HexHash renders a 32-byte hash as a "0x"-prefixed lowercase hex string, matching the
// hash rendering convention in pkg/commitment/commitment.go (HashHex/HashBytes).
func HexHash(h []byte) string {
	return "0x" + hex.EncodeToString(h)
}
