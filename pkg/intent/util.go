package intent

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func addressFromBytes(b []byte) common.Address {
	var a common.Address
	copy(a[:], b)
	return a
}

func bigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
