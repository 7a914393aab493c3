package intent

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var mask128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// PackedUserOperation is ERC-4337 v0.7's on-chain packed shape: the one a filler's bid
// stores and the one the handler contracts ultimately see, per §6's hub bid-store layout.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte // verificationGasLimit<<128 | callGasLimit
	PreVerificationGas *big.Int
	GasFees            [32]byte // maxPriorityFeePerGas<<128 | maxFeePerGas
	PaymasterAndData   []byte
	Signature          []byte
}

func packTwo(hi, lo *big.Int) [32]byte {
	var out [32]byte
	hiBytes := new(big.Int).And(hi, mask128).Bytes()
	copy(out[16-len(hiBytes):16], hiBytes)
	loBytes := new(big.Int).And(lo, mask128).Bytes()
	copy(out[32-len(loBytes):32], loBytes)
	return out
}

func unpackTwo(packed [32]byte) (hi, lo *big.Int) {
	hi = new(big.Int).SetBytes(packed[:16])
	lo = new(big.Int).SetBytes(packed[16:])
	return hi, lo
}

func (p PackedUserOperation) VerificationGasLimit() *big.Int {
	v, _ := unpackTwo(p.AccountGasLimits)
	return v
}

func (p PackedUserOperation) CallGasLimit() *big.Int {
	_, v := unpackTwo(p.AccountGasLimits)
	return v
}

func (p PackedUserOperation) MaxPriorityFeePerGas() *big.Int {
	v, _ := unpackTwo(p.GasFees)
	return v
}

func (p PackedUserOperation) MaxFeePerGas() *big.Int {
	_, v := unpackTwo(p.GasFees)
	return v
}

// UnpackedUserOperation is the bundler-facing v0.7 shape (§6): factory/paymaster split
// back out of initCode/paymasterAndData, gas limits split back out of their packed words.
type UnpackedUserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// Unpack converts a bid's packed user-operation into the shape the bundler's JSON-RPC
// surface expects.
func Unpack(p PackedUserOperation) UnpackedUserOperation {
	u := UnpackedUserOperation{
		Sender:               p.Sender,
		Nonce:                p.Nonce,
		CallData:             p.CallData,
		CallGasLimit:         p.CallGasLimit(),
		VerificationGasLimit: p.VerificationGasLimit(),
		PreVerificationGas:   p.PreVerificationGas,
		MaxFeePerGas:         p.MaxFeePerGas(),
		MaxPriorityFeePerGas: p.MaxPriorityFeePerGas(),
		Signature:            p.Signature,
	}
	if len(p.InitCode) >= 20 {
		addr := addressFromBytes(p.InitCode[:20])
		u.Factory = &addr
		u.FactoryData = append([]byte{}, p.InitCode[20:]...)
	}
	if len(p.PaymasterAndData) >= 20 {
		addr := addressFromBytes(p.PaymasterAndData[:20])
		u.Paymaster = &addr
		if len(p.PaymasterAndData) >= 52 {
			u.PaymasterVerificationGasLimit = bigFromBytes(p.PaymasterAndData[20:36])
			u.PaymasterPostOpGasLimit = bigFromBytes(p.PaymasterAndData[36:52])
			u.PaymasterData = append([]byte{}, p.PaymasterAndData[52:]...)
		}
	}
	return u
}

// Pack converts a prepared unpacked user-operation back into the packed shape a handler
// contract (or the hub bid store, for simulation purposes) consumes.
func Pack(u UnpackedUserOperation) PackedUserOperation {
	p := PackedUserOperation{
		Sender:             u.Sender,
		Nonce:              u.Nonce,
		CallData:           u.CallData,
		AccountGasLimits:   packTwo(u.VerificationGasLimit, u.CallGasLimit),
		PreVerificationGas: u.PreVerificationGas,
		GasFees:            packTwo(u.MaxPriorityFeePerGas, u.MaxFeePerGas),
		Signature:          u.Signature,
	}
	if u.Factory != nil {
		p.InitCode = append(append([]byte{}, u.Factory.Bytes()...), u.FactoryData...)
	}
	if u.Paymaster != nil {
		data := append([]byte{}, u.Paymaster.Bytes()...)
		data = append(data, leftPad16(u.PaymasterVerificationGasLimit)...)
		data = append(data, leftPad16(u.PaymasterPostOpGasLimit)...)
		data = append(data, u.PaymasterData...)
		p.PaymasterAndData = data
	}
	return p
}

func leftPad16(v *big.Int) []byte {
	out := make([]byte, 16)
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[16-len(b):], b)
	return out
}
