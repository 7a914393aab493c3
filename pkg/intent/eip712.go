package intent

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// domainSeparator computes the EIP-712 domain separator for the order gateway contract
// the session key signs against, using codec.Keccak256's raw-hashing convention rather
// than go-ethereum/signer/core/apitypes — this repo has no JSON-driven typed-data schema
// to feed that package, only the one fixed SelectSolver message (see DESIGN.md).
func domainSeparator(name, version string, chainID *big.Int, verifyingContract common.Address) []byte {
	typeHash := codec.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	return codec.Keccak256(
		typeHash,
		codec.Keccak256([]byte(name)),
		codec.Keccak256([]byte(version)),
		leftPad32(chainID),
		leftPadAddress(verifyingContract),
	)
}

// selectSolverHash computes the EIP-712 struct hash for SelectSolver(bytes32 commitment,
// address solver), the one message §4.6.2 has the session key sign.
func selectSolverHash(domain []byte, commitment [32]byte, solver common.Address) common.Hash {
	typeHash := codec.Keccak256([]byte("SelectSolver(bytes32 commitment,address solver)"))
	structHash := codec.Keccak256(typeHash, commitment[:], leftPadAddress(solver))
	digest := codec.Keccak256([]byte{0x19, 0x01}, domain, structHash)
	return common.BytesToHash(digest)
}

// SignSelectSolver signs the SelectSolver(commitment, solver) EIP-712 message with the
// order's session key and returns the 65-byte (r || s || v) signature, per §4.6.2.
func SignSelectSolver(session SessionKey, domain []byte, commitment [32]byte, solver common.Address) ([]byte, error) {
	digest := selectSolverHash(domain, commitment, solver)
	sig, err := crypto.Sign(digest.Bytes(), session.PrivateKey)
	if err != nil {
		return nil, err
	}
	// go-ethereum's crypto.Sign returns v in {0,1}; EIP-712/EIP-191 verifiers expect
	// the Ethereum convention of v in {27,28}.
	sig[64] += 27
	return sig, nil
}

// ConcatSignatures appends the solver's own signature after the session key's, the shape
// the select() calldata carries as its combined `signature` argument.
func ConcatSignatures(sessionSig, solverSig []byte) []byte {
	out := make([]byte, 0, len(sessionSig)+len(solverSig))
	out = append(out, sessionSig...)
	out = append(out, solverSig...)
	return out
}

func leftPad32(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func leftPadAddress(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}
