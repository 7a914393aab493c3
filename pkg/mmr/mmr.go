// Package mmr implements the Merkle Mountain Range proof utilities C2 names: peak
// position enumeration, node-height computation, leaf-to-k-index mapping, and
// fabricating a root+proof pair from a synthesized leaf set.
//
// Grounded on pkg/merkle/tree.go's positional-proof shape (ProofNode{Hash, Position},
// JSON (de)serialization, sync.RWMutex-guarded construction) generalized from a binary
// Merkle tree to an MMR — a different algorithm with the same idiom: build once, derive
// proofs by walking positions, verify with constant-time comparison.
package mmr

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

var (
	ErrEmptyTree      = errors.New("mmr: tree_size must be > 0")
	ErrInvalidProof   = errors.New("mmr: invalid proof")
	ErrLeafOutOfRange = errors.New("mmr: leaf index out of range")
)

// Size returns the total node count of an MMR with N leaves: 2N - popcount(N).
func Size(leafCount uint64) uint64 {
	if leafCount == 0 {
		return 0
	}
	return 2*leafCount - uint64(bits.OnesCount64(leafCount))
}

// allOnesCeil returns 2^bitlen(size) - 1, the "all ones" number with the same bit length
// as size, i.e. the smallest value of the form 2^h - 1 that is >= size.
func allOnesCeil(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	bl := bits.Len64(size)
	return (uint64(1) << bl) - 1
}

// PeakPositions enumerates the peak node positions of an MMR with the given total node
// count, by repeatedly carving off the largest complete (2^h - 1)-node subtree that
// fits in the remaining size.
func PeakPositions(mmrSize uint64) []uint64 {
	if mmrSize == 0 {
		return nil
	}
	var peaks []uint64
	pos := uint64(0)
	remaining := mmrSize
	for remaining != 0 {
		peakSize := allOnesCeil(remaining)
		for peakSize != 0 {
			if peakSize <= remaining {
				peaks = append(peaks, pos+peakSize-1)
				pos += peakSize
				remaining -= peakSize
				break
			}
			peakSize >>= 1
		}
	}
	return peaks
}

func isAllOnes(p uint64) bool {
	if p == 0 {
		return false
	}
	bl := bits.Len64(p)
	return p == (uint64(1)<<bl)-1
}

func jumpLeft(p uint64) uint64 {
	bl := bits.Len64(p)
	msb := uint64(1) << (bl - 1)
	return msb - 1
}

// NodeHeight computes the height of the node at position pos: jump left (subtract
// msb(pos+1)-1) until pos+1 is all-ones, then return its bit length minus one.
func NodeHeight(pos uint64) uint32 {
	p := pos + 1
	for !isAllOnes(p) {
		p -= jumpLeft(p)
	}
	return uint32(bits.Len64(p) - 1)
}

func parentOffset(height uint32) uint64  { return uint64(2) << height }
func siblingOffset(height uint32) uint64 { return (uint64(2) << height) - 1 }

// LeafIndexToPosition maps a 0-indexed leaf count to its node position: 2*i -
// popcount(i).
func LeafIndexToPosition(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

// KIndexResult pairs a queried leaf position with the peak it falls under and its
// k-index within that peak's subtree.
type KIndexResult struct {
	Pos    uint64
	Peak   uint64
	KIndex uint64
}

// PositionToKIndex computes, for each leaf position in leafPositions, a bijection to
// (peak, k_index): for each peak, leaves at or before it are consumed, then each is
// located by walking down from the peak, doubling k_index each level and choosing
// left/right by comparing against the left child's boundary position. Ties (pos equal
// to the left child boundary) resolve to the left child, per §4.2's edge case.
func PositionToKIndex(leafPositions []uint64, mmrSize uint64) ([]KIndexResult, error) {
	peaks := PeakPositions(mmrSize)
	remaining := append([]uint64(nil), leafPositions...)
	results := make([]KIndexResult, 0, len(leafPositions))

	for _, peak := range peaks {
		peakHeight := NodeHeight(peak)
		var stillRemaining []uint64
		for _, target := range remaining {
			if target > peak {
				stillRemaining = append(stillRemaining, target)
				continue
			}
			kIndex := uint64(0)
			pos := peak
			h := peakHeight
			for h > 0 {
				rightChild := pos - 1
				leftChild := rightChild - (uint64(1)<<h - 1)
				if target <= leftChild {
					kIndex = kIndex * 2
					pos = leftChild
				} else {
					kIndex = kIndex*2 + 1
					pos = rightChild
				}
				h--
			}
			if pos != target {
				return nil, fmt.Errorf("mmr: leaf position %d not found under peak %d", target, peak)
			}
			results = append(results, KIndexResult{Pos: target, Peak: peak, KIndex: kIndex})
		}
		remaining = stillRemaining
	}
	if len(remaining) != 0 {
		return nil, fmt.Errorf("mmr: %d leaf position(s) not covered by any peak", len(remaining))
	}
	return results, nil
}

// Side indicates whether a proof item is the left or right sibling at its level,
// mirroring pkg/merkle/tree.go's Position enum.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ProofItem is one sibling hash on the path from a leaf to its peak.
type ProofItem struct {
	Hash string `json:"hash"`
	Side Side   `json:"side"`
}

// Proof is the MMR inclusion proof for a single leaf, returned by GenerateRootWithProof
// and accepted by VerifyProof.
type Proof struct {
	LeafHash  string      `json:"leaf_hash"`
	LeafIndex uint64      `json:"leaf_index"`
	KIndex    uint64      `json:"k_index"`
	Peak      uint64      `json:"peak"`
	Items     []ProofItem `json:"items"`
	TreeSize  uint64      `json:"tree_size"`
	MmrSize   uint64      `json:"mmr_size"`
}

// tree is the in-memory node array built while fabricating a root+proof pair. It is
// not a long-lived mutable structure (unlike pkg/merkle/tree.go's Tree): the MMR is
// rebuilt fresh for each (request, tree_size) pair per §4.2, so a mutex only guards the
// rare case of concurrent proof generation against the same *tree value.
type tree struct {
	mu    sync.RWMutex
	nodes [][]byte
}

func buildTree(leaves [][]byte) (*tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	t := &tree{nodes: make([][]byte, 0, 2*len(leaves))}
	for _, leaf := range leaves {
		t.push(leaf)
	}
	return t, nil
}

// push appends one leaf and merges same-height peaks, following the standard MMR
// append algorithm: after placing the leaf, keep merging with the left sibling while
// the position immediately following the working position would be a taller node.
func (t *tree) push(leaf []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elems := [][]byte{leaf}
	base := uint64(len(t.nodes))
	pos := base
	height := uint32(0)

	// node reads a position from the stored nodes or, for positions this push has
	// created but not yet appended, from elems.
	node := func(p uint64) []byte {
		if p < base {
			return t.nodes[p]
		}
		return elems[p-base]
	}

	for NodeHeight(pos+1) > height {
		pos++
		leftPos := pos - parentOffset(height)
		rightPos := leftPos + siblingOffset(height)
		parent := codec.Keccak256(node(leftPos), node(rightPos))
		elems = append(elems, parent)
		height++
	}
	t.nodes = append(t.nodes, elems...)
}

func (t *tree) size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.nodes))
}

func (t *tree) at(pos uint64) []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[pos]
}

// proofFor walks from leafPos up to its peak, collecting sibling hashes, using the same
// height-offset arithmetic as push.
func (t *tree) proofFor(leafPos uint64) ([]ProofItem, uint64, error) {
	mmrSize := t.size()
	peaks := PeakPositions(mmrSize)
	isPeak := func(p uint64) bool {
		for _, peak := range peaks {
			if peak == p {
				return true
			}
		}
		return false
	}

	var items []ProofItem
	pos := leafPos
	height := NodeHeight(pos)
	for !isPeak(pos) {
		nextHeight := NodeHeight(pos + 1)
		if nextHeight > height {
			// pos is a right child; its sibling is to the left, parent follows directly.
			siblingPos := pos - siblingOffset(height)
			if siblingPos >= mmrSize {
				return nil, 0, fmt.Errorf("mmr: sibling position %d out of range", siblingPos)
			}
			items = append(items, ProofItem{Hash: hexHash(t.at(siblingPos)), Side: SideLeft})
			pos = pos + 1
			height = nextHeight
		} else {
			// pos is a left child; its sibling is to the right.
			siblingPos := pos + siblingOffset(height)
			if siblingPos >= mmrSize {
				return nil, 0, fmt.Errorf("mmr: sibling position %d out of range", siblingPos)
			}
			items = append(items, ProofItem{Hash: hexHash(t.at(siblingPos)), Side: SideRight})
			pos = siblingPos + 1
			height++
		}
	}
	return items, pos, nil
}

// bagPeaks folds the peak hashes right-to-left into a single MMR root, the convention
// used throughout this package's verification path.
func bagPeaks(peakHashes [][]byte) []byte {
	if len(peakHashes) == 0 {
		return nil
	}
	root := peakHashes[len(peakHashes)-1]
	for i := len(peakHashes) - 2; i >= 0; i-- {
		root = codec.Keccak256(peakHashes[i], root)
	}
	return root
}

func hexHash(h []byte) string { return hex.EncodeToString(h) }

// syntheticLeaf derives a filler leaf distinct from base by XOR-ing its trailing bytes
// with the big-endian encoding of index, per §4.2: "synthetic XOR variants for
// all-but-last" leaves.
func syntheticLeaf(base []byte, index uint64) []byte {
	leaf := append([]byte(nil), base...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	for i := 0; i < 8 && i < len(leaf); i++ {
		leaf[len(leaf)-8+i] ^= idx[i]
	}
	return leaf
}

// GenerateRootWithProof fabricates a tree of treeSize leaves — synthetic XOR variants
// derived from the hash of encodedRequest for all but the last, and the true
// keccak(encodedRequest) as the last leaf — computes the MMR root, and returns a proof
// for that last leaf alongside its position bookkeeping.
func GenerateRootWithProof(encodedRequest []byte, treeSize uint64) (root []byte, proof Proof, err error) {
	if treeSize == 0 {
		return nil, Proof{}, ErrEmptyTree
	}

	base := codec.Keccak256(encodedRequest)
	leaves := make([][]byte, treeSize)
	for i := uint64(0); i < treeSize-1; i++ {
		leaves[i] = codec.Keccak256(syntheticLeaf(base, i))
	}
	leafIndex := treeSize - 1
	leaves[leafIndex] = base

	if treeSize == 1 {
		return base, Proof{
			LeafHash:  hexHash(base),
			LeafIndex: 0,
			KIndex:    0,
			Peak:      0,
			Items:     nil,
			TreeSize:  1,
			MmrSize:   Size(1),
		}, nil
	}

	t, err := buildTree(leaves)
	if err != nil {
		return nil, Proof{}, err
	}

	mmrSize := t.size()
	leafPos := LeafIndexToPosition(leafIndex)
	items, peak, err := t.proofFor(leafPos)
	if err != nil {
		return nil, Proof{}, err
	}

	kindices, err := PositionToKIndex([]uint64{leafPos}, mmrSize)
	if err != nil {
		return nil, Proof{}, err
	}

	peakPositions := PeakPositions(mmrSize)
	peakHashes := make([][]byte, len(peakPositions))
	for i, p := range peakPositions {
		peakHashes[i] = t.at(p)
	}
	root = bagPeaks(peakHashes)

	return root, Proof{
		LeafHash:  hexHash(leaves[leafIndex]),
		LeafIndex: leafIndex,
		KIndex:    kindices[0].KIndex,
		Peak:      peak,
		Items:     items,
		TreeSize:  treeSize,
		MmrSize:   mmrSize,
	}, nil
}

// VerifyProof recomputes the path from leafHash to its peak using proof.Items and
// confirms the peak, bagged with the remaining declared peaks, reproduces expectedRoot.
// Only the target leaf's own peak is recomputed from proof.Items; the chain adapter
// supplies the sibling peak hashes and the target peak's index within that set, both of
// which it already has from the proof envelope it received over the wire.
func VerifyProof(leafHash []byte, proof Proof, otherPeakHashes [][]byte, peakIndex int, expectedRoot []byte) (bool, error) {
	current := leafHash
	for _, item := range proof.Items {
		sib, err := hex.DecodeString(item.Hash)
		if err != nil {
			return false, fmt.Errorf("mmr: invalid proof item hash: %w", err)
		}
		if item.Side == SideLeft {
			current = codec.Keccak256(sib, current)
		} else {
			current = codec.Keccak256(current, sib)
		}
	}

	peaks := append([][]byte(nil), otherPeakHashes...)
	if peakIndex < 0 || peakIndex > len(peaks) {
		return false, fmt.Errorf("mmr: peak index %d out of range", peakIndex)
	}
	peaks = append(peaks[:peakIndex], append([][]byte{current}, peaks[peakIndex:]...)...)

	got := bagPeaks(peaks)
	return subtle.ConstantTimeCompare(got, expectedRoot) == 1, nil
}

// ToJSON/FromJSON serialize a Proof, matching pkg/merkle/tree.go's JSON round-trip
// helpers for inclusion proofs.
func (p Proof) ToJSON() ([]byte, error) { return json.Marshal(p) }

func ProofFromJSON(data []byte) (Proof, error) {
	var p Proof
	err := json.Unmarshal(data, &p)
	return p, err
}
