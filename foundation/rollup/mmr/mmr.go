// Package mmr implements a partial Merkle mountain range over the sequence
// of block headers. The accumulator is append only and keeps a small set of
// peaks plus only the internal nodes needed to authenticate the headers this
// client still cares about. Node positions use in-order indexing so a node's
// position never changes as the range grows.
package mmr

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// ErrPruned is returned when a proof is requested for a header whose
// authentication path has been pruned from the partial view.
var ErrPruned = errors.New("authentication path has been pruned")

// =============================================================================

// Peaks represents the roots of the perfect subtrees making up the range,
// ordered from the largest subtree to the smallest.
type Peaks []digest.Digest

// Equal reports whether two peak sets are identical.
func (p Peaks) Equal(other Peaks) bool {
	if len(p) != len(other) {
		return false
	}

	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}

	return true
}

// Node represents a single stored accumulator node identified by its
// in-order position.
type Node struct {
	Position uint64        `json:"position"`
	Hash     digest.Digest `json:"hash"`
}

// MerklePath represents the authentication path for one leaf against the
// peaks frozen at the specified forest (leaf count).
type MerklePath struct {
	Forest uint64          `json:"forest"`
	Nodes  []digest.Digest `json:"nodes"`
}

// =============================================================================

// Mmr maintains the partial Merkle mountain range. The zero value is not
// usable, construct with New or NewFrom.
type Mmr struct {
	forest uint64
	peaks  []digest.Digest
	nodes  map[uint64]digest.Digest
}

// New constructs an empty accumulator.
func New() *Mmr {
	return &Mmr{
		nodes: make(map[uint64]digest.Digest),
	}
}

// NewFrom reconstructs an accumulator from persisted state. The number of
// peaks must match the number of bits set in the forest value.
func NewFrom(forest uint64, peaks Peaks, nodes []Node) (*Mmr, error) {
	if len(peaks) != bits.OnesCount64(forest) {
		return nil, fmt.Errorf("forest %d requires %d peaks, got %d", forest, bits.OnesCount64(forest), len(peaks))
	}

	m := Mmr{
		forest: forest,
		peaks:  append([]digest.Digest{}, peaks...),
		nodes:  make(map[uint64]digest.Digest, len(nodes)),
	}

	for _, node := range nodes {
		m.nodes[node.Position] = node.Hash
	}

	return &m, nil
}

// Forest returns the number of leaves in the accumulator.
func (m *Mmr) Forest() uint64 {
	return m.forest
}

// Peaks returns a copy of the current peak set.
func (m *Mmr) Peaks() Peaks {
	return append(Peaks{}, m.peaks...)
}

// Nodes returns the stored node set for persistence.
func (m *Mmr) Nodes() []Node {
	nodes := make([]Node, 0, len(m.nodes))
	for pos, hash := range m.nodes {
		nodes = append(nodes, Node{Position: pos, Hash: hash})
	}

	return nodes
}

// Clone returns an independent copy of the accumulator. Used to validate a
// batch of headers without mutating the live view.
func (m *Mmr) Clone() *Mmr {
	clone := Mmr{
		forest: m.forest,
		peaks:  append([]digest.Digest{}, m.peaks...),
		nodes:  make(map[uint64]digest.Digest, len(m.nodes)),
	}

	for pos, hash := range m.nodes {
		clone.nodes[pos] = hash
	}

	return &clone
}

// Append adds one leaf to the accumulator and merges peaks the way a binary
// counter carries bits. It returns the nodes created by the append so they
// can be persisted in the same transaction as the header.
func (m *Mmr) Append(leaf digest.Digest) []Node {
	idx := m.forest

	node := leaf
	start := idx
	level := uint(0)

	pos := nodePosition(start, level)
	m.nodes[pos] = node
	created := []Node{{Position: pos, Hash: node}}

	// Each low bit set in the forest is a subtree of the same height as the
	// carry, so the carry keeps merging until it finds a free slot.
	for (m.forest>>level)&1 == 1 {
		left := m.peaks[len(m.peaks)-1]
		m.peaks = m.peaks[:len(m.peaks)-1]

		node = digest.Join(left, node)
		level++
		start &^= 1<<level - 1

		pos = nodePosition(start, level)
		m.nodes[pos] = node
		created = append(created, Node{Position: pos, Hash: node})
	}

	m.peaks = append(m.peaks, node)
	m.forest++

	return created
}

// AddNodes merges externally provided node values into the partial view.
// The remote node supplies these for subtrees this client never observed
// leaf by leaf.
func (m *Mmr) AddNodes(nodes []Node) {
	for _, node := range nodes {
		m.nodes[node.Position] = node.Hash
	}
}

// Proof produces the authentication path for the specified leaf against the
// peaks frozen at the specified forest. The forest may be any historical
// leaf count at or below the current one, as long as the path nodes are
// still retained.
func (m *Mmr) Proof(leafIdx uint64, forest uint64) (MerklePath, error) {
	if forest > m.forest {
		return MerklePath{}, fmt.Errorf("forest %d exceeds accumulator forest %d", forest, m.forest)
	}

	_, height, treeStart, ok := leafTree(forest, leafIdx)
	if !ok {
		return MerklePath{}, fmt.Errorf("leaf %d is not in forest %d", leafIdx, forest)
	}

	i := leafIdx - treeStart
	nodes := make([]digest.Digest, 0, height)

	for d := uint(0); d < height; d++ {
		sibStart := treeStart + (i>>d^1)<<d

		hash, exists := m.nodes[nodePosition(sibStart, d)]
		if !exists {
			return MerklePath{}, ErrPruned
		}
		nodes = append(nodes, hash)
	}

	return MerklePath{Forest: forest, Nodes: nodes}, nil
}

// Prune drops every stored node that is not on the authentication path of
// one of the specified leaves. It returns the positions that were removed
// so the persisted node rows can be deleted in the same transaction.
func (m *Mmr) Prune(keepLeaves []uint64) []uint64 {
	keep := make(map[uint64]bool)

	for _, leafIdx := range keepLeaves {
		_, height, treeStart, ok := leafTree(m.forest, leafIdx)
		if !ok {
			continue
		}

		i := leafIdx - treeStart
		keep[nodePosition(leafIdx, 0)] = true
		for d := uint(0); d < height; d++ {
			sibStart := treeStart + (i>>d^1)<<d
			keep[nodePosition(sibStart, d)] = true
		}
	}

	var removed []uint64
	for pos := range m.nodes {
		if !keep[pos] {
			delete(m.nodes, pos)
			removed = append(removed, pos)
		}
	}

	return removed
}

// =============================================================================

// VerifyInclusion recomputes the peak for the leaf from the authentication
// path and compares it against the provided peak set. A mismatched proof is
// a validation result, not a fault, so this never returns an error.
func VerifyInclusion(leaf digest.Digest, leafIdx uint64, path MerklePath, peaks Peaks) bool {
	if len(peaks) != bits.OnesCount64(path.Forest) {
		return false
	}

	peakIdx, height, treeStart, ok := leafTree(path.Forest, leafIdx)
	if !ok {
		return false
	}

	if uint(len(path.Nodes)) != height {
		return false
	}

	i := leafIdx - treeStart
	node := leaf

	for d, sibling := range path.Nodes {
		if (i>>uint(d))&1 == 0 {
			node = digest.Join(node, sibling)
		} else {
			node = digest.Join(sibling, node)
		}
	}

	return node == peaks[peakIdx]
}

// =============================================================================

// leafTree locates the perfect subtree containing the leaf within the
// specified forest. It returns the index of the subtree's peak, the
// subtree's height, and the leaf index where the subtree starts.
func leafTree(forest uint64, leafIdx uint64) (peakIdx int, height uint, treeStart uint64, ok bool) {
	if leafIdx >= forest {
		return 0, 0, 0, false
	}

	var start uint64
	idx := 0

	for b := 63; b >= 0; b-- {
		if forest&(1<<uint(b)) == 0 {
			continue
		}

		size := uint64(1) << uint(b)
		if leafIdx < start+size {
			return idx, uint(b), start, true
		}

		start += size
		idx++
	}

	return 0, 0, 0, false
}

// nodePosition returns the in-order position for the node of the specified
// level whose subtree starts at the specified leaf index. Leaves sit at the
// odd positions, parents between their children.
func nodePosition(start uint64, level uint) uint64 {
	return 2*start + 1<<level
}
