package tree

import (
	"encoding/binary"
	"hash/fnv"
)

// Splitmix64 finalizer constants (Vigna, 2014).
const (
	mixShift1 = 30
	mixMul1   = 0xbf58476d1ce4e5b9
	mixShift2 = 27
	mixMul2   = 0x94d049bb133111eb
	mixShift3 = 31
)

const hashBufSize = 8

// mix64 applies the splitmix64 finalizer for full-avalanche mixing.
func mix64(v uint64) uint64 {
	v ^= v >> mixShift1
	v *= mixMul1
	v ^= v >> mixShift2
	v *= mixMul2
	v ^= v >> mixShift3

	return v
}

// subtreeHash combines the node's type and label with the hashes of its
// children in order. Children must already be hashed.
func subtreeHash(targetNode *Node) uint64 {
	hasher := fnv.New64a()

	hasher.Write([]byte(targetNode.Type))
	hasher.Write([]byte{0})
	hasher.Write([]byte(targetNode.Label))
	hasher.Write([]byte{0})

	var buf [hashBufSize]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(len(targetNode.Children)))
	hasher.Write(buf[:])

	for _, child := range targetNode.Children {
		binary.LittleEndian.PutUint64(buf[:], child.hash)
		hasher.Write(buf[:])
	}

	return mix64(hasher.Sum64())
}

// SubtreeEquals reports whether the subtrees rooted at a and b are isomorphic:
// same type, same label, same number of children and pairwise isomorphic
// children. Both nodes must belong to built trees. Differing hashes or sizes
// reject in O(1); a full comparison runs only when they agree.
func SubtreeEquals(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a.hash != b.hash || a.size != b.size || a.height != b.height {
		return false
	}

	left := []*Node{a}
	right := []*Node{b}

	for len(left) > 0 {
		x := left[len(left)-1]
		y := right[len(right)-1]
		left = left[:len(left)-1]
		right = right[:len(right)-1]

		if x.Type != y.Type || x.Label != y.Label || len(x.Children) != len(y.Children) {
			return false
		}

		left = append(left, x.Children...)
		right = append(right, y.Children...)
	}

	return true
}
