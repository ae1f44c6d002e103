// Package mapping holds the partial bijection between the nodes of a source
// tree and the nodes of a destination tree.
package mapping

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Sentinel errors for mapping operations.
var (
	// ErrConflict is matched by every ConflictError.
	ErrConflict = errors.New("mapping conflict")
	// ErrNotMapped indicates Remove was asked for a pair that is not in the store.
	ErrNotMapped = errors.New("pair not mapped")
)

// ConflictError reports an attempt to map a node that already has a partner.
// It is a programming invariant violation and must be propagated.
type ConflictError struct {
	Src      *tree.Node
	Dst      *tree.Node
	Existing *tree.Node
	// SrcSide is true when Src was already mapped (to Existing), false when Dst was.
	SrcSide bool
}

func (e *ConflictError) Error() string {
	if e.SrcSide {
		return fmt.Sprintf("%s: source %s already mapped to %s, cannot map to %s",
			ErrConflict, e.Src, e.Existing, e.Dst)
	}

	return fmt.Sprintf("%s: destination %s already mapped to %s, cannot map to %s",
		ErrConflict, e.Dst, e.Existing, e.Src)
}

// Unwrap returns ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Pair is one (source, destination) correspondence.
type Pair struct {
	Src *tree.Node
	Dst *tree.Node
}

// Store is a partial bijection between source and destination nodes with O(1)
// lookup from either side. All methods are safe for concurrent use; Add is
// serialized so concurrent matchers cannot break the bijection.
type Store struct {
	mu       sync.RWMutex
	srcToDst map[*tree.Node]*tree.Node
	dstToSrc map[*tree.Node]*tree.Node
	order    []Pair
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		srcToDst: make(map[*tree.Node]*tree.Node),
		dstToSrc: make(map[*tree.Node]*tree.Node),
	}
}

// Add maps src to dst. It fails with a ConflictError when either node is
// already mapped, leaving the store unchanged.
func (s *Store) Add(src, dst *tree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.srcToDst[src]; ok {
		return &ConflictError{Src: src, Dst: dst, Existing: existing, SrcSide: true}
	}

	if existing, ok := s.dstToSrc[dst]; ok {
		return &ConflictError{Src: src, Dst: dst, Existing: existing}
	}

	s.srcToDst[src] = dst
	s.dstToSrc[dst] = src
	s.order = append(s.order, Pair{Src: src, Dst: dst})

	return nil
}

// Remove deletes the pair (src, dst), making both nodes available again.
func (s *Store) Remove(src, dst *tree.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srcToDst[src] != dst || dst == nil {
		return fmt.Errorf("%w: %s -> %s", ErrNotMapped, src, dst)
	}

	delete(s.srcToDst, src)
	delete(s.dstToSrc, dst)

	for idx, pair := range s.order {
		if pair.Src == src {
			s.order = append(s.order[:idx], s.order[idx+1:]...)

			break
		}
	}

	return nil
}

// HasSrc reports whether the source node is mapped.
func (s *Store) HasSrc(src *tree.Node) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.srcToDst[src]

	return ok
}

// HasDst reports whether the destination node is mapped.
func (s *Store) HasDst(dst *tree.Node) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.dstToSrc[dst]

	return ok
}

// Dst returns the partner of a source node, or nil.
func (s *Store) Dst(src *tree.Node) *tree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.srcToDst[src]
}

// Src returns the partner of a destination node, or nil.
func (s *Store) Src(dst *tree.Node) *tree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dstToSrc[dst]
}

// AreMapped reports whether src and dst are mapped to each other.
func (s *Store) AreMapped(src, dst *tree.Node) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partner, ok := s.srcToDst[src]

	return ok && partner == dst
}

// Size returns the number of pairs.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Pairs iterates the pairs in insertion order over a snapshot of the store.
func (s *Store) Pairs() iter.Seq2[*tree.Node, *tree.Node] {
	s.mu.RLock()
	snapshot := make([]Pair, len(s.order))
	copy(snapshot, s.order)
	s.mu.RUnlock()

	return func(yield func(*tree.Node, *tree.Node) bool) {
		for _, pair := range snapshot {
			if !yield(pair.Src, pair.Dst) {
				return
			}
		}
	}
}
