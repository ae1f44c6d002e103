package matchers

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// TopDown maps the largest pairwise-disjoint isomorphic subtrees of src and
// dst into store and returns the number of node pairs it added. Every pair it
// produces satisfies tree.SubtreeEquals.
func TopDown(src, dst *tree.Tree, store *mapping.Store, cfg Config) (int, error) {
	td := newTopDown(src, dst, store, cfg)

	return td.run([]*tree.Node{src.Root()}, []*tree.Node{dst.Root()})
}

type topDown struct {
	src   *tree.Tree
	dst   *tree.Tree
	store *mapping.Store
	cfg   Config
	// checkFree is set when the store may already hold pairs inside the
	// subtrees being examined, so candidates must be checked for mapped nodes.
	checkFree bool
	added     int
}

func newTopDown(src, dst *tree.Tree, store *mapping.Store, cfg Config) *topDown {
	return &topDown{
		src:       src,
		dst:       dst,
		store:     store,
		cfg:       cfg,
		checkFree: store.Size() > 0,
	}
}

// run processes the open lists seeded with the given roots until either is exhausted.
func (td *topDown) run(srcRoots, dstRoots []*tree.Node) (int, error) {
	srcList := newHeightList(td.cfg.MinHeight)
	dstList := newHeightList(td.cfg.MinHeight)

	for _, n := range srcRoots {
		srcList.push(n)
	}

	for _, n := range dstRoots {
		dstList.push(n)
	}

	for {
		srcHeight, dstHeight := srcList.peekMax(), dstList.peekMax()
		if srcHeight == 0 || dstHeight == 0 {
			return td.added, nil
		}

		switch {
		case srcHeight > dstHeight:
			for _, n := range srcList.pop(srcHeight) {
				td.open(srcList, n, td.store.HasSrc)
			}
		case dstHeight > srcHeight:
			for _, n := range dstList.pop(dstHeight) {
				td.open(dstList, n, td.store.HasDst)
			}
		default:
			openSrc, openDst, err := td.matchHeight(srcList.pop(srcHeight), dstList.pop(dstHeight))
			if err != nil {
				return td.added, err
			}

			for _, n := range openSrc {
				td.open(srcList, n, td.store.HasSrc)
			}

			for _, n := range openDst {
				td.open(dstList, n, td.store.HasDst)
			}
		}
	}
}

// open pushes the unmapped children of n.
func (td *topDown) open(list *heightList, n *tree.Node, mapped func(*tree.Node) bool) {
	for _, child := range n.Children {
		if !mapped(child) {
			list.push(child)
		}
	}
}

// bucket groups the open nodes of one height sharing a subtree hash.
type bucket struct {
	srcs  []*tree.Node
	dsts  []*tree.Node
	pairs []mapping.Pair
}

func (b *bucket) verify() {
	for _, s := range b.srcs {
		for _, d := range b.dsts {
			if tree.SubtreeEquals(s, d) {
				b.pairs = append(b.pairs, mapping.Pair{Src: s, Dst: d})
			}
		}
	}
}

func (b *bucket) ambiguous() bool {
	return len(b.pairs) > 1
}

// matchHeight maps isomorphic pairs among nodes of equal height and returns
// the nodes that found no isomorphic partner, to be opened by the caller.
func (td *topDown) matchHeight(srcs, dsts []*tree.Node) (openSrc, openDst []*tree.Node, err error) {
	byHash := make(map[uint64]*bucket)

	var buckets []*bucket

	collect := func(nodes []*tree.Node, free func(*tree.Node) bool, isSrc bool) []*tree.Node {
		var rest []*tree.Node

		for _, n := range nodes {
			if !free(n) {
				rest = append(rest, n)

				continue
			}

			b, ok := byHash[n.Hash()]
			if !ok {
				b = &bucket{}
				byHash[n.Hash()] = b
				buckets = append(buckets, b)
			}

			if isSrc {
				b.srcs = append(b.srcs, n)
			} else {
				b.dsts = append(b.dsts, n)
			}
		}

		return rest
	}

	openSrc = collect(sortedByPreorder(td.src, srcs), td.srcFree, true)
	openDst = collect(sortedByPreorder(td.dst, dsts), td.dstFree, false)

	err = td.verifyBuckets(buckets)
	if err != nil {
		return nil, nil, err
	}

	// Unambiguous buckets first so their mappings can rank the ambiguous ones.
	slices.SortStableFunc(buckets, func(a, b *bucket) int {
		if a.ambiguous() == b.ambiguous() {
			return 0
		}

		if a.ambiguous() {
			return 1
		}

		return -1
	})

	for _, b := range buckets {
		rest, mapErr := td.mapBucket(b)
		if mapErr != nil {
			return nil, nil, mapErr
		}

		openSrc = append(openSrc, rest.srcs...)
		openDst = append(openDst, rest.dsts...)
	}

	return openSrc, openDst, nil
}

// verifyBuckets checks candidate pairs for isomorphism, fanning out over
// Workers goroutines. Verification only reads the trees.
func (td *topDown) verifyBuckets(buckets []*bucket) error {
	if td.cfg.Workers <= 1 || len(buckets) < 2 {
		for _, b := range buckets {
			b.verify()
		}

		return nil
	}

	var group errgroup.Group

	group.SetLimit(td.cfg.Workers)

	for _, b := range buckets {
		if len(b.srcs) == 0 || len(b.dsts) == 0 {
			continue
		}

		group.Go(func() error {
			b.verify()

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("verify buckets: %w", err)
	}

	return nil
}

// mapBucket maps the verified pairs of b greedily in rank order and returns
// the nodes that had no isomorphic partner at all. Nodes that had a partner
// but lost it to a better ranked pair are dropped from top-down consideration.
func (td *topDown) mapBucket(b *bucket) (*bucket, error) {
	rest := &bucket{}
	paired := make(map[*tree.Node]bool, len(b.srcs)+len(b.dsts))

	for _, pair := range b.pairs {
		paired[pair.Src] = true
		paired[pair.Dst] = true
	}

	for _, s := range b.srcs {
		if !paired[s] {
			rest.srcs = append(rest.srcs, s)
		}
	}

	for _, d := range b.dsts {
		if !paired[d] {
			rest.dsts = append(rest.dsts, d)
		}
	}

	pairs := b.pairs
	if b.ambiguous() {
		pairs = td.rank(pairs)
	}

	for _, pair := range pairs {
		if td.store.HasSrc(pair.Src) || td.store.HasDst(pair.Dst) {
			continue
		}

		err := td.mapSubtrees(pair.Src, pair.Dst)
		if err != nil {
			return nil, err
		}
	}

	return rest, nil
}

// rank orders candidate pairs: most already-established mappings between the
// descendants of their parents first, then earliest source preorder, then
// earliest destination preorder.
func (td *topDown) rank(pairs []mapping.Pair) []mapping.Pair {
	scores := make(map[mapping.Pair]int, len(pairs))

	for _, pair := range pairs {
		scores[pair] = td.contextScore(pair.Src, pair.Dst)
	}

	ranked := slices.Clone(pairs)

	slices.SortStableFunc(ranked, func(a, b mapping.Pair) int {
		return cmp.Or(
			cmp.Compare(scores[b], scores[a]),
			cmp.Compare(td.src.PreorderIndex(a.Src), td.src.PreorderIndex(b.Src)),
			cmp.Compare(td.dst.PreorderIndex(a.Dst), td.dst.PreorderIndex(b.Dst)),
		)
	})

	return ranked
}

func (td *topDown) contextScore(s, d *tree.Node) int {
	srcParent, dstParent := td.src.Parent(s), td.dst.Parent(d)
	if srcParent == nil || dstParent == nil {
		return 0
	}

	return commonDescendants(td.src, td.dst, td.store, srcParent, dstParent)
}

// mapSubtrees maps s to d and every descendant pair in lockstep. Isomorphic
// subtrees have identical preorder shapes, so descendants pair up by index.
func (td *topDown) mapSubtrees(s, d *tree.Node) error {
	err := td.store.Add(s, d)
	if err != nil {
		return err
	}

	dstDescendants := td.dst.Descendants(d)

	for idx, x := range td.src.Descendants(s) {
		err = td.store.Add(x, dstDescendants[idx])
		if err != nil {
			return err
		}
	}

	td.added += s.Size()

	return nil
}

func (td *topDown) srcFree(n *tree.Node) bool {
	return subtreeFree(td.src, n, td.checkFree, td.store.HasSrc)
}

func (td *topDown) dstFree(n *tree.Node) bool {
	return subtreeFree(td.dst, n, td.checkFree, td.store.HasDst)
}

func subtreeFree(t *tree.Tree, n *tree.Node, check bool, mapped func(*tree.Node) bool) bool {
	if !check {
		return true
	}

	if mapped(n) {
		return false
	}

	for _, x := range t.Descendants(n) {
		if mapped(x) {
			return false
		}
	}

	return true
}

func sortedByPreorder(t *tree.Tree, nodes []*tree.Node) []*tree.Node {
	out := slices.Clone(nodes)
	slices.SortFunc(out, func(a, b *tree.Node) int {
		return cmp.Compare(t.PreorderIndex(a), t.PreorderIndex(b))
	})

	return out
}

// heightList is an open list indexed by height. Nodes pushed after a pop are
// always lower than the popped height, so the maximum only decreases.
type heightList struct {
	buckets   map[int][]*tree.Node
	maxHeight int
	minHeight int
}

func newHeightList(minHeight int) *heightList {
	return &heightList{buckets: make(map[int][]*tree.Node), minHeight: minHeight}
}

func (l *heightList) push(n *tree.Node) {
	height := n.Height()
	if height < l.minHeight {
		return
	}

	l.buckets[height] = append(l.buckets[height], n)
	l.maxHeight = max(l.maxHeight, height)
}

// peekMax returns the tallest height present, or 0 when the list is empty.
func (l *heightList) peekMax() int {
	for l.maxHeight > 0 && len(l.buckets[l.maxHeight]) == 0 {
		l.maxHeight--
	}

	return l.maxHeight
}

func (l *heightList) pop(height int) []*tree.Node {
	nodes := l.buckets[height]
	delete(l.buckets, height)

	return nodes
}
