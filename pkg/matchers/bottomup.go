package matchers

import (
	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// BottomUp extends store with container mappings. Source nodes are visited
// in post-order; an unmapped inner node with mapped descendants is paired with
// the unmapped destination node of the same type that maximizes the Dice
// similarity of their descendants, when that score exceeds the threshold.
// The two roots are paired whenever both are unmapped and share a type.
//
// Every accepted pair gets an exact recovery pass right away. The histogram
// pass runs after the loop, over the accepted pairs in acceptance order, so it
// never takes a destination container from a later similarity match.
func BottomUp(src, dst *tree.Tree, store *mapping.Store, cfg Config) (Stats, error) {
	bu := &bottomUp{src: src, dst: dst, store: store, cfg: cfg}

	for _, a := range src.PostOrder() {
		if store.HasSrc(a) {
			continue
		}

		if a == src.Root() {
			err := bu.matchRoots()
			if err != nil {
				return bu.stats, err
			}

			continue
		}

		if a.IsLeaf() {
			continue
		}

		b, ok := bu.bestCandidate(a)
		if !ok {
			continue
		}

		err := bu.accept(a, b)
		if err != nil {
			return bu.stats, err
		}

		bu.stats.BottomUp++
	}

	for _, pair := range bu.accepted {
		recovered, err := recoverHistogram(src, dst, store, cfg, pair.Src, pair.Dst)
		bu.stats.Recovered += recovered

		if err != nil {
			return bu.stats, err
		}
	}

	return bu.stats, nil
}

type bottomUp struct {
	src   *tree.Tree
	dst   *tree.Tree
	store *mapping.Store
	cfg   Config
	stats Stats

	accepted []mapping.Pair
}

func (bu *bottomUp) matchRoots() error {
	srcRoot, dstRoot := bu.src.Root(), bu.dst.Root()

	if !bu.store.HasDst(dstRoot) && srcRoot.Type == dstRoot.Type {
		err := bu.accept(srcRoot, dstRoot)
		if err != nil {
			return err
		}

		bu.stats.Roots++

		return nil
	}

	if srcRoot.IsLeaf() {
		return nil
	}

	b, ok := bu.bestCandidate(srcRoot)
	if !ok {
		return nil
	}

	err := bu.accept(srcRoot, b)
	if err != nil {
		return err
	}

	bu.stats.BottomUp++

	return nil
}

func (bu *bottomUp) accept(a, b *tree.Node) error {
	err := bu.store.Add(a, b)
	if err != nil {
		return err
	}

	bu.accepted = append(bu.accepted, mapping.Pair{Src: a, Dst: b})

	recovered, err := recoverExact(bu.src, bu.dst, bu.store, bu.cfg, a, b)
	bu.stats.Recovered += recovered

	return err
}

// bestCandidate scores the unmapped same-type destination ancestors of the
// partners of a's mapped descendants. Ties go to the smallest height
// difference, then to the earliest destination preorder position.
func (bu *bottomUp) bestCandidate(a *tree.Node) (*tree.Node, bool) {
	var (
		best      *tree.Node
		bestScore float64
	)

	for _, b := range bu.candidates(a) {
		score := Dice(bu.src, bu.dst, bu.store, a, b)
		if score <= bu.cfg.SimilarityThreshold {
			continue
		}

		if best == nil || score > bestScore || (score == bestScore && bu.preferOver(a, b, best)) {
			best, bestScore = b, score
		}
	}

	return best, best != nil
}

func (bu *bottomUp) preferOver(a, b, current *tree.Node) bool {
	diffB := abs(a.Height() - b.Height())
	diffCurrent := abs(a.Height() - current.Height())

	if diffB != diffCurrent {
		return diffB < diffCurrent
	}

	return bu.dst.PreorderIndex(b) < bu.dst.PreorderIndex(current)
}

func (bu *bottomUp) candidates(a *tree.Node) []*tree.Node {
	var out []*tree.Node

	seen := make(map[*tree.Node]bool)

	for _, x := range bu.src.Descendants(a) {
		partner := bu.store.Dst(x)
		if partner == nil {
			continue
		}

		for _, anc := range bu.dst.Ancestors(partner) {
			if seen[anc] {
				// Everything above was reached through an earlier partner.
				break
			}

			seen[anc] = true

			if anc.Type == a.Type && !bu.store.HasDst(anc) {
				out = append(out, anc)
			}
		}
	}

	return out
}

// Dice returns 2*common / (|descendants(a)| + |descendants(b)|), where common
// counts the descendants of a mapped to descendants of b. It is 0 when both
// nodes are leaves.
func Dice(src, dst *tree.Tree, store *mapping.Store, a, b *tree.Node) float64 {
	total := (a.Size() - 1) + (b.Size() - 1)
	if total == 0 {
		return 0
	}

	return 2 * float64(commonDescendants(src, dst, store, a, b)) / float64(total)
}

func commonDescendants(src, dst *tree.Tree, store *mapping.Store, a, b *tree.Node) int {
	common := 0

	for _, x := range src.Descendants(a) {
		partner := store.Dst(x)
		if partner != nil && dst.IsAncestor(b, partner) {
			common++
		}
	}

	return common
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
