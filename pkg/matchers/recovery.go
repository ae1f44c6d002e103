package matchers

import (
	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// recoverPair looks for further mappings under a freshly mapped pair (a, b):
// recoverExact first, then recoverHistogram.
func recoverPair(src, dst *tree.Tree, store *mapping.Store, cfg Config, a, b *tree.Node) (int, error) {
	added, err := recoverExact(src, dst, store, cfg, a, b)
	if err != nil {
		return added, err
	}

	histogram, err := recoverHistogram(src, dst, store, cfg, a, b)

	return added + histogram, err
}

// recoverExact runs the top-down algorithm restricted to the unmapped children
// of a and b.
func recoverExact(src, dst *tree.Tree, store *mapping.Store, cfg Config, a, b *tree.Node) (int, error) {
	if !recoverable(cfg, a, b) {
		return 0, nil
	}

	srcKids := unmappedChildren(a, store.HasSrc)
	dstKids := unmappedChildren(b, store.HasDst)

	if len(srcKids) == 0 || len(dstKids) == 0 {
		return 0, nil
	}

	td := newTopDown(src, dst, store, cfg)
	td.checkFree = true

	return td.run(srcKids, dstKids)
}

// recoverable reports whether both subtrees fit within RecoveryMaxSize.
func recoverable(cfg Config, a, b *tree.Node) bool {
	return cfg.RecoveryMaxSize > 0 && a.Size() <= cfg.RecoveryMaxSize && b.Size() <= cfg.RecoveryMaxSize
}

// recoverHistogram maps children of a and b whose type is unique among the
// unmapped children on both sides, then recovers below each new pair.
func recoverHistogram(src, dst *tree.Tree, store *mapping.Store, cfg Config, a, b *tree.Node) (int, error) {
	if !recoverable(cfg, a, b) {
		return 0, nil
	}

	srcKids := unmappedChildren(a, store.HasSrc)
	dstKids := unmappedChildren(b, store.HasDst)

	srcByType, order := histogram(srcKids)
	dstByType, _ := histogram(dstKids)

	added := 0

	for _, nodeType := range order {
		srcs, dsts := srcByType[nodeType], dstByType[nodeType]
		if len(srcs) != 1 || len(dsts) != 1 {
			continue
		}

		err := store.Add(srcs[0], dsts[0])
		if err != nil {
			return added, err
		}

		added++

		below, err := recoverPair(src, dst, store, cfg, srcs[0], dsts[0])
		added += below

		if err != nil {
			return added, err
		}
	}

	return added, nil
}

func histogram(nodes []*tree.Node) (map[tree.Type][]*tree.Node, []tree.Type) {
	byType := make(map[tree.Type][]*tree.Node)

	var order []tree.Type

	for _, n := range nodes {
		if _, ok := byType[n.Type]; !ok {
			order = append(order, n.Type)
		}

		byType[n.Type] = append(byType[n.Type], n)
	}

	return byType, order
}

func unmappedChildren(n *tree.Node, mapped func(*tree.Node) bool) []*tree.Node {
	var out []*tree.Node

	for _, child := range n.Children {
		if !mapped(child) {
			out = append(out, child)
		}
	}

	return out
}
