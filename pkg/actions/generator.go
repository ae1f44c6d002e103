package actions

import (
	"fmt"

	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Generate derives the edit script that turns src into dst under store.
//
// Actions are emitted as deletes (reverse source preorder), inserts
// (destination preorder), moves (destination preorder) and updates. Every
// position is computed against a working copy of src that already reflects
// all earlier actions, so replaying the script with Apply reproduces dst.
//
// Sibling order is aligned per mapped parent with a longest common
// subsequence: children in the subsequence stay put, the others are moved.
func Generate(src, dst *tree.Tree, store *mapping.Store) (Script, error) {
	err := checkMapping(src, dst, store)
	if err != nil {
		return nil, err
	}

	g := &generator{
		src:     src,
		dst:     dst,
		store:   store,
		ws:      newWorkspace(src),
		work:    make(map[*tree.Node]*workNode, dst.Size()),
		inOrder: make(map[*workNode]bool, dst.Size()),
	}

	for b, a := range g.mappedDst() {
		g.work[b] = g.ws.nodes[srcRef(a)]
	}

	steps := []func() error{g.deletes, g.align, g.inserts, g.moves, g.updates}
	for _, step := range steps {
		err = step()
		if err != nil {
			return nil, err
		}
	}

	return g.script, nil
}

type generator struct {
	src     *tree.Tree
	dst     *tree.Tree
	store   *mapping.Store
	ws      *workspace
	work    map[*tree.Node]*workNode
	inOrder map[*workNode]bool
	script  Script
}

func srcRef(n *tree.Node) Ref {
	return Ref{Side: Source, ID: n.ID}
}

func (g *generator) mappedDst() map[*tree.Node]*tree.Node {
	out := make(map[*tree.Node]*tree.Node, g.store.Size())

	for a, b := range g.store.Pairs() {
		out[b] = a
	}

	return out
}

func (g *generator) emit(action Action) error {
	err := g.ws.apply(action)
	if err != nil {
		return fmt.Errorf("generate %s: %w", action, err)
	}

	g.script = append(g.script, action)

	return nil
}

func (g *generator) deletes() error {
	preorder := g.src.Preorder()

	for idx := len(preorder) - 1; idx >= 0; idx-- {
		a := preorder[idx]
		if g.store.HasSrc(a) {
			continue
		}

		err := g.emit(Action{Kind: Delete, Node: srcRef(a), Type: a.Type, Label: a.Label})
		if err != nil {
			return err
		}
	}

	return nil
}

// align marks, under every mapped destination node, the children that keep
// their relative order: a longest common subsequence of the children already
// in place on both sides.
func (g *generator) align() error {
	if root, ok := g.work[g.dst.Root()]; ok && root.parent == g.ws.top {
		g.inOrder[root] = true
	}

	for _, x := range g.dst.Preorder() {
		w, ok := g.work[x]
		if !ok {
			continue
		}

		var left []*workNode

		position := make(map[*workNode]int)

		for _, child := range w.children {
			partner := g.store.Dst(child.origin)
			if partner != nil && g.dst.Parent(partner) == x {
				position[child] = len(left)
				left = append(left, child)
			}
		}

		right := make([]int, 0, len(left))

		for _, b := range x.Children {
			if idx, placed := position[g.work[b]]; placed {
				right = append(right, idx)
			}
		}

		for idx, keep := range lcsKeep(len(left), right) {
			if keep {
				g.inOrder[left[idx]] = true
			}
		}
	}

	return nil
}

func (g *generator) inserts() error {
	for _, b := range g.dst.Preorder() {
		if g.store.HasDst(b) {
			continue
		}

		parent := g.parentOf(b)
		action := Action{
			Kind:     Insert,
			Node:     Ref{Side: Destination, ID: b.ID},
			Type:     b.Type,
			Label:    b.Label,
			Parent:   parent.ref,
			Position: g.findPos(b, parent),
		}

		err := g.emit(action)
		if err != nil {
			return err
		}

		g.work[b] = g.ws.nodes[action.Node]
		g.inOrder[g.work[b]] = true
	}

	return nil
}

func (g *generator) moves() error {
	for _, b := range g.dst.Preorder() {
		n, mapped := g.work[b], g.store.HasDst(b)
		if !mapped {
			continue
		}

		parent := g.parentOf(b)
		if n.parent == parent && g.inOrder[n] {
			continue
		}

		// Positions are relative to the parent without the moved node.
		g.ws.detach(n)
		action := Action{
			Kind:     Move,
			Node:     n.ref,
			Type:     n.nodeType,
			Label:    n.label,
			Parent:   parent.ref,
			Position: g.findPos(b, parent),
		}

		err := g.emit(action)
		if err != nil {
			return err
		}

		g.inOrder[n] = true
	}

	return nil
}

func (g *generator) updates() error {
	for _, b := range g.dst.Preorder() {
		a := g.store.Src(b)
		if a == nil || a.Label == b.Label {
			continue
		}

		err := g.emit(Action{
			Kind:     Update,
			Node:     srcRef(a),
			Type:     a.Type,
			Label:    b.Label,
			OldLabel: a.Label,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// parentOf returns the working node standing for the destination parent of b.
func (g *generator) parentOf(b *tree.Node) *workNode {
	p := g.dst.Parent(b)
	if p == nil {
		return g.ws.top
	}

	return g.work[p]
}

// findPos places b right after its nearest left sibling that is already in
// order under parent, or first when there is none.
func (g *generator) findPos(b *tree.Node, parent *workNode) int {
	p := g.dst.Parent(b)
	if p == nil {
		return 0
	}

	idx := p.ChildIndex(b)

	for sibling := idx - 1; sibling >= 0; sibling-- {
		v := g.work[p.Children[sibling]]
		if v != nil && v.parent == parent && g.inOrder[v] {
			for pos, child := range parent.children {
				if child == v {
					return pos + 1
				}
			}
		}
	}

	return 0
}

// checkMapping rejects pairs whose nodes do not belong to the trees or whose
// types differ, since no script could reconcile them.
func checkMapping(src, dst *tree.Tree, store *mapping.Store) error {
	for a, b := range store.Pairs() {
		if !src.Contains(a) || !dst.Contains(b) {
			return fmt.Errorf("%w: pair %s -> %s is outside the trees", ErrInconsistentMapping, a, b)
		}

		if a.Type != b.Type {
			return fmt.Errorf("%w: pair %s -> %s changes the type", ErrInconsistentMapping, a, b)
		}
	}

	return nil
}
