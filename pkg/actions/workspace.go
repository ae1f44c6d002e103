package actions

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// workNode is a mutable node of the working tree that actions are applied to.
type workNode struct {
	ref      Ref
	nodeType tree.Type
	label    string
	parent   *workNode
	children []*workNode
	// origin is the source node this working node was copied from, if any.
	origin *tree.Node
}

// workspace is a mutable copy of a source tree under a virtual top node.
// Deleted nodes are unregistered; their remaining children stay addressable
// until moved elsewhere.
type workspace struct {
	top   *workNode
	nodes map[Ref]*workNode
}

func newWorkspace(src *tree.Tree) *workspace {
	ws := &workspace{
		top:   &workNode{},
		nodes: make(map[Ref]*workNode, src.Size()),
	}

	for _, n := range src.Preorder() {
		copied := &workNode{
			ref:      Ref{Side: Source, ID: n.ID},
			nodeType: n.Type,
			label:    n.Label,
			origin:   n,
		}
		ws.nodes[copied.ref] = copied

		parent := ws.top
		if p := src.Parent(n); p != nil {
			parent = ws.nodes[Ref{Side: Source, ID: p.ID}]
		}

		copied.parent = parent
		parent.children = append(parent.children, copied)
	}

	return ws
}

func (ws *workspace) lookup(ref Ref) (*workNode, error) {
	if ref.IsZero() {
		return ws.top, nil
	}

	n, ok := ws.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %s", ErrInvalidAction, ref)
	}

	return n, nil
}

func (ws *workspace) detach(n *workNode) {
	if n.parent == nil {
		return
	}

	idx := slices.Index(n.parent.children, n)
	if idx >= 0 {
		n.parent.children = slices.Delete(n.parent.children, idx, idx+1)
	}

	n.parent = nil
}

func (ws *workspace) attach(n, parent *workNode, pos int) error {
	if pos < 0 || pos > len(parent.children) {
		return fmt.Errorf("%w: position %d out of range [0,%d] under %s",
			ErrInvalidAction, pos, len(parent.children), parent.ref)
	}

	parent.children = slices.Insert(parent.children, pos, n)
	n.parent = parent

	return nil
}

// within reports whether n is anc or one of its working descendants.
func within(n, anc *workNode) bool {
	for current := n; current != nil; current = current.parent {
		if current == anc {
			return true
		}
	}

	return false
}

func (ws *workspace) apply(action Action) error {
	switch action.Kind {
	case Delete:
		n, err := ws.lookup(action.Node)
		if err != nil || n == ws.top {
			return fmt.Errorf("%w: cannot delete %s", ErrInvalidAction, action.Node)
		}

		ws.detach(n)
		delete(ws.nodes, action.Node)

		return nil
	case Insert:
		if action.Node.IsZero() {
			return fmt.Errorf("%w: insert without a node identifier", ErrInvalidAction)
		}

		if _, exists := ws.nodes[action.Node]; exists {
			return fmt.Errorf("%w: node %s already exists", ErrInvalidAction, action.Node)
		}

		parent, err := ws.lookup(action.Parent)
		if err != nil {
			return err
		}

		inserted := &workNode{ref: action.Node, nodeType: action.Type, label: action.Label}

		err = ws.attach(inserted, parent, action.Position)
		if err != nil {
			return err
		}

		ws.nodes[action.Node] = inserted

		return nil
	case Move:
		n, err := ws.lookup(action.Node)
		if err != nil {
			return err
		}

		parent, err := ws.lookup(action.Parent)
		if err != nil {
			return err
		}

		if n == ws.top || within(parent, n) {
			return fmt.Errorf("%w: cannot move %s under its own subtree", ErrInvalidAction, action.Node)
		}

		ws.detach(n)

		return ws.attach(n, parent, action.Position)
	case Update:
		n, err := ws.lookup(action.Node)
		if err != nil || n == ws.top {
			return fmt.Errorf("%w: cannot update %s", ErrInvalidAction, action.Node)
		}

		n.label = action.Label

		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAction, int(action.Kind))
	}
}

// result converts the single top-level working subtree into a node tree.
func (ws *workspace) result() (*tree.Node, error) {
	if len(ws.top.children) != 1 {
		return nil, fmt.Errorf("%w: script leaves %d top-level nodes", ErrInvalidAction, len(ws.top.children))
	}

	var convert func(n *workNode) *tree.Node

	convert = func(n *workNode) *tree.Node {
		builder := tree.NewBuilder().WithType(n.nodeType).WithLabel(n.label)
		if n.origin != nil {
			builder = builder.WithPosition(n.origin.Pos)
		}

		children := make([]*tree.Node, 0, len(n.children))
		for _, child := range n.children {
			children = append(children, convert(child))
		}

		return builder.WithChildren(children...).Build()
	}

	return convert(ws.top.children[0]), nil
}
