package tree

import (
	"strconv"
)

// Tree owns a root node and all its descendants, and keeps the indices the
// matchers use: height buckets, preorder positions, identifiers and parents.
// A node must belong to at most one Tree.
type Tree struct {
	root     *Node
	preorder []*Node
	byID     map[string]*Node
	parentOf map[string]string
	byHeight map[int][]*Node
	maxDepth int
}

// Build establishes the tree rooted at root: it assigns missing identifiers
// (preorder index), records parents, computes height, size and subtree hash
// bottom-up, and builds the height index. It fails with a MalformedTreeError
// when root is nil, a node has no type, a node is reachable twice, or two
// nodes share an identifier.
func Build(root *Node) (*Tree, error) {
	if root == nil {
		return nil, malformed("", ReasonNilRoot)
	}

	built := &Tree{
		root:     root,
		byID:     make(map[string]*Node),
		parentOf: make(map[string]string),
		byHeight: make(map[int][]*Node),
	}

	seen := make(map[*Node]struct{})
	parents := make(map[*Node]*Node)
	depth := map[*Node]int{root: 1}
	stack := []*Node{root}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, dup := seen[current]; dup {
			return nil, malformed(current.ID, ReasonCycle)
		}

		if current.Type == "" {
			return nil, malformed(current.ID, ReasonEmptyType)
		}

		seen[current] = struct{}{}
		current.preorder = len(built.preorder)
		built.preorder = append(built.preorder, current)
		built.maxDepth = max(built.maxDepth, depth[current])

		for idx := len(current.Children) - 1; idx >= 0; idx-- {
			child := current.Children[idx]
			if child == nil {
				return nil, malformed(current.ID, ReasonNilChild)
			}

			if _, dup := seen[child]; dup {
				return nil, malformed(child.ID, ReasonCycle)
			}

			parents[child] = current
			depth[child] = depth[current] + 1
			stack = append(stack, child)
		}
	}

	err := built.indexIdentifiers(parents)
	if err != nil {
		return nil, err
	}

	// Reverse preorder visits every child before its parent.
	for idx := len(built.preorder) - 1; idx >= 0; idx-- {
		current := built.preorder[idx]
		current.height = 1
		current.size = 1

		for _, child := range current.Children {
			current.height = max(current.height, child.height+1)
			current.size += child.size
		}

		current.hash = subtreeHash(current)
	}

	for _, current := range built.preorder {
		built.byHeight[current.height] = append(built.byHeight[current.height], current)
	}

	return built, nil
}

func (t *Tree) indexIdentifiers(parents map[*Node]*Node) error {
	for _, current := range t.preorder {
		if current.ID == "" {
			current.ID = strconv.Itoa(current.preorder)
		}

		if _, dup := t.byID[current.ID]; dup {
			return malformed(current.ID, ReasonDuplicateID)
		}

		t.byID[current.ID] = current
	}

	for child, parent := range parents {
		t.parentOf[child.ID] = parent.ID
	}

	return nil
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// Size returns the number of nodes in the tree.
func (t *Tree) Size() int {
	return len(t.preorder)
}

// Height returns the height of the root.
func (t *Tree) Height() int {
	return t.root.height
}

// Depth returns the number of levels from the root to the deepest leaf.
func (t *Tree) Depth() int {
	return t.maxDepth
}

// Node returns the node with the given identifier, or nil.
func (t *Tree) Node(nodeID string) *Node {
	return t.byID[nodeID]
}

// Contains reports whether n belongs to this tree.
func (t *Tree) Contains(n *Node) bool {
	return n != nil && t.byID[n.ID] == n
}

// Parent returns the parent of n, or nil for the root and for foreign nodes.
func (t *Tree) Parent(n *Node) *Node {
	parentID, ok := t.parentOf[n.ID]
	if !ok || !t.Contains(n) {
		return nil
	}

	return t.byID[parentID]
}

// Preorder returns all nodes in preorder. The slice is shared and must not be modified.
func (t *Tree) Preorder() []*Node {
	return t.preorder
}

// PreorderIndex returns the position of n in the preorder traversal.
func (t *Tree) PreorderIndex(n *Node) int {
	return n.preorder
}

// PostOrder returns all nodes in post-order (children before parents).
func (t *Tree) PostOrder() []*Node {
	out := make([]*Node, 0, len(t.preorder))
	t.root.VisitPostOrder(func(n *Node) { out = append(out, n) })

	return out
}

// NodesAtHeight returns the nodes with exactly the given height, in preorder.
// The slice is shared and must not be modified.
func (t *Tree) NodesAtHeight(height int) []*Node {
	return t.byHeight[height]
}

// Descendants returns the proper descendants of n in preorder. Descendants of a
// node are contiguous in preorder, so this is a sub-slice of Preorder.
func (t *Tree) Descendants(n *Node) []*Node {
	return t.preorder[n.preorder+1 : n.preorder+n.size]
}

// IsAncestor reports whether anc is a proper ancestor of n.
func (t *Tree) IsAncestor(anc, n *Node) bool {
	return n.preorder > anc.preorder && n.preorder < anc.preorder+anc.size
}

// Ancestors returns the proper ancestors of n, closest first.
func (t *Tree) Ancestors(n *Node) []*Node {
	var out []*Node

	for parent := t.Parent(n); parent != nil; parent = t.Parent(parent) {
		out = append(out, parent)
	}

	return out
}
