// Package tree provides the canonical node structure compared by the
// differencing engine, together with the per-tree indices (height, preorder,
// identifier, parent) that the matchers rely on.
package tree

import (
	"strings"
)

// Type is the semantic category of a node (e.g. "MethodDeclaration", "If").
// Matching only ever compares types for equality.
type Type string

// Positions represents the byte and line/col offsets for a node.
// All fields are 1-based except StartOffset/EndOffset, which are byte offsets.
type Positions struct {
	StartLine   uint `json:"start_line,omitempty"`
	StartCol    uint `json:"start_col,omitempty"`
	StartOffset uint `json:"start_offset,omitempty"`
	EndLine     uint `json:"end_line,omitempty"`
	EndCol      uint `json:"end_col,omitempty"`
	EndOffset   uint `json:"end_offset,omitempty"`
}

// Node is one construct of a hierarchical document.
//
// Fields:
//
//	ID: identifier unique within the tree; Build assigns the preorder index when empty.
//	Type: semantic category.
//	Label: optional textual value (identifier name, literal, operator).
//	Pos: source position (optional).
//	Children: child nodes (ordered).
//
// Height, size, hash and preorder position are computed by Build and are only
// meaningful once the node belongs to a Tree. The parent is not stored on the
// node; it is resolved through the owning Tree.
type Node struct {
	ID       string     `json:"id,omitempty"`
	Type     Type       `json:"type"`
	Label    string     `json:"label,omitempty"`
	Pos      *Positions `json:"pos,omitempty"`
	Children []*Node    `json:"children,omitempty"`

	height   int
	size     int
	preorder int
	hash     uint64
}

// New creates a node with the given type, label and children.
func New(nodeType Type, label string, children ...*Node) *Node {
	return &Node{Type: nodeType, Label: label, Children: children}
}

// NodeBuilder provides a fluent interface for building Node instances.
type NodeBuilder struct {
	node *Node
}

// NewBuilder creates a new NodeBuilder.
func NewBuilder() *NodeBuilder {
	return &NodeBuilder{node: &Node{}}
}

// WithID sets the node ID.
func (builder *NodeBuilder) WithID(nodeID string) *NodeBuilder {
	builder.node.ID = nodeID

	return builder
}

// WithType sets the node type.
func (builder *NodeBuilder) WithType(nodeType Type) *NodeBuilder {
	builder.node.Type = nodeType

	return builder
}

// WithLabel sets the node label.
func (builder *NodeBuilder) WithLabel(label string) *NodeBuilder {
	builder.node.Label = label

	return builder
}

// WithPosition sets the node position.
func (builder *NodeBuilder) WithPosition(pos *Positions) *NodeBuilder {
	builder.node.Pos = pos

	return builder
}

// WithChildren appends children to the node.
func (builder *NodeBuilder) WithChildren(children ...*Node) *NodeBuilder {
	builder.node.Children = append(builder.node.Children, children...)

	return builder
}

// Build returns the constructed node.
func (builder *NodeBuilder) Build() *Node {
	return builder.node
}

// Height returns 1 for leaves and 1+max(child heights) otherwise.
func (targetNode *Node) Height() int {
	return targetNode.height
}

// Size returns the number of nodes in the subtree rooted at this node.
func (targetNode *Node) Size() int {
	return targetNode.size
}

// Hash returns the subtree hash computed from types, labels and child order.
func (targetNode *Node) Hash() uint64 {
	return targetNode.hash
}

// IsLeaf reports whether the node has no children.
func (targetNode *Node) IsLeaf() bool {
	return len(targetNode.Children) == 0
}

// ChildIndex returns the position of child among the node's children, or -1.
func (targetNode *Node) ChildIndex(child *Node) int {
	for idx, candidate := range targetNode.Children {
		if candidate == child {
			return idx
		}
	}

	return -1
}

// VisitPreOrder calls fn for the node and its descendants, parents first,
// children left to right.
func (targetNode *Node) VisitPreOrder(fn func(*Node)) {
	if targetNode == nil {
		return
	}

	stack := make([]*Node, 0, defaultStackCap)
	stack = append(stack, targetNode)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(current)

		stack = pushChildrenReversed(stack, current.Children)
	}
}

// VisitPostOrder calls fn for the descendants of the node before the node itself.
func (targetNode *Node) VisitPostOrder(fn func(*Node)) {
	if targetNode == nil {
		return
	}

	stack := make([]postOrderFrame, 0, defaultStackCap)
	stack = append(stack, postOrderFrame{node: targetNode})

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if !top.expanded && len(top.node.Children) > 0 {
			top.expanded = true

			for idx := len(top.node.Children) - 1; idx >= 0; idx-- {
				stack = append(stack, postOrderFrame{node: top.node.Children[idx]})
			}

			continue
		}

		fn(top.node)

		stack = stack[:len(stack)-1]
	}
}

// Clone returns a deep copy of the subtree. Computed attributes are not copied;
// the copy must go through Build before it is compared.
func (targetNode *Node) Clone() *Node {
	if targetNode == nil {
		return nil
	}

	out := &Node{
		ID:    targetNode.ID,
		Type:  targetNode.Type,
		Label: targetNode.Label,
	}

	if targetNode.Pos != nil {
		pos := *targetNode.Pos
		out.Pos = &pos
	}

	if len(targetNode.Children) > 0 {
		out.Children = make([]*Node, len(targetNode.Children))

		for idx, child := range targetNode.Children {
			out.Children[idx] = child.Clone()
		}
	}

	return out
}

// String returns the node as "Type(label)".
func (targetNode *Node) String() string {
	if targetNode == nil {
		return "<nil>"
	}

	var buf strings.Builder

	buf.WriteString(string(targetNode.Type))
	buf.WriteByte('(')
	buf.WriteString(targetNode.Label)
	buf.WriteByte(')')

	return buf.String()
}

// Traversal allocation constants.
const defaultStackCap = 64

type postOrderFrame struct {
	node     *Node
	expanded bool
}

func pushChildrenReversed(stack, children []*Node) []*Node {
	for idx := len(children) - 1; idx >= 0; idx-- {
		stack = append(stack, children[idx])
	}

	return stack
}
