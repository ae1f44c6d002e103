package tree

// Record is a flat description of one node, as produced by builders that emit
// nodes with a parent reference instead of nesting.
type Record struct {
	ID     string `json:"id"               yaml:"id"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Type   Type   `json:"type"             yaml:"type"`
	Label  string `json:"label,omitempty"  yaml:"label,omitempty"`
}

// Assemble links flat records into a tree and builds it. Children keep the
// order in which their records appear. The record with an empty Parent is the
// root; there must be exactly one. A reference to an unknown parent, a
// duplicate identifier, or records that form a cycle detached from the root
// fail with a MalformedTreeError.
func Assemble(records []Record) (*Tree, error) {
	nodes := make(map[string]*Node, len(records))

	for _, rec := range records {
		if _, dup := nodes[rec.ID]; dup || rec.ID == "" {
			return nil, malformed(rec.ID, ReasonDuplicateID)
		}

		nodes[rec.ID] = &Node{ID: rec.ID, Type: rec.Type, Label: rec.Label}
	}

	var root *Node

	for _, rec := range records {
		current := nodes[rec.ID]

		if rec.Parent == "" {
			if root != nil {
				return nil, malformed(rec.ID, ReasonManyRoots)
			}

			root = current

			continue
		}

		parent, ok := nodes[rec.Parent]
		if !ok {
			return nil, malformed(rec.ID, ReasonMissingParent)
		}

		parent.Children = append(parent.Children, current)
	}

	if root == nil {
		return nil, malformed("", ReasonNoRoot)
	}

	built, err := Build(root)
	if err != nil {
		return nil, err
	}

	if built.Size() != len(records) {
		for _, rec := range records {
			if !built.Contains(nodes[rec.ID]) {
				return nil, malformed(rec.ID, ReasonUnreachable)
			}
		}
	}

	return built, nil
}

// Records flattens the tree into records in preorder.
func (t *Tree) Records() []Record {
	out := make([]Record, 0, len(t.preorder))

	for _, current := range t.preorder {
		rec := Record{ID: current.ID, Type: current.Type, Label: current.Label}

		if parent := t.Parent(current); parent != nil {
			rec.Parent = parent.ID
		}

		out = append(out, rec)
	}

	return out
}
