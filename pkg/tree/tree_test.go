package tree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

func makeTestTree() *tree.Node {
	// Tree structure:
	//      root
	//     / |  \
	//   c1 c2  c3
	//  /      /  \
	// gc1   gc2 gc3.
	return tree.New("Root", "",
		tree.New("Child", "c1", tree.New("Grandchild", "gc1")),
		tree.New("Child", "c2"),
		tree.New("Child", "c3", tree.New("Grandchild", "gc2"), tree.New("Grandchild", "gc3")),
	)
}

func ids(nodes []*tree.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}

	return out
}

func TestBuild_AssignsPreorderIDs(t *testing.T) {
	t.Parallel()

	built, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	assert.Equal(t, 7, built.Size())
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6"}, ids(built.Preorder()))
	assert.Equal(t, "c1", built.Node("1").Label)
	assert.Equal(t, "gc2", built.Node("5").Label)
}

func TestBuild_HeightSizeAndIndex(t *testing.T) {
	t.Parallel()

	built, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	root := built.Root()
	assert.Equal(t, 3, root.Height())
	assert.Equal(t, 7, root.Size())
	assert.Equal(t, 3, built.Height())
	assert.Equal(t, 3, built.Depth())

	assert.Equal(t, []string{"2", "3", "5", "6"}, ids(built.NodesAtHeight(1)))
	assert.Equal(t, []string{"1", "4"}, ids(built.NodesAtHeight(2)))
	assert.Equal(t, []string{"0"}, ids(built.NodesAtHeight(3)))
	assert.Empty(t, built.NodesAtHeight(4))
}

func TestBuild_ParentsAndDescendants(t *testing.T) {
	t.Parallel()

	built, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	c3 := built.Node("4")
	gc3 := built.Node("6")

	assert.Nil(t, built.Parent(built.Root()))
	assert.Same(t, c3, built.Parent(gc3))
	assert.Equal(t, []string{"4", "0"}, ids(built.Ancestors(gc3)))
	assert.Equal(t, []string{"5", "6"}, ids(built.Descendants(c3)))
	assert.Empty(t, built.Descendants(gc3))
	assert.True(t, built.IsAncestor(built.Root(), gc3))
	assert.True(t, built.IsAncestor(c3, gc3))
	assert.False(t, built.IsAncestor(built.Node("1"), gc3))
	assert.False(t, built.IsAncestor(gc3, gc3))
}

func TestBuild_PostOrder(t *testing.T) {
	t.Parallel()

	built, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "1", "3", "5", "6", "4", "0"}, ids(built.PostOrder()))
}

func TestBuild_Malformed(t *testing.T) {
	t.Parallel()

	shared := tree.New("Leaf", "x")
	loop := tree.New("Loop", "")
	loop.Children = []*tree.Node{tree.New("Body", "", loop)}

	tests := []struct {
		name   string
		root   *tree.Node
		reason string
	}{
		{"nil root", nil, tree.ReasonNilRoot},
		{"shared subtree", tree.New("Root", "", shared, shared), tree.ReasonCycle},
		{"cycle", loop, tree.ReasonCycle},
		{"nil child", tree.New("Root", "", nil), tree.ReasonNilChild},
		{"empty type", tree.New("Root", "", tree.New("", "x")), tree.ReasonEmptyType},
		{
			"duplicate id",
			tree.NewBuilder().WithType("Root").WithChildren(
				tree.NewBuilder().WithID("a").WithType("Leaf").Build(),
				tree.NewBuilder().WithID("a").WithType("Leaf").Build(),
			).Build(),
			tree.ReasonDuplicateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := tree.Build(tt.root)
			require.Error(t, err)
			assert.Nil(t, built)
			require.ErrorIs(t, err, tree.ErrMalformedTree)

			var malformedErr *tree.MalformedTreeError
			require.ErrorAs(t, err, &malformedErr)
			assert.Equal(t, tt.reason, malformedErr.Reason)
		})
	}
}

func TestSubtreeEquals(t *testing.T) {
	t.Parallel()

	left, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	right, err := tree.Build(makeTestTree())
	require.NoError(t, err)

	relabeled := makeTestTree()
	relabeled.Children[2].Children[1].Label = "other"
	changed, err := tree.Build(relabeled)
	require.NoError(t, err)

	reordered := makeTestTree()
	reordered.Children[0], reordered.Children[1] = reordered.Children[1], reordered.Children[0]
	swapped, err := tree.Build(reordered)
	require.NoError(t, err)

	assert.True(t, tree.SubtreeEquals(left.Root(), right.Root()))
	assert.Equal(t, left.Root().Hash(), right.Root().Hash())
	assert.False(t, tree.SubtreeEquals(left.Root(), changed.Root()))
	assert.True(t, tree.SubtreeEquals(left.Node("1"), changed.Node("1")))
	assert.False(t, tree.SubtreeEquals(left.Root(), swapped.Root()))
	assert.False(t, tree.SubtreeEquals(left.Node("1"), left.Node("4")))
	assert.True(t, tree.SubtreeEquals(nil, nil))
	assert.False(t, tree.SubtreeEquals(left.Root(), nil))
}

func TestSubtreeEquals_TypeAndLabelAreDistinct(t *testing.T) {
	t.Parallel()

	// Same concatenation of type and label must not collide.
	a, err := tree.Build(tree.New("ab", "c"))
	require.NoError(t, err)

	b, err := tree.Build(tree.New("a", "bc"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Root().Hash(), b.Root().Hash())
	assert.False(t, tree.SubtreeEquals(a.Root(), b.Root()))
}

func TestNode_VisitOrders(t *testing.T) {
	t.Parallel()

	root := makeTestTree()

	var pre, post []string

	root.VisitPreOrder(func(n *tree.Node) { pre = append(pre, n.Label) })
	root.VisitPostOrder(func(n *tree.Node) { post = append(post, n.Label) })

	assert.Equal(t, []string{"", "c1", "gc1", "c2", "c3", "gc2", "gc3"}, pre)
	assert.Equal(t, []string{"gc1", "c1", "c2", "gc2", "gc3", "c3", ""}, post)
}

func TestNode_CloneIsDeep(t *testing.T) {
	t.Parallel()

	root := makeTestTree()
	root.Children[0].Pos = &tree.Positions{StartLine: 3}

	clone := root.Clone()
	clone.Children[0].Label = "changed"
	clone.Children[0].Pos.StartLine = 9

	assert.Equal(t, "c1", root.Children[0].Label)
	assert.Equal(t, uint(3), root.Children[0].Pos.StartLine)
	assert.Equal(t, "Child(c1)", root.Children[0].String())
	assert.Equal(t, 2, root.ChildIndex(root.Children[2]))
	assert.Equal(t, -1, root.ChildIndex(clone.Children[2]))
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	built, err := tree.Assemble([]tree.Record{
		{ID: "r", Type: "Root"},
		{ID: "a", Parent: "r", Type: "A", Label: "1"},
		{ID: "b", Parent: "r", Type: "B"},
		{ID: "c", Parent: "a", Type: "C", Label: "2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"r", "a", "c", "b"}, ids(built.Preorder()))
	assert.Same(t, built.Node("a"), built.Parent(built.Node("c")))
	assert.Equal(t, []tree.Record{
		{ID: "r", Type: "Root"},
		{ID: "a", Parent: "r", Type: "A", Label: "1"},
		{ID: "c", Parent: "a", Type: "C", Label: "2"},
		{ID: "b", Parent: "r", Type: "B"},
	}, built.Records())
}

func TestAssemble_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []tree.Record
		reason  string
	}{
		{"missing parent", []tree.Record{{ID: "r", Type: "R"}, {ID: "a", Parent: "zz", Type: "A"}}, tree.ReasonMissingParent},
		{"duplicate", []tree.Record{{ID: "r", Type: "R"}, {ID: "r", Parent: "r", Type: "A"}}, tree.ReasonDuplicateID},
		{"no root", []tree.Record{{ID: "a", Parent: "b", Type: "A"}, {ID: "b", Parent: "a", Type: "B"}}, tree.ReasonNoRoot},
		{"two roots", []tree.Record{{ID: "a", Type: "A"}, {ID: "b", Type: "B"}}, tree.ReasonManyRoots},
		{"empty type", []tree.Record{{ID: "r", Type: "R"}, {ID: "a", Parent: "r"}}, tree.ReasonEmptyType},
		{
			"detached cycle",
			[]tree.Record{{ID: "r", Type: "R"}, {ID: "a", Parent: "b", Type: "A"}, {ID: "b", Parent: "a", Type: "B"}},
			tree.ReasonUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tree.Assemble(tt.records)

			var malformedErr *tree.MalformedTreeError
			require.ErrorAs(t, err, &malformedErr)
			assert.Equal(t, tt.reason, malformedErr.Reason)
		})
	}
}
