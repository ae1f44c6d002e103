package actions

import (
	"fmt"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Apply replays script against a copy of src and returns the resulting tree.
// src is not modified. Nodes of the result get fresh preorder identifiers.
func Apply(src *tree.Tree, script Script) (*tree.Tree, error) {
	ws := newWorkspace(src)

	for idx, action := range script {
		err := ws.apply(action)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", idx, action, err)
		}
	}

	root, err := ws.result()
	if err != nil {
		return nil, err
	}

	return tree.Build(root)
}
