package tree

import (
	"errors"
	"fmt"
)

// ErrMalformedTree is matched by every MalformedTreeError.
var ErrMalformedTree = errors.New("malformed tree")

// Reasons reported by MalformedTreeError.
const (
	ReasonNilRoot       = "nil root"
	ReasonNilChild      = "nil child"
	ReasonEmptyType     = "empty node type"
	ReasonCycle         = "node reachable more than once (cycle or shared subtree)"
	ReasonDuplicateID   = "duplicate identifier"
	ReasonMissingParent = "parent not found"
	ReasonNoRoot        = "no root record"
	ReasonManyRoots     = "more than one root record"
	ReasonUnreachable   = "node unreachable from root (cycle)"
)

// MalformedTreeError reports a structural defect detected while building a tree.
// Construction is aborted; no partial Tree is returned.
type MalformedTreeError struct {
	ID     string
	Reason string
}

func (e *MalformedTreeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedTree, e.Reason)
	}

	return fmt.Sprintf("%s: node %q: %s", ErrMalformedTree, e.ID, e.Reason)
}

// Unwrap returns ErrMalformedTree.
func (e *MalformedTreeError) Unwrap() error {
	return ErrMalformedTree
}

func malformed(nodeID, reason string) error {
	return &MalformedTreeError{ID: nodeID, Reason: reason}
}
