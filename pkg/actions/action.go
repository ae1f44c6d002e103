// Package actions derives an edit script from a mapping between two trees and
// replays scripts against a source tree.
package actions

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Kind is the category of an edit action.
type Kind int

// Action kinds, in emission order.
const (
	Delete Kind = iota + 1
	Insert
	Move
	Update
)

var kindNames = map[Kind]string{
	Delete: "delete",
	Insert: "insert",
	Move:   "move",
	Update: "update",
}

// ErrInvalidAction is returned when an action cannot be applied to the working tree.
var ErrInvalidAction = errors.New("invalid action")

// ErrInconsistentMapping is returned when the mapping cannot describe the two trees.
var ErrInconsistentMapping = errors.New("inconsistent mapping")

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidAction, int(k))
	}

	return []byte(name), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind

			return nil
		}
	}

	return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, text)
}

// Side tells which tree an identifier belongs to.
type Side int

// Tree sides.
const (
	Source      Side = 1
	Destination Side = 2
)

// MarshalText encodes the side as "src" or "dst".
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case Source:
		return []byte("src"), nil
	case Destination:
		return []byte("dst"), nil
	case 0:
		return []byte(""), nil
	default:
		return nil, fmt.Errorf("%w: unknown side %d", ErrInvalidAction, int(s))
	}
}

// UnmarshalText decodes "src", "dst" or the empty string.
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "src":
		*s = Source
	case "dst":
		*s = Destination
	case "":
		*s = 0
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidAction, text)
	}

	return nil
}

// Ref identifies a node by its identifier in one of the two trees. The zero
// Ref denotes the top level, above the root.
type Ref struct {
	Side Side   `json:"side,omitempty" yaml:"side,omitempty"`
	ID   string `json:"id,omitempty"   yaml:"id,omitempty"`
}

// IsZero reports whether r denotes the top level.
func (r Ref) IsZero() bool {
	return r.Side == 0 && r.ID == ""
}

func (r Ref) String() string {
	switch r.Side {
	case Source:
		return "src:" + r.ID
	case Destination:
		return "dst:" + r.ID
	default:
		return "top"
	}
}

// Action is one edit. Delete, Update and Move refer to source nodes. Insert
// introduces a destination node. Parent refers to a source node that stays,
// to an inserted destination node, or to the top level.
// Position is the child index in the working tree at the moment the action
// applies, after all preceding actions.
type Action struct {
	Kind     Kind      `json:"kind"`
	Node     Ref       `json:"node"`
	Type     tree.Type `json:"type"`
	Label    string    `json:"label,omitempty"`
	OldLabel string    `json:"old_label,omitempty"`
	Parent   Ref       `json:"parent,omitzero"`
	Position int       `json:"position"`
}

func (a Action) String() string {
	subject := fmt.Sprintf("%s(%s)", a.Type, a.Label)

	switch a.Kind {
	case Delete:
		return fmt.Sprintf("delete %s %s", a.Node, subject)
	case Insert:
		return fmt.Sprintf("insert %s %s into %s at %d", a.Node, subject, a.Parent, a.Position)
	case Move:
		return fmt.Sprintf("move %s %s into %s at %d", a.Node, subject, a.Parent, a.Position)
	case Update:
		return fmt.Sprintf("update %s %s(%s) to %q", a.Node, a.Type, a.OldLabel, a.Label)
	default:
		return a.Kind.String()
	}
}
