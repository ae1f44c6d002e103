package actions

// Script is an ordered edit script. It is a plain slice so any number of
// consumers can traverse it independently.
type Script []Action

// Summary counts the actions of each kind.
type Summary struct {
	Inserts int `json:"inserts"`
	Deletes int `json:"deletes"`
	Updates int `json:"updates"`
	Moves   int `json:"moves"`
}

// Total returns the number of actions.
func (s Summary) Total() int {
	return s.Inserts + s.Deletes + s.Updates + s.Moves
}

// Summarize counts the actions of s by kind.
func (s Script) Summarize() Summary {
	var out Summary

	for _, action := range s {
		switch action.Kind {
		case Insert:
			out.Inserts++
		case Delete:
			out.Deletes++
		case Update:
			out.Updates++
		case Move:
			out.Moves++
		}
	}

	return out
}

// Count returns the number of actions of the given kind.
func (s Script) Count(kind Kind) int {
	count := 0

	for _, action := range s {
		if action.Kind == kind {
			count++
		}
	}

	return count
}

// OfKind returns the actions of the given kind, in order.
func (s Script) OfKind(kind Kind) Script {
	var out Script

	for _, action := range s {
		if action.Kind == kind {
			out = append(out, action)
		}
	}

	return out
}
