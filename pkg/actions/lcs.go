package actions

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	surrogateStart = 0xD800
	surrogateSize  = 0x800
)

// symbol maps a sequence index to a rune outside the surrogate range, so that
// any index sequence can be diffed as text.
func symbol(idx int) rune {
	r := rune(idx + 1)
	if r >= surrogateStart {
		r += surrogateSize
	}

	return r
}

// lcsKeep returns, for a sequence left of distinct elements and a permutation
// right of the same elements given as indices into left, which indices of
// left belong to a longest common subsequence of the two orders.
func lcsKeep(left int, right []int) []bool {
	keep := make([]bool, left)
	if left == 0 {
		return keep
	}

	text1 := make([]rune, left)
	for idx := range left {
		text1[idx] = symbol(idx)
	}

	index := make(map[rune]int, left)
	text2 := make([]rune, len(right))

	for pos, idx := range right {
		text2[pos] = symbol(idx)
		index[text2[pos]] = idx
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	for _, d := range dmp.DiffMainRunes(text1, text2, false) {
		if d.Type != diffmatchpatch.DiffEqual {
			continue
		}

		for _, r := range d.Text {
			keep[index[r]] = true
		}
	}

	return keep
}
