// Package reconcile reorders the block list returned by the conversion
// endpoint so that it matches the source document structure again. The
// endpoint gives no ordering guarantee relative to the source for all
// constructs (tables, callouts rendered as quotes, multi-line list items),
// and a pure index-based reorder would misplace edited content, so blocks
// are matched to the parsed source structure by similarity scoring.
package reconcile

import (
	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/markdown"
)

// MatchAssignment pairs one structural element with one block.
type MatchAssignment struct {
	Element markdown.StructuralElement
	Block   *block.Block
	Score   float64
}

// Reconcile returns the input blocks reordered to follow the structural
// element sequence, to the extent recoverable. Matching is greedy, not a
// globally-optimal assignment: each element takes the highest-scoring
// still-unused block, ties broken by first encountered. Elements without a
// candidate reaching the acceptance threshold stay unmatched; the gap is
// tolerated. Unused blocks are appended at the end in their original
// relative order, so no block is ever dropped.
func Reconcile(elements []markdown.StructuralElement, blocks []*block.Block) ([]*block.Block, []MatchAssignment) {
	used := make([]bool, len(blocks))
	var ordered []*block.Block
	var assignments []MatchAssignment

	for _, elem := range elements {
		bestIndex := -1
		bestScore := 0.0
		for i, b := range blocks {
			if used[i] {
				continue
			}
			score := Score(elem, b)
			if score > bestScore {
				bestScore = score
				bestIndex = i
			}
		}
		if bestIndex == -1 || bestScore < AcceptThreshold {
			continue
		}
		used[bestIndex] = true
		ordered = append(ordered, blocks[bestIndex])
		assignments = append(assignments, MatchAssignment{
			Element: elem,
			Block:   blocks[bestIndex],
			Score:   bestScore,
		})
	}

	for i, b := range blocks {
		if !used[i] {
			ordered = append(ordered, b)
		}
	}

	return ordered, assignments
}
