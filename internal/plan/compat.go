package plan

import (
	"github.com/mdbridge/mdbridge/internal/block"
	"golang.org/x/exp/slices"
)

// Uncreatable lists block kinds the remote API never accepts as creation
// input. Blocks of these kinds are dropped with a warning, subtree included.
var Uncreatable = []block.Kind{
	block.KindSyncedRef,
	block.KindAITemplate,
	block.KindMindMap,
	block.KindPage,
	block.KindView,
	block.KindDiagram,
	block.KindUndefined,
}

// creatableLeaves are the kinds accepted inside most container blocks.
var creatableLeaves = []block.Kind{
	block.KindText,
	block.KindHeading1,
	block.KindHeading2,
	block.KindHeading3,
	block.KindHeading4,
	block.KindHeading5,
	block.KindHeading6,
	block.KindBullet,
	block.KindOrdered,
	block.KindTodo,
	block.KindQuote,
	block.KindCode,
	block.KindEquation,
	block.KindImage,
	block.KindDivider,
}

// allowedChildren is the fixed parent-to-children type compatibility table
// of the remote service. A block whose parent kind does not permit its own
// kind is dropped, never reparented: silently reparenting risks producing a
// structurally invalid remote document.
var allowedChildren = map[block.Kind][]block.Kind{
	// The document root accepts every creatable kind
	"": append([]block.Kind{block.KindTable, block.KindCallout}, creatableLeaves...),

	block.KindCallout: {
		block.KindText,
		block.KindHeading1,
		block.KindHeading2,
		block.KindHeading3,
		block.KindHeading4,
		block.KindHeading5,
		block.KindHeading6,
		block.KindBullet,
		block.KindOrdered,
		block.KindTodo,
		block.KindQuote,
		block.KindCode,
		block.KindEquation,
		// no nested callouts, no tables
	},
	block.KindTable:     {block.KindTableRow},
	block.KindTableRow:  {block.KindTableCell},
	block.KindTableCell: {block.KindText, block.KindEquation},
	block.KindBullet:    append([]block.Kind{}, creatableLeaves...),
	block.KindOrdered:   append([]block.Kind{}, creatableLeaves...),
	block.KindTodo:      append([]block.Kind{}, creatableLeaves...),
	block.KindQuote:     {block.KindText},
}

// IsUncreatable returns if the remote API refuses to create this kind.
func IsUncreatable(k block.Kind) bool {
	return slices.Contains(Uncreatable, k)
}

// Compatible returns if a child kind may nest under a parent kind.
func Compatible(parent, child block.Kind) bool {
	allowed, ok := allowedChildren[parent]
	if !ok {
		// Kinds absent from the table accept no children
		return false
	}
	return slices.Contains(allowed, child)
}
