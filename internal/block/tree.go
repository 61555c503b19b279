package block

import "golang.org/x/exp/slices"

// Tree is an arena of blocks indexed by id, preserving insertion order.
// Parent/child relations are id-based, never embedded object graphs, so
// structural invariants can be validated and repaired in place.
type Tree struct {
	blocks []*Block
	byID   map[string]*Block
}

// NewTree indexes an ordered block list.
func NewTree(blocks []*Block) *Tree {
	tree := &Tree{
		byID: make(map[string]*Block, len(blocks)),
	}
	for _, b := range blocks {
		tree.blocks = append(tree.blocks, b)
		if b.ID != "" {
			tree.byID[b.ID] = b
		}
	}
	return tree
}

// Blocks returns the blocks in insertion order.
func (t *Tree) Blocks() []*Block {
	return t.blocks
}

// Get returns the block with the given id.
func (t *Tree) Get(id string) (*Block, bool) {
	b, ok := t.byID[id]
	return b, ok
}

// Len returns the number of blocks in the tree.
func (t *Tree) Len() int {
	return len(t.blocks)
}

// Roots returns the blocks without a parent, in insertion order.
func (t *Tree) Roots() []*Block {
	var roots []*Block
	for _, b := range t.blocks {
		if b.ParentID == "" {
			roots = append(roots, b)
		}
	}
	return roots
}

// ValidateRelations repairs the parent/child relations of the tree:
//
//   - a ParentID referencing a missing block is cleared (the block becomes
//     top-level);
//   - a children entry referencing a missing block, or a block whose
//     ParentID disagrees, is removed;
//   - duplicated children entries are deduplicated;
//   - a block whose parent exists but does not list it is appended to the
//     parent's children.
//
// It returns the number of repairs performed. After it returns, every block
// with a non-empty ParentID appears in that parent's Children exactly once,
// and no relation references a nonexistent block.
func (t *Tree) ValidateRelations() int {
	repairs := 0

	for _, b := range t.blocks {
		if b.ParentID == "" {
			continue
		}
		if _, ok := t.byID[b.ParentID]; !ok {
			b.ParentID = ""
			repairs++
		}
	}

	for _, parent := range t.blocks {
		if len(parent.Children) == 0 {
			continue
		}
		seen := make(map[string]bool, len(parent.Children))
		var kept []string
		for _, childID := range parent.Children {
			child, ok := t.byID[childID]
			if !ok || child.ParentID != parent.ID || seen[childID] {
				repairs++
				continue
			}
			seen[childID] = true
			kept = append(kept, childID)
		}
		parent.Children = kept
	}

	for _, b := range t.blocks {
		if b.ParentID == "" || b.ID == "" {
			continue
		}
		parent := t.byID[b.ParentID]
		if !slices.Contains(parent.Children, b.ID) {
			parent.Children = append(parent.Children, b.ID)
			repairs++
		}
	}

	return repairs
}
