// Package plan turns a reconciled block tree into an executable insertion
// plan: uncreatable kinds filtered out, parent/child compatibility enforced,
// non-table blocks chunked into API-sized batches, and tables separated for
// stepwise creation.
package plan

import (
	"fmt"
	"math"

	"github.com/jinzhu/copier"
	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/core"
)

const (
	// BatchSize is the maximum number of sibling blocks per bulk-create call.
	BatchSize = 50

	// MaxTableCells bounds row_size*column_size on a single table.
	MaxTableCells = 2000

	// MaxTableDimension bounds each table dimension individually.
	MaxTableDimension = 99
)

// Plan is the result of planning one reconciled tree for insertion.
type Plan struct {
	// Tree is a pruned deep copy of the input; planning never mutates the
	// reconciled tree it was given.
	Tree *block.Tree
	// Rejected lists the blocks dropped as uncreatable or incompatible.
	Rejected []*block.Block
	// Batches holds the top-level non-table blocks in creation order,
	// chunked into batches of at most BatchSize.
	Batches [][]*block.Block
	// Tables holds the top-level table blocks, dimensions validated.
	Tables []*block.Block
}

// Build computes the insertion plan for a reconciled tree. A batchSize of
// zero falls back on BatchSize; larger values are clamped to it, as the
// service rejects bigger batches.
func Build(tree *block.Tree, batchSize int) (*Plan, error) {
	logger := core.CurrentLogger()
	if batchSize <= 0 || batchSize > BatchSize {
		batchSize = BatchSize
	}

	var copied []*block.Block
	if err := copier.CopyWithOption(&copied, tree.Blocks(), copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("unable to copy block tree: %w", err)
	}
	working := block.NewTree(copied)

	result := &Plan{Tree: working}

	rejected := make(map[*block.Block]bool)
	for _, b := range working.Blocks() {
		if rejected[b] {
			continue
		}
		if reason := rejectionReason(working, b); reason != "" {
			logger.Warnf("Dropping block %s: %s", b, reason)
			markRejected(working, b, rejected)
		}
	}

	var survivors []*block.Block
	for _, b := range working.Blocks() {
		if rejected[b] {
			result.Rejected = append(result.Rejected, b)
			continue
		}
		survivors = append(survivors, b)

		// Prune references to dropped children
		var kept []string
		for _, childID := range b.Children {
			if child, ok := working.Get(childID); ok && !rejected[child] {
				kept = append(kept, childID)
			}
		}
		b.Children = kept
	}

	var currentBatch []*block.Block
	for _, b := range survivors {
		if b.ParentID != "" {
			// Nested blocks travel with their top-level ancestor
			continue
		}
		if b.Kind == block.KindTable {
			if err := ValidateTable(b); err != nil {
				logger.Warnf("Invalid table block: %v", err)
			}
			result.Tables = append(result.Tables, b)
			continue
		}
		currentBatch = append(currentBatch, b)
		if len(currentBatch) == batchSize {
			result.Batches = append(result.Batches, currentBatch)
			currentBatch = nil
		}
	}
	if len(currentBatch) > 0 {
		result.Batches = append(result.Batches, currentBatch)
	}

	return result, nil
}

// rejectionReason decides if a block must be dropped, and why.
func rejectionReason(tree *block.Tree, b *block.Block) string {
	if IsUncreatable(b.Kind) {
		return fmt.Sprintf("kind %q cannot be created through the API", b.Kind)
	}
	parentKind := block.Kind("")
	if b.ParentID != "" {
		if parent, ok := tree.Get(b.ParentID); ok {
			parentKind = parent.Kind
		}
	}
	if !Compatible(parentKind, b.Kind) {
		return fmt.Sprintf("kind %q is not permitted under %q", b.Kind, parentKind)
	}
	return ""
}

// markRejected flags a block and its whole subtree as rejected.
func markRejected(tree *block.Tree, b *block.Block, rejected map[*block.Block]bool) {
	rejected[b] = true
	for _, childID := range b.Children {
		if child, ok := tree.Get(childID); ok && !rejected[child] {
			markRejected(tree, child, rejected)
		}
	}
}

// ValidateTable normalizes the declared dimensions of a table block.
// Dimensions are forced into [1, MaxTableDimension]; when the total cell
// count exceeds MaxTableCells, both dimensions shrink proportionally by the
// square root of the overflow ratio, which approximately preserves the
// row/column ratio.
func ValidateTable(b *block.Block) error {
	if b.Kind != block.KindTable {
		return fmt.Errorf("not a table block: %s", b.Kind)
	}
	if b.Table == nil {
		b.Table = &block.TablePayload{RowSize: 1, ColumnSize: 1}
		return fmt.Errorf("table without dimensions, defaulting to 1x1")
	}

	payload := b.Table
	if payload.RowSize < 1 {
		payload.RowSize = 1
	}
	if payload.ColumnSize < 1 {
		payload.ColumnSize = 1
	}
	if payload.RowSize > MaxTableDimension {
		payload.RowSize = MaxTableDimension
	}
	if payload.ColumnSize > MaxTableDimension {
		payload.ColumnSize = MaxTableDimension
	}

	if payload.Cells() > MaxTableCells {
		factor := math.Sqrt(float64(payload.Cells()) / float64(MaxTableCells))
		payload.RowSize = maxInt(1, int(float64(payload.RowSize)/factor))
		payload.ColumnSize = maxInt(1, int(float64(payload.ColumnSize)/factor))
	}

	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
