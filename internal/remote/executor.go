package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/plan"
)

// Pacing applied between mutations. The service is eventually consistent:
// a mutation issued before the previous one settled can be applied against
// stale sibling indices.
const (
	RetryAttempts   = 3
	RetryBackoff    = 10 * time.Second
	InterBatchDelay = 500 * time.Millisecond
	CellDelay       = 300 * time.Millisecond
	InterTableDelay = 1000 * time.Millisecond
)

// Executor applies an insertion plan to a remote document, enforcing batch
// sizes, pacing, retries, and the delete queue. Delays and backoff are
// exported so the configuration (and tests) can override them.
type Executor struct {
	RetryBackoff    time.Duration
	InterBatchDelay time.Duration
	CellDelay       time.Duration
	InterTableDelay time.Duration

	api   API
	queue *DeleteQueue
}

func NewExecutor(api API) *Executor {
	return &Executor{
		RetryBackoff:    RetryBackoff,
		InterBatchDelay: InterBatchDelay,
		CellDelay:       CellDelay,
		InterTableDelay: InterTableDelay,
		api:             api,
		queue:           CurrentDeleteQueue(),
	}
}

// WithQueue overrides the delete queue (tests).
func (e *Executor) WithQueue(queue *DeleteQueue) *Executor {
	e.queue = queue
	return e
}

// Created pairs a planned block with the id the service assigned to it.
type Created struct {
	Block *block.Block
	ID    string
}

// Result reports what an ExecutePlan call actually created.
type Result struct {
	// TopLevel lists the created top-level blocks in creation order
	// (batches first, then tables).
	TopLevel []Created
	// FallbackTables counts the tables replaced by a placeholder text
	// block after both creation strategies failed.
	FallbackTables int
}

// ImageBlocks returns the created image blocks in creation order.
func (r *Result) ImageBlocks() []Created {
	var images []Created
	for _, created := range r.TopLevel {
		if created.Block.Kind == block.KindImage {
			images = append(images, created)
		}
	}
	return images
}

// ExecutePlan creates the planned blocks under the given parent, starting at
// startIndex. Batches are created first, tables after, each with its own
// pacing. Tables are attempted in a single nested call, then stepwise, and
// finally replaced by a placeholder text block so the rest of the document
// still uploads.
func (e *Executor) ExecutePlan(ctx context.Context, documentID, parentID string, startIndex int, p *plan.Plan) (*Result, error) {
	logger := core.CurrentLogger()
	result := &Result{}
	cursor := startIndex
	mutated := false

	for _, batch := range p.Batches {
		if mutated {
			if err := e.Settle(ctx, e.InterBatchDelay); err != nil {
				return result, err
			}
		}
		ids, err := e.createSubtrees(ctx, documentID, parentID, cursor, batch, p.Tree)
		if err != nil {
			return result, fmt.Errorf("unable to create batch of %d blocks: %w", len(batch), err)
		}
		for i, b := range batch {
			id := ""
			if i < len(ids) {
				id = ids[i]
			}
			result.TopLevel = append(result.TopLevel, Created{Block: b, ID: id})
		}
		cursor += len(batch)
		mutated = true
	}

	for _, table := range p.Tables {
		if mutated {
			if err := e.Settle(ctx, e.InterTableDelay); err != nil {
				return result, err
			}
		}
		id, err := e.createTable(ctx, documentID, parentID, cursor, table, p.Tree)
		if err != nil {
			logger.Warnf("Table creation failed, inserting placeholder: %v", err)
			id, err = e.createTableFallback(ctx, documentID, parentID, cursor, table, p.Tree)
			if err != nil {
				return result, fmt.Errorf("unable to create table placeholder: %w", err)
			}
			result.FallbackTables++
		}
		result.TopLevel = append(result.TopLevel, Created{Block: table, ID: id})
		cursor++
		mutated = true
	}

	return result, nil
}

// createSubtrees creates one batch of top-level blocks. A batch of leaves
// uses the plain bulk call; a batch carrying nested children uses the nested
// call with the planning ids as temporary relation ids.
func (e *Executor) createSubtrees(ctx context.Context, documentID, parentID string, index int, batch []*block.Block, tree *block.Tree) ([]string, error) {
	descendants := collectDescendants(tree, batch)
	if len(descendants) == 0 {
		shells := make([]*block.Block, 0, len(batch))
		for _, b := range batch {
			shells = append(shells, shellOf(b))
		}
		var ids []string
		err := e.retry(ctx, "bulk block creation", func(ctx context.Context) error {
			var err error
			ids, err = e.api.CreateBlocks(ctx, documentID, parentID, index, shells)
			return err
		})
		return ids, err
	}

	children := make([]*block.Block, 0, len(batch))
	for _, b := range batch {
		root := relationCopy(b)
		root.ParentID = ""
		children = append(children, root)
	}
	nested := make([]*block.Block, 0, len(descendants))
	for _, d := range descendants {
		nested = append(nested, relationCopy(d))
	}

	var ids []string
	err := e.retry(ctx, "nested block creation", func(ctx context.Context) error {
		var err error
		ids, err = e.api.CreateNestedBlocks(ctx, documentID, parentID, index, children, nested)
		return err
	})
	return ids, err
}

// createTable attempts the single-call strategy: the whole subtree (table,
// rows, cells, cell content) in one nested creation.
func (e *Executor) createTable(ctx context.Context, documentID, parentID string, index int, table *block.Block, tree *block.Tree) (string, error) {
	root := relationCopy(table)
	root.ParentID = ""
	descendants := collectDescendants(tree, []*block.Block{table})
	nested := make([]*block.Block, 0, len(descendants))
	for _, d := range descendants {
		nested = append(nested, relationCopy(d))
	}

	var ids []string
	err := e.retry(ctx, "table creation", func(ctx context.Context) error {
		var err error
		ids, err = e.api.CreateNestedBlocks(ctx, documentID, parentID, index, []*block.Block{root}, nested)
		return err
	})
	if err == nil && len(ids) == 1 {
		return ids[0], nil
	}
	if err == nil {
		err = fmt.Errorf("expected 1 created id, got %d", len(ids))
	}
	core.CurrentLogger().Debugf("Direct table creation failed, switching to stepwise: %v", err)
	return e.createTableStepwise(ctx, documentID, parentID, index, table, tree)
}

// createTableStepwise creates the table shell, then every row, cell, and
// cell content with its own call, pacing cells to stay under the write
// throttle. A failure deletes the partial table before giving up.
func (e *Executor) createTableStepwise(ctx context.Context, documentID, parentID string, index int, table *block.Block, tree *block.Tree) (string, error) {
	tableID, err := e.createOne(ctx, documentID, parentID, index, shellOf(table))
	if err != nil {
		return "", err
	}

	buildErr := func() error {
		for r, rowID := range table.Children {
			row, ok := tree.Get(rowID)
			if !ok {
				continue
			}
			remoteRowID, err := e.createOne(ctx, documentID, tableID, r, shellOf(row))
			if err != nil {
				return err
			}
			for c, cellID := range row.Children {
				cell, ok := tree.Get(cellID)
				if !ok {
					continue
				}
				remoteCellID, err := e.createOne(ctx, documentID, remoteRowID, c, shellOf(cell))
				if err != nil {
					return err
				}
				for i, contentID := range cell.Children {
					content, ok := tree.Get(contentID)
					if !ok {
						continue
					}
					if _, err := e.createOne(ctx, documentID, remoteCellID, i, shellOf(content)); err != nil {
						return err
					}
				}
				if err := e.Settle(ctx, e.CellDelay); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	if buildErr != nil {
		// Best effort: do not leave a half-built table in the document.
		if err := e.DeleteBlock(ctx, documentID, tableID, parentID, index); err != nil {
			core.CurrentLogger().Warnf("Unable to delete partial table %s: %v", tableID, err)
		}
		return "", buildErr
	}
	return tableID, nil
}

// createTableFallback replaces an uncreatable table with a text block
// carrying its flattened content.
func (e *Executor) createTableFallback(ctx context.Context, documentID, parentID string, index int, table *block.Block, tree *block.Tree) (string, error) {
	var rows []string
	for _, rowID := range table.Children {
		row, ok := tree.Get(rowID)
		if !ok {
			continue
		}
		var cells []string
		for _, cellID := range row.Children {
			cell, ok := tree.Get(cellID)
			if !ok {
				continue
			}
			var content []string
			for _, contentID := range cell.Children {
				if child, ok := tree.Get(contentID); ok {
					content = append(content, child.FlattenText())
				}
			}
			cells = append(cells, strings.Join(content, " "))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	fallback := block.NewTextBlock(strings.TrimSpace(strings.Join(rows, "\n")))
	if fallback.FlattenText() == "" {
		fallback = block.NewTextBlock("[table omitted]")
	}
	return e.createOne(ctx, documentID, parentID, index, fallback)
}

func (e *Executor) createOne(ctx context.Context, documentID, parentID string, index int, b *block.Block) (string, error) {
	var ids []string
	err := e.retry(ctx, fmt.Sprintf("%s block creation", b.Kind), func(ctx context.Context) error {
		var err error
		ids, err = e.api.CreateBlocks(ctx, documentID, parentID, index, []*block.Block{b})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("expected 1 created id, got %d", len(ids))
	}
	return ids[0], nil
}

// CreateNested creates a small subtree in one call, with retries.
func (e *Executor) CreateNested(ctx context.Context, documentID, parentID string, index int, children, descendants []*block.Block) ([]string, error) {
	roots := make([]*block.Block, 0, len(children))
	for _, b := range children {
		root := relationCopy(b)
		root.ParentID = ""
		roots = append(roots, root)
	}
	nested := make([]*block.Block, 0, len(descendants))
	for _, d := range descendants {
		nested = append(nested, relationCopy(d))
	}
	var ids []string
	err := e.retry(ctx, "nested block creation", func(ctx context.Context) error {
		var err error
		ids, err = e.api.CreateNestedBlocks(ctx, documentID, parentID, index, roots, nested)
		return err
	})
	return ids, err
}

// DeleteBlock deletes a single block through the process-wide delete queue.
func (e *Executor) DeleteBlock(ctx context.Context, documentID, blockID, parentID string, index int) error {
	return e.queue.Run(ctx, func(ctx context.Context) error {
		return e.retry(ctx, "block deletion", func(ctx context.Context) error {
			return e.api.DeleteBlock(ctx, documentID, blockID, parentID, index)
		})
	})
}

// DeleteRange deletes the sibling interval [startIndex, endIndex) through
// the process-wide delete queue.
func (e *Executor) DeleteRange(ctx context.Context, documentID, parentID string, startIndex, endIndex int) error {
	return e.queue.Run(ctx, func(ctx context.Context) error {
		return e.retry(ctx, "range deletion", func(ctx context.Context) error {
			return e.api.BatchDeleteBlocksByRange(ctx, documentID, parentID, startIndex, endIndex)
		})
	})
}

// ListBlocks fetches every block of a document, retrying transient failures.
func (e *Executor) ListBlocks(ctx context.Context, documentID string) ([]*block.Block, error) {
	var blocks []*block.Block
	err := e.retry(ctx, "block listing", func(ctx context.Context) error {
		var err error
		blocks, err = e.api.GetBlocksDetailed(ctx, documentID)
		return err
	})
	return blocks, err
}

// Settle waits out the service's consistency window, honoring cancellation.
func (e *Executor) Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry runs a call up to RetryAttempts times with a fixed backoff. Only
// transient failures are retried; business rejections surface immediately.
func (e *Executor) retry(ctx context.Context, label string, op func(ctx context.Context) error) error {
	logger := core.CurrentLogger()
	var err error
	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt < RetryAttempts {
			logger.Warnf("%s failed (attempt %d/%d), retrying in %s: %v",
				label, attempt, RetryAttempts, e.RetryBackoff, err)
			if werr := e.Settle(ctx, e.RetryBackoff); werr != nil {
				return werr
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, RetryAttempts, err)
}

// collectDescendants returns every block below the given roots, in tree
// insertion order, excluding the roots themselves.
func collectDescendants(tree *block.Tree, roots []*block.Block) []*block.Block {
	inSubtree := make(map[string]bool)
	var mark func(b *block.Block)
	mark = func(b *block.Block) {
		for _, childID := range b.Children {
			if child, ok := tree.Get(childID); ok && !inSubtree[childID] {
				inSubtree[childID] = true
				mark(child)
			}
		}
	}
	for _, root := range roots {
		mark(root)
	}

	var descendants []*block.Block
	for _, b := range tree.Blocks() {
		if b.ID != "" && inSubtree[b.ID] {
			descendants = append(descendants, b)
		}
	}
	return descendants
}

// shellOf copies a block without its relations, ready for creation.
func shellOf(b *block.Block) *block.Block {
	shell := *b
	shell.ID = ""
	shell.ParentID = ""
	shell.Children = nil
	return &shell
}

// relationCopy copies a block keeping its relations, assigning a temporary
// id when the block has none.
func relationCopy(b *block.Block) *block.Block {
	copied := *b
	if copied.ID == "" {
		copied.ID = "tmp_" + uuid.NewString()
	}
	return &copied
}
