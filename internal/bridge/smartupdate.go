package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/remote"
)

// SmartUpdateState is the progress of one smart-update attempt.
type SmartUpdateState string

const (
	StateIdle       SmartUpdateState = "idle"
	StateLocating   SmartUpdateState = "locating"
	StateValidating SmartUpdateState = "validating"
	StateClearing   SmartUpdateState = "clearing"
	StateRebuilding SmartUpdateState = "rebuilding"
	StateDone       SmartUpdateState = "done"
	StateFailed     SmartUpdateState = "failed"
)

// ContainsTable reports if the markdown carries a table-like line: a
// `|`-delimited line with at least 3 cells outside fenced code blocks.
func ContainsTable(body markdown.Document) bool {
	inFence := false
	for _, line := range body.Lines() {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.Contains(trimmed, "|") {
			continue
		}
		cells := 0
		for _, cell := range strings.Split(trimmed, "|") {
			if strings.TrimSpace(cell) != "" {
				cells++
			}
		}
		if cells >= 3 {
			return true
		}
	}
	return false
}

// ShouldUseSmartUpdate decides if a note can update its previous document
// in place. Tables disqualify the note whatever the history says: they are
// too fragile under the clear-and-reinsert path.
func ShouldUseSmartUpdate(history *History, title string, body markdown.Document) bool {
	if ContainsTable(body) {
		return false
	}
	return history.FindPrimary(title) != nil
}

// RebuildFunc repopulates an emptied document with the note's content.
type RebuildFunc func(ctx context.Context, document *remote.Document) error

// SmartUpdater replaces the content of a previously uploaded document
// instead of creating a duplicate.
type SmartUpdater struct {
	State SmartUpdateState

	api      remote.API
	executor *remote.Executor
}

func NewSmartUpdater(api remote.API, executor *remote.Executor) *SmartUpdater {
	return &SmartUpdater{
		State:    StateIdle,
		api:      api,
		executor: executor,
	}
}

// Run locates the previous document, validates it is still accessible,
// clears its children with one ranged delete, and rebuilds it. Returns
// (nil, nil) when smart update is not applicable, leaving the caller to
// create a new document. Once clearing started, a failure is final: no
// automatic fallback to creation, which would duplicate the document after
// a partial content loss.
func (u *SmartUpdater) Run(ctx context.Context, history *History, title string, body markdown.Document, rebuild RebuildFunc) (*remote.Document, error) {
	logger := core.CurrentLogger()

	if ContainsTable(body) {
		logger.Debugf("Note %q contains a table, falling back to plain creation", title)
		return nil, nil
	}

	u.State = StateLocating
	record := history.FindPrimary(title)
	if record == nil {
		u.State = StateIdle
		return nil, nil
	}

	u.State = StateValidating
	document, err := u.api.GetDocument(ctx, record.Token)
	if err != nil {
		u.State = StateFailed
		return nil, fmt.Errorf("previous document for %q is no longer accessible: %w", title, err)
	}

	u.State = StateClearing
	blocks, err := u.api.GetBlocksDetailed(ctx, document.ID)
	if err != nil {
		u.State = StateFailed
		return nil, fmt.Errorf("unable to list blocks of document %q: %w", title, err)
	}
	childCount := rootChildCount(blocks, document.RootBlockID)
	if childCount > 0 {
		logger.Infof("Clearing %d blocks from document %q", childCount, title)
		if err := u.executor.DeleteRange(ctx, document.ID, document.RootBlockID, 0, childCount); err != nil {
			u.State = StateFailed
			return nil, fmt.Errorf("unable to clear document %q, it may be partially emptied: %w", title, err)
		}
	}

	u.State = StateRebuilding
	if err := rebuild(ctx, document); err != nil {
		u.State = StateFailed
		return nil, fmt.Errorf("unable to rebuild document %q, it may be incomplete: %w", title, err)
	}

	u.State = StateDone
	return document, nil
}

// rootChildCount counts the direct children of the document root, from the
// root's children list when listed, from parent ids otherwise.
func rootChildCount(blocks []*block.Block, rootID string) int {
	for _, b := range blocks {
		if b.ID == rootID {
			return len(b.Children)
		}
	}
	count := 0
	for _, b := range blocks {
		if b.ParentID == rootID {
			count++
		}
	}
	return count
}
