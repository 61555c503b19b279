// Package callout rewrites quote blocks carrying an Obsidian callout marker
// (`> [!warning] ...`) into native callout blocks. The remote markdown
// conversion knows nothing about callouts and renders them as plain quotes,
// so the rewrite happens after upload, against the uploaded document.
package callout

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/remote"
)

// Style is the visual identity of a callout type.
type Style struct {
	BackgroundColor int
	EmojiID         string
}

// styles maps the callout types to their background color and emoji.
// Aliases share the style of their canonical type.
var styles = map[string]Style{
	"note":      {BackgroundColor: 1, EmojiID: "memo"},
	"abstract":  {BackgroundColor: 5, EmojiID: "clipboard"},
	"summary":   {BackgroundColor: 5, EmojiID: "clipboard"},
	"tldr":      {BackgroundColor: 5, EmojiID: "clipboard"},
	"info":      {BackgroundColor: 1, EmojiID: "information_source"},
	"todo":      {BackgroundColor: 1, EmojiID: "ballot_box_with_check"},
	"tip":       {BackgroundColor: 5, EmojiID: "bulb"},
	"hint":      {BackgroundColor: 5, EmojiID: "bulb"},
	"important": {BackgroundColor: 5, EmojiID: "bulb"},
	"success":   {BackgroundColor: 4, EmojiID: "white_check_mark"},
	"check":     {BackgroundColor: 4, EmojiID: "white_check_mark"},
	"done":      {BackgroundColor: 4, EmojiID: "white_check_mark"},
	"question":  {BackgroundColor: 2, EmojiID: "question"},
	"help":      {BackgroundColor: 2, EmojiID: "question"},
	"faq":       {BackgroundColor: 2, EmojiID: "question"},
	"warning":   {BackgroundColor: 2, EmojiID: "warning"},
	"caution":   {BackgroundColor: 2, EmojiID: "warning"},
	"attention": {BackgroundColor: 2, EmojiID: "warning"},
	"failure":   {BackgroundColor: 3, EmojiID: "x"},
	"fail":      {BackgroundColor: 3, EmojiID: "x"},
	"missing":   {BackgroundColor: 3, EmojiID: "x"},
	"danger":    {BackgroundColor: 3, EmojiID: "zap"},
	"error":     {BackgroundColor: 3, EmojiID: "zap"},
	"bug":       {BackgroundColor: 3, EmojiID: "bug"},
	"example":   {BackgroundColor: 6, EmojiID: "books"},
	"quote":     {BackgroundColor: 7, EmojiID: "speech_balloon"},
	"cite":      {BackgroundColor: 7, EmojiID: "speech_balloon"},
}

// StyleFor returns the style of a callout type, falling back on the note
// style for unknown types.
func StyleFor(calloutType string) Style {
	if style, ok := styles[strings.ToLower(calloutType)]; ok {
		return style
	}
	return styles["note"]
}

// The marker opening a callout: `[!type]`, optionally foldable (`+`/`-`).
var regexMarker = regexp.MustCompile(`(?i)^\s*\[!([a-z]+)\][+-]?[ \t]*`)

// Marker extracts the callout type from a quote's text, and the text with
// the marker stripped. Returns ok=false when the quote is a plain quote.
func Marker(text string) (calloutType, remainder string, ok bool) {
	match := regexMarker.FindStringSubmatch(text)
	if match == nil {
		return "", "", false
	}
	remainder = strings.TrimSpace(strings.TrimPrefix(text, match[0]))
	return strings.ToLower(match[1]), remainder, true
}

// SettleDelay is the wait between deleting a quote and recreating it as a
// callout. Recreating at the same index before the deletion settled makes
// the service occasionally reorder siblings.
const SettleDelay = 500 * time.Millisecond

// Transcoder rewrites marked quote blocks in place.
type Transcoder struct {
	SettleDelay time.Duration

	executor *remote.Executor
}

func NewTranscoder(executor *remote.Executor) *Transcoder {
	return &Transcoder{
		SettleDelay: SettleDelay,
		executor:    executor,
	}
}

// Transcode fetches the document's blocks and rewrites every quote carrying
// a marker as a callout at the same position, wherever the quote sits in the
// tree. The marker may open the quote's own text or a descendant text block.
// A failed rewrite is logged and skipped; the rest of the document is not
// affected. Returns the number of rewritten blocks.
func (t *Transcoder) Transcode(ctx context.Context, documentID, rootID string) (int, error) {
	logger := core.CurrentLogger()

	blocks, err := t.executor.ListBlocks(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("unable to list blocks of document %s: %w", documentID, err)
	}
	tree := block.NewTree(blocks)

	rewritten := 0
	consumed := make(map[string]bool)
	for _, b := range blocks {
		if b.Kind != block.KindQuote || consumed[b.ID] {
			continue
		}
		calloutType, remainder, ok := Marker(flattenSubtree(tree, b))
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rewritten, err
		}

		// Deleting the quote deletes its descendants with it
		markSubtree(tree, b, consumed)

		parentID, index := position(tree, b, rootID)
		if index < 0 {
			logger.Warnf("Unable to locate quote %s under its parent, skipping", b.ID)
			continue
		}
		if err := t.transcodeOne(ctx, documentID, parentID, index, b.ID, calloutType, remainder); err != nil {
			logger.Warnf("Unable to rewrite callout [!%s] at index %d: %v", calloutType, index, err)
			continue
		}
		rewritten++
	}
	return rewritten, nil
}

// flattenSubtree concatenates the text of a block and its descendants in
// document order, skipping blank fragments.
func flattenSubtree(tree *block.Tree, b *block.Block) string {
	var parts []string
	if txt := b.FlattenText(); strings.TrimSpace(txt) != "" {
		parts = append(parts, txt)
	}
	for _, childID := range b.Children {
		if child, ok := tree.Get(childID); ok {
			if txt := flattenSubtree(tree, child); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func markSubtree(tree *block.Tree, b *block.Block, consumed map[string]bool) {
	consumed[b.ID] = true
	for _, childID := range b.Children {
		if child, ok := tree.Get(childID); ok {
			markSubtree(tree, child, consumed)
		}
	}
}

// position locates a block inside its parent's child list. Blocks without a
// recorded parent sit under the document root.
func position(tree *block.Tree, b *block.Block, rootID string) (string, int) {
	parentID := b.ParentID
	if parentID == "" {
		parentID = rootID
	}
	if parent, ok := tree.Get(parentID); ok {
		for i, childID := range parent.Children {
			if childID == b.ID {
				return parentID, i
			}
		}
	}
	// Fall back on sibling order when the parent's child list is absent
	index := 0
	for _, sibling := range tree.Blocks() {
		if sibling.ID == b.ID {
			return parentID, index
		}
		if sibling.ParentID == b.ParentID {
			index++
		}
	}
	return parentID, -1
}

func (t *Transcoder) transcodeOne(ctx context.Context, documentID, parentID string, index int, blockID string, calloutType, remainder string) error {
	if err := t.executor.DeleteBlock(ctx, documentID, blockID, parentID, index); err != nil {
		return err
	}
	if err := t.executor.Settle(ctx, t.SettleDelay); err != nil {
		return err
	}

	style := StyleFor(calloutType)
	content := remainder
	if content == "" {
		content = strings.ToUpper(calloutType[:1]) + calloutType[1:]
	}
	inner := block.NewTextBlock(content)
	inner.ID = "tmp_callout_text"
	callout := &block.Block{
		ID:       "tmp_callout",
		Kind:     block.KindCallout,
		Children: []string{inner.ID},
		Callout: &block.CalloutPayload{
			BackgroundColor: style.BackgroundColor,
			EmojiID:         style.EmojiID,
		},
	}
	inner.ParentID = callout.ID

	_, err := t.executor.CreateNested(ctx, documentID, parentID, index,
		[]*block.Block{callout}, []*block.Block{inner})
	return err
}
