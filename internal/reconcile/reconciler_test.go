package reconcile_test

import (
	"testing"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textBlock(kind block.Kind, content string) *block.Block {
	return &block.Block{
		Kind: kind,
		Text: &block.TextPayload{Runs: []block.TextRun{{Content: content}}},
	}
}

func TestReconcileRestoresSourceOrder(t *testing.T) {
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementHeading1, Preview: "A"},
		{Kind: markdown.ElementBullet, Preview: "x"},
		{Kind: markdown.ElementBullet, Preview: "y"},
	}
	blocks := []*block.Block{
		textBlock(block.KindBullet, "y"),
		textBlock(block.KindHeading1, "A"),
		textBlock(block.KindBullet, "x"),
	}

	ordered, assignments := reconcile.Reconcile(elements, blocks)

	require.Len(t, ordered, 3)
	assert.Equal(t, "A", ordered[0].FlattenText())
	assert.Equal(t, "x", ordered[1].FlattenText())
	assert.Equal(t, "y", ordered[2].FlattenText())
	assert.Len(t, assignments, 3)
}

func TestReconcileIdempotenceOnUneditedContent(t *testing.T) {
	md := markdown.Document("# Title\n\nFirst paragraph\n\n- item one\n- item two\n\n> a quote")
	elements := md.ParseStructure()

	// Blocks already in source order, content for content
	blocks := []*block.Block{
		textBlock(block.KindHeading1, "Title"),
		textBlock(block.KindText, "First paragraph"),
		textBlock(block.KindBullet, "item one"),
		textBlock(block.KindBullet, "item two"),
		textBlock(block.KindQuote, "a quote"),
	}

	ordered, assignments := reconcile.Reconcile(elements, blocks)

	require.Len(t, ordered, len(blocks))
	for i := range blocks {
		assert.Same(t, blocks[i], ordered[i])
	}
	require.Len(t, assignments, len(blocks))
	for _, assignment := range assignments {
		assert.GreaterOrEqual(t, assignment.Score, 0.9)
	}
}

func TestReconcileNeverDropsBlocks(t *testing.T) {
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementText, Preview: "known text"},
	}
	blocks := []*block.Block{
		textBlock(block.KindText, "completely unrelated"),
		textBlock(block.KindText, "known text"),
		textBlock(block.KindTable, ""),
		textBlock(block.KindQuote, "stray quote"),
	}

	ordered, _ := reconcile.Reconcile(elements, blocks)

	require.Len(t, ordered, len(blocks), "reconciliation only reorders, never drops")
	assert.Equal(t, "known text", ordered[0].FlattenText())
	// Unmatched blocks keep their original relative order
	assert.Equal(t, "completely unrelated", ordered[1].FlattenText())
	assert.Equal(t, block.KindTable, ordered[2].Kind)
	assert.Equal(t, "stray quote", ordered[3].FlattenText())
}

func TestReconcileIsDeterministic(t *testing.T) {
	elements := markdown.Document("# A\n\ntext one\n\ntext two\n\n- x\n- y").ParseStructure()
	blocks := []*block.Block{
		textBlock(block.KindBullet, "y"),
		textBlock(block.KindText, "text two"),
		textBlock(block.KindHeading1, "A"),
		textBlock(block.KindBullet, "x"),
		textBlock(block.KindText, "text one"),
	}

	first, _ := reconcile.Reconcile(elements, blocks)
	second, _ := reconcile.Reconcile(elements, blocks)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestReconcileToleratesLocalEdits(t *testing.T) {
	// The source was edited after conversion: one word changed
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementText, Preview: "the quick brown fox jumps"},
	}
	blocks := []*block.Block{
		textBlock(block.KindText, "the quick brown fox runs"),
	}

	_, assignments := reconcile.Reconcile(elements, blocks)

	require.Len(t, assignments, 1)
	assert.GreaterOrEqual(t, assignments[0].Score, reconcile.AcceptThreshold)
}

func TestReconcileSkipsEmptyElements(t *testing.T) {
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementImage, Preview: ""},
		{Kind: markdown.ElementText, Preview: "hello world"},
	}
	blocks := []*block.Block{
		textBlock(block.KindText, "hello world"),
		{Kind: block.KindImage, Image: &block.ImagePayload{}},
	}

	ordered, assignments := reconcile.Reconcile(elements, blocks)

	// The empty-content image element is skipped; its block trails
	require.Len(t, assignments, 1)
	assert.Equal(t, "hello world", ordered[0].FlattenText())
	assert.Equal(t, block.KindImage, ordered[1].Kind)
}

func TestReconcileCalloutRenderedAsQuote(t *testing.T) {
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementQuote, Preview: "[!warning] be careful out there"},
	}
	blocks := []*block.Block{
		textBlock(block.KindCallout, "[!warning] be careful out there"),
	}

	_, assignments := reconcile.Reconcile(elements, blocks)

	require.Len(t, assignments, 1, "a callout block must match its quote element")
	assert.GreaterOrEqual(t, assignments[0].Score, reconcile.AcceptThreshold)
}

func TestReconcileRefusesLowConfidenceMatches(t *testing.T) {
	elements := []markdown.StructuralElement{
		{Kind: markdown.ElementHeading1, Preview: "totally different"},
	}
	blocks := []*block.Block{
		textBlock(block.KindText, "nothing in common"),
	}

	ordered, assignments := reconcile.Reconcile(elements, blocks)

	assert.Empty(t, assignments)
	require.Len(t, ordered, 1)
}
