// Package block defines the typed content-block model used by the remote
// document service and the in-memory tree to manipulate it.
package block

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a content block.
type Kind string

const (
	KindPage        Kind = "page"
	KindText        Kind = "text"
	KindHeading1    Kind = "heading1"
	KindHeading2    Kind = "heading2"
	KindHeading3    Kind = "heading3"
	KindHeading4    Kind = "heading4"
	KindHeading5    Kind = "heading5"
	KindHeading6    Kind = "heading6"
	KindBullet      Kind = "bullet"
	KindOrdered     Kind = "ordered"
	KindQuote       Kind = "quote"
	KindCode        Kind = "code"
	KindTodo        Kind = "todo"
	KindEquation    Kind = "equation"
	KindImage       Kind = "image"
	KindTable       Kind = "table"
	KindTableRow    Kind = "table_row"
	KindTableCell   Kind = "table_cell"
	KindCallout     Kind = "callout"
	KindDivider     Kind = "divider"
	KindSyncedRef   Kind = "synced_reference"
	KindAITemplate  Kind = "ai_template"
	KindMindMap     Kind = "mind_map"
	KindDiagram     Kind = "diagram"
	KindView        Kind = "view"
	KindUndefined   Kind = "undefined"
	KindUnsupported Kind = "unsupported"
)

// Heading returns if the kind is one of the heading levels.
func (k Kind) Heading() bool {
	return strings.HasPrefix(string(k), "heading")
}

// List returns if the kind is a list item.
func (k Kind) List() bool {
	return k == KindBullet || k == KindOrdered || k == KindTodo
}

// TextRun is a fragment of rich text with optional styling.
type TextRun struct {
	Content string `json:"content"`
	Bold    bool   `json:"bold,omitempty"`
	Italic  bool   `json:"italic,omitempty"`
	Code    bool   `json:"inline_code,omitempty"`
	Link    string `json:"link,omitempty"`
}

// TextPayload carries the rich text runs of textual block kinds.
type TextPayload struct {
	Runs []TextRun `json:"elements"`
}

// Flatten concatenates all runs into a plain string.
func (p TextPayload) Flatten() string {
	var sb strings.Builder
	for _, run := range p.Runs {
		sb.WriteString(run.Content)
	}
	return sb.String()
}

// CodePayload carries the content of a code block.
type CodePayload struct {
	Language string    `json:"language,omitempty"`
	Runs     []TextRun `json:"elements"`
}

// ImagePayload carries the binding of an image block.
type ImagePayload struct {
	Token  string `json:"token,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// TablePayload carries the declared dimensions of a table block.
type TablePayload struct {
	RowSize    int `json:"row_size"`
	ColumnSize int `json:"column_size"`
}

// Cells returns the total cell count.
func (p TablePayload) Cells() int {
	return p.RowSize * p.ColumnSize
}

// CalloutPayload carries the styling of a callout block.
type CalloutPayload struct {
	BackgroundColor int       `json:"background_color,omitempty"`
	EmojiID         string    `json:"emoji_id,omitempty"`
	Runs            []TextRun `json:"elements,omitempty"`
}

// Block is one node in the remote document's content tree.
//
// ID is assigned by the remote service on creation and is empty before.
// Children holds ordered child ids; it must stay consistent with each
// child's ParentID.
type Block struct {
	ID       string
	ParentID string
	Children []string
	Kind     Kind

	// Exactly one payload is set, matching Kind.
	Text    *TextPayload
	Code    *CodePayload
	Image   *ImagePayload
	Table   *TablePayload
	Callout *CalloutPayload
}

// FlattenText returns the plain text carried by the block, whatever its kind.
func (b *Block) FlattenText() string {
	switch {
	case b.Text != nil:
		return b.Text.Flatten()
	case b.Code != nil:
		return TextPayload{Runs: b.Code.Runs}.Flatten()
	case b.Callout != nil:
		return TextPayload{Runs: b.Callout.Runs}.Flatten()
	default:
		return ""
	}
}

func (b *Block) String() string {
	return fmt.Sprintf("%s(%q)", b.Kind, b.FlattenText())
}

// NewTextBlock builds a plain text block from a raw string.
func NewTextBlock(content string) *Block {
	return &Block{
		Kind: KindText,
		Text: &TextPayload{Runs: []TextRun{{Content: content}}},
	}
}
