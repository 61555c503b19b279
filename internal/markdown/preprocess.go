package markdown

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mdbridge/mdbridge/pkg/text"
)

// Preprocess normalizes a note before it is submitted to the block
// conversion endpoint. HTML comments and redundant blank lines are noise the
// conversion would otherwise turn into empty blocks.
func Preprocess() []Transformer {
	return []Transformer{
		StripHTMLComments(),
		SquashBlankLines(),
		ExpandEmbeddedWikilinks(),
		SeparateAdjacentParagraphs(),
	}
}

// ExpandEmbeddedWikilinks converts embedded wikilink images (![[photo.png]]
// or ![[photo.png|A caption]]) into standard Markdown image syntax,
// URL-encoding the path segment.
func ExpandEmbeddedWikilinks() Transformer {
	return func(document Document) (Document, error) {
		txt := string(document)

		embedded := document.EmbeddedWikilinks()
		// Substitute in descending position order so earlier replacements
		// never invalidate the offsets of later ones.
		for i := len(embedded) - 1; i >= 0; i-- {
			w := embedded[i]
			raw := "!" + w.Raw()
			if !strings.HasPrefix(txt[w.Position:], raw) {
				continue
			}
			alt := w.Text
			if alt == "" {
				alt = w.Link
			}
			replacement := fmt.Sprintf("![%s](%s)", alt, url.PathEscape(w.Link))
			txt = txt[:w.Position] + replacement + txt[w.Position+len(raw):]
		}

		return Document(txt), nil
	}
}

// SeparateAdjacentParagraphs inserts one blank line between two consecutive
// plain-text lines. The block conversion endpoint merges adjacent paragraphs
// into a single block otherwise, which makes structural matching ambiguous.
//
// The transformation is idempotent: it checks adjacency, not cumulative state.
func SeparateAdjacentParagraphs() Transformer {
	return func(document Document) (Document, error) {
		var newLines []string

		lines := document.Lines()
		insideCodeBlock := false
		for i, line := range lines {
			newLines = append(newLines, line)

			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				insideCodeBlock = !insideCodeBlock
				continue
			}
			if insideCodeBlock || i == len(lines)-1 {
				continue
			}
			if IsPlainTextLine(line) && IsPlainTextLine(lines[i+1]) {
				newLines = append(newLines, "")
			}
		}

		return Document(strings.Join(newLines, "\n")), nil
	}
}

// IsPlainTextLine returns if a line is an ordinary paragraph line:
// not blank, not a heading, list item, quote, code fence, table row,
// image, link-only line, or horizontal rule.
func IsPlainTextLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if text.IsBlank(trimmed) {
		return false
	}
	if ok, _, _ := IsHeading(trimmed); ok {
		return false
	}
	if isListItem(trimmed) || isQuote(trimmed) {
		return false
	}
	if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(line, "    ") {
		return false
	}
	if isTableRow(trimmed) || isHorizontalRule(trimmed) {
		return false
	}
	if isImageLine(trimmed) || isLinkOnlyLine(trimmed) {
		return false
	}
	return true
}
