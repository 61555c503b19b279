package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

// Regex to match wikilinks. Titles may contain any character except
// brackets, pipes, and fragment markers.
const regexWikilinkRaw = `\[\[([^\[\]|#]*?)(#[^\[\]|]*?)?(?:\|([^\[\]]*?))?\]\]`

var regexWikilink = regexp.MustCompile(`(?:^|[^!])` + regexWikilinkRaw) // Golang doesn't support negative lookbehind
var regexEmbeddedWikilink = regexp.MustCompile(`!` + regexWikilinkRaw)

// Wikilink is an internal link to another note.
// See https://en.wikipedia.org/wiki/Help:Link
type Wikilink struct {
	// Link is the target note (without the optional fragment).
	Link string
	// Section is the optional fragment (without the leading '#').
	Section string
	// Text is the optional alias.
	Text string
	// Line is the 1-based line of the wikilink inside the document.
	Line int
	// Position is the 0-based character offset of the opening brackets.
	Position int
}

// MatchWikilink tests if a text contains a wikilink.
func MatchWikilink(txt string) bool {
	return regexWikilink.FindStringSubmatch(txt) != nil
}

// Anchored indicates if a link points to a section in the current file. (ex: [[#A section below]])
func (w *Wikilink) Anchored() bool {
	return w.Link == "" && w.Section != ""
}

// Piped indicates if a text is present to describe the link. (ex: [[link|A text]])
func (w *Wikilink) Piped() bool {
	return w.Text != ""
}

// Title returns the text to display for this link.
func (w *Wikilink) Title() string {
	if w.Piped() {
		return w.Text
	}
	return w.Link
}

// Raw returns the original wikilink syntax.
func (w Wikilink) Raw() string {
	var sb strings.Builder
	sb.WriteString("[[")
	sb.WriteString(w.Link)
	if w.Section != "" {
		sb.WriteString("#")
		sb.WriteString(w.Section)
	}
	if w.Piped() {
		sb.WriteString("|")
		sb.WriteString(w.Text)
	}
	sb.WriteString("]]")
	return sb.String()
}

func (w Wikilink) String() string {
	return fmt.Sprintf("%s (line %d)", w.Raw(), w.Line)
}

/*
 * Document
 */

// Wikilinks searches for wikilinks inside a Markdown document.
func (m Document) Wikilinks() []Wikilink {
	return m.extractWikilinks(regexWikilink, 1)
}

// EmbeddedWikilinks searches for embedded wikilinks (![[...]]) inside a Markdown document.
func (m Document) EmbeddedWikilinks() []Wikilink {
	return m.extractWikilinks(regexEmbeddedWikilink, 0)
}

func (m Document) extractWikilinks(r *regexp.Regexp, prefixLen int) []Wikilink {
	var results []Wikilink

	txt := string(m)
	fenced := m.fencedLines()

	matches := r.FindAllStringSubmatchIndex(txt, -1)
	for _, match := range matches {
		link := txt[match[2]:match[3]]
		section := ""
		if match[4] != -1 {
			section = strings.TrimPrefix(txt[match[4]:match[5]], "#")
		}
		alias := ""
		if match[6] != -1 {
			alias = txt[match[6]:match[7]]
		}

		// The non-embedded regex consumes the character preceding '[['
		position := match[0]
		if prefixLen > 0 && match[0] > 0 {
			position = match[0] + prefixLen
		}
		line := strings.Count(txt[:position], "\n") + 1

		// Ignore wikilinks inside code blocks (ex: a sample Markdown code block)
		if fenced[line] {
			continue
		}

		results = append(results, Wikilink{
			Link:     strings.TrimSpace(link),
			Section:  section,
			Text:     alias,
			Line:     line,
			Position: position,
		})
	}

	return results
}

// fencedLines returns the set of 1-based line numbers inside fenced or indented code blocks.
func (m Document) fencedLines() map[int]bool {
	result := make(map[int]bool)
	insideCodeBlock := false
	for i, line := range m.Lines() {
		if strings.HasPrefix(line, "```") {
			insideCodeBlock = !insideCodeBlock
			result[i+1] = true
			continue
		}
		if insideCodeBlock || strings.HasPrefix(line, "    ") {
			result[i+1] = true
		}
	}
	return result
}
