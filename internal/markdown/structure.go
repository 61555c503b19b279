package markdown

import (
	"regexp"
	"strings"

	"github.com/mdbridge/mdbridge/pkg/text"
)

// ElementKind classifies a source line into the semantic category it will
// produce once converted into a remote block.
type ElementKind string

const (
	ElementText     ElementKind = "text"
	ElementHeading1 ElementKind = "heading1"
	ElementHeading2 ElementKind = "heading2"
	ElementHeading3 ElementKind = "heading3"
	ElementBullet   ElementKind = "bullet"
	ElementOrdered  ElementKind = "ordered"
	ElementQuote    ElementKind = "quote"
	ElementCode     ElementKind = "code"
	ElementImage    ElementKind = "image"
)

// PreviewMaxRunes bounds the content preview stored on a StructuralElement.
const PreviewMaxRunes = 50

// StructuralElement is the ground-truth ordering unit derived from the
// source Markdown. The remote conversion endpoint gives no ordering
// guarantee, so this sequence is the reference to reorder its output.
type StructuralElement struct {
	Kind    ElementKind
	Preview string
	Line    int
}

var (
	regexImageLine      = regexp.MustCompile(`^!\[[^\]]*\]\([^)]*\)$`)
	regexImageAnywhere  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	regexLinkOnlyLine   = regexp.MustCompile(`^\[[^\]]*\]\([^)]*\)$`)
	regexTableSeparator = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
)

func isListItem(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return true
	}
	_, ok := orderedItem(line)
	return ok
}

// orderedItem matches a `N. content` list item and returns the content.
func orderedItem(line string) (string, bool) {
	number, rest, found := strings.Cut(line, ". ")
	if !found || !text.IsNumber(number) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func isQuote(line string) bool {
	return strings.HasPrefix(line, "> ") || line == ">"
}

func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isHorizontalRule(line string) bool {
	return (strings.HasPrefix(line, "---") && strings.Trim(line, "-") == "") ||
		(strings.HasPrefix(line, "___") && strings.Trim(line, "_") == "") ||
		(strings.HasPrefix(line, "***") && strings.Trim(line, "*") == "")
}

func isImageLine(line string) bool {
	return regexImageLine.MatchString(line)
}

func isLinkOnlyLine(line string) bool {
	return regexLinkOnlyLine.MatchString(line)
}

// ParseStructure classifies every non-blank line of a document, in source
// order. The input must be the same document submitted to the conversion
// endpoint (either both preprocessed, or both raw).
func (m Document) ParseStructure() []StructuralElement {
	var elements []StructuralElement

	insideCodeBlock := false
	iterator := m.Iterator()
	for iterator.HasNext() {
		line := iterator.Next()
		trimmed := strings.TrimSpace(line.Text)

		if strings.HasPrefix(trimmed, "```") {
			if !insideCodeBlock {
				// A fenced block collapses into a single code element
				elements = append(elements, StructuralElement{
					Kind: ElementCode,
					Line: line.Number,
				})
			}
			insideCodeBlock = !insideCodeBlock
			continue
		}
		if insideCodeBlock {
			continue
		}
		if text.IsBlank(trimmed) {
			continue
		}

		elements = append(elements, classifyLine(trimmed, line.Number))
	}

	return elements
}

func classifyLine(line string, number int) StructuralElement {
	if ok, title, level := IsHeading(line); ok {
		kind := ElementHeading3
		switch level {
		case 1:
			kind = ElementHeading1
		case 2:
			kind = ElementHeading2
		}
		// Deeper levels fold into heading3
		return newElement(kind, title, number)
	}
	if strings.HasPrefix(line, "- ") {
		return newElement(ElementBullet, strings.TrimPrefix(line, "- "), number)
	}
	if strings.HasPrefix(line, "* ") {
		return newElement(ElementBullet, strings.TrimPrefix(line, "* "), number)
	}
	if content, ok := orderedItem(line); ok {
		return newElement(ElementOrdered, content, number)
	}
	if strings.HasPrefix(line, "> ") {
		return newElement(ElementQuote, strings.TrimPrefix(line, "> "), number)
	}
	if line == ">" {
		// A bare '>' renders as a literal quote marker, not nothing
		return newElement(ElementQuote, "", number)
	}
	if regexImageAnywhere.MatchString(line) && isImageLine(line) {
		return newElement(ElementImage, "", number)
	}
	return newElement(ElementText, line, number)
}

func newElement(kind ElementKind, content string, number int) StructuralElement {
	return StructuralElement{
		Kind:    kind,
		Preview: text.Truncate(text.NormalizeSpaces(content), PreviewMaxRunes),
		Line:    number,
	}
}
