package markdown

import (
	"regexp"
	"strings"

	"github.com/mdbridge/mdbridge/pkg/text"
)

var regexHTMLComment = regexp.MustCompile(`(?s)<!--.+?-->`)

// Transformer applies changes on a Markdown document
type Transformer func(document Document) (Document, error)

// Transform applies transformers successively to create a new Markdown document
func (m Document) Transform(transformers ...Transformer) (Document, error) {
	result := m
	for _, transformer := range transformers {
		resultTransformed, err := transformer(result)
		if err != nil {
			return m, err
		}
		result = resultTransformed
	}
	return result, nil
}

// MustTransform is similar to Transform but does not expect an error
func (m Document) MustTransform(transformers ...Transformer) Document {
	result, err := m.Transform(transformers...)
	if err != nil {
		panic(err)
	}
	return result
}

/*
 * Transformers
 */

// StripCodeBlocks removes code blocks from a Markdown document.
func StripCodeBlocks() Transformer {
	return func(document Document) (Document, error) {
		var newLines []string

		insideCodeBlock := false
		iterator := document.Iterator()
		for iterator.HasNext() {
			line := iterator.Next()
			if strings.HasPrefix(line.Text, "```") { // Syntax 1
				insideCodeBlock = !insideCodeBlock
				newLines = append(newLines, "")
				continue
			}
			if strings.HasPrefix(line.Text, "    ") || insideCodeBlock { // Syntax 2
				newLines = append(newLines, "")
				continue
			}

			newLines = append(newLines, line.Text)
		}

		return Document(strings.Join(newLines, "\n")), nil
	}
}

// SquashBlankLines removes blank lines when multiple successive blank lines are present
func SquashBlankLines() Transformer {
	return func(document Document) (Document, error) {
		return Document(text.SquashBlankLines(string(document))), nil
	}
}

// StripHTMLComments transforms a Markdown document to remove HTML comments
func StripHTMLComments() Transformer {
	return func(document Document) (Document, error) {
		md := string(document)
		md = regexHTMLComment.ReplaceAllString(md, "")
		return Document(md).TrimSpace(), nil
	}
}
