package markdown

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdbridge/mdbridge/pkg/text"
)

// File represents a Markdown note on disk, split into its front matter and body.
type File struct {
	AbsolutePath string
	FrontMatter  FrontMatter
	Body         Document
	BodyLine     int
}

func (m File) String() string {
	return fmt.Sprintf("Markdown file %q", m.AbsolutePath)
}

// Basename returns the file name without its extension.
func (m File) Basename() string {
	return text.TrimExtension(filepath.Base(m.AbsolutePath))
}

// Title returns the document title: the front matter "title" attribute
// when present, the file basename otherwise.
func (m File) Title() string {
	if title := m.FrontMatter.Title(); title != "" {
		return title
	}
	return m.Basename()
}

// ParseFile parses a Markdown file.
func ParseFile(path string) (*File, error) {
	contentAsBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	file := ParseFileContent(string(contentAsBytes))
	file.AbsolutePath = path
	return file, nil
}

// ParseFileContent splits a raw note into front matter and body.
func ParseFileContent(content string) *File {
	var rawFrontMatter bytes.Buffer
	var rawBody bytes.Buffer
	frontMatterStarted := false
	frontMatterEnded := false
	bodyStarted := false
	bodyLine := 0
	for i, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
		if strings.HasPrefix(line, "---") && !bodyStarted {
			if !frontMatterStarted {
				if i > 0 {
					// A front matter block must open the file
					bodyStarted = true
					bodyLine = 1
					rawBody.WriteString(content)
					break
				}
				frontMatterStarted = true
			} else if !frontMatterEnded {
				frontMatterEnded = true
			}
			continue
		}

		if frontMatterStarted && !frontMatterEnded {
			rawFrontMatter.WriteString(line)
			rawFrontMatter.WriteString("\n")
		} else {
			if !text.IsBlank(line) && !bodyStarted {
				bodyStarted = true
				bodyLine = i + 1
			}
			if bodyStarted {
				rawBody.WriteString(line)
				rawBody.WriteString("\n")
			}
		}
	}

	return &File{
		FrontMatter: FrontMatter(rawFrontMatter.String()),
		Body:        Document(rawBody.String()),
		BodyLine:    bodyLine,
	}
}
