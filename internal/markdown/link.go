package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

// Regex to match links
const regexLinkRaw = `\[(.*?)\][(](\S*)?(?:\s+"(.*?)")?[)]`

var regexLink = regexp.MustCompile(`(?:^|[^!])` + regexLinkRaw) // Golang doesn't support negative lookbehind
var regexEmbeddedLink = regexp.MustCompile(`!` + regexLinkRaw)

// Link is a standard Markdown link.
type Link struct {
	Text  string
	URL   string
	Title string
	Line  int
}

func (l Link) Internal() bool {
	if strings.HasPrefix(l.URL, "file:") {
		return true
	}
	return !strings.Contains(l.URL, ":")
}

func (l Link) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`[%s](%s`, l.Text, l.URL))
	if l.Title != "" {
		sb.WriteString(fmt.Sprintf(` "%s"`, l.Title))
	}
	sb.WriteString(")")
	return sb.String()
}

/*
 * Document
 */

// Links searches for standard Markdown links inside a document.
func (m Document) Links() []Link {
	return m.extractLinks(regexLink)
}

// EmbeddedLinks searches for embedded links (images) inside a document.
func (m Document) EmbeddedLinks() []Link {
	return m.extractLinks(regexEmbeddedLink)
}

func (m Document) extractLinks(r *regexp.Regexp) []Link {
	var results []Link

	// Ignore links inside code blocks (ex: a sample Markdown code block)
	txt := m.MustTransform(StripCodeBlocks()).String()

	matches := r.FindAllStringSubmatchIndex(txt, -1)
	for _, match := range matches {
		linkText := txt[match[2]:match[3]]
		linkURL := ""
		if match[4] != -1 {
			linkURL = txt[match[4]:match[5]]
		}
		linkTitle := ""
		if match[6] != -1 {
			linkTitle = txt[match[6]:match[7]]
		}
		linkLine := len(strings.Split(txt[:match[0]+1], "\n")) // Add +1 as the regex matches the previous character

		results = append(results, Link{
			Text:  linkText,
			URL:   linkURL,
			Title: linkTitle,
			Line:  linkLine,
		})
	}

	return results
}
