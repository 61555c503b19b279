package markdown

import (
	"gopkg.in/yaml.v3"
)

// FrontMatter represents the YAML Front Matter of a note.
type FrontMatter string

func (f FrontMatter) IsBlank() bool {
	return Document(f).IsBlank()
}

func (f FrontMatter) AsMap() (map[string]any, error) {
	var attributes = make(map[string]any)
	if err := yaml.Unmarshal([]byte(f), &attributes); err != nil {
		return nil, err
	}
	return attributes, nil
}

// Title returns the "title" attribute when present.
func (f FrontMatter) Title() string {
	attributes, err := f.AsMap()
	if err != nil {
		return ""
	}
	if title, ok := attributes["title"].(string); ok {
		return title
	}
	return ""
}
