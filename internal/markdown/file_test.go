package markdown_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileContent(t *testing.T) {
	tests := []struct {
		name                string
		content             string            // input
		expectedFrontMatter string            // output
		expectedBody        markdown.Document // output
	}{
		{
			name:                "No front matter",
			content:             "# Title\n\nText\n",
			expectedFrontMatter: "",
			expectedBody:        "# Title\n\nText\n",
		},
		{
			name:                "Front matter",
			content:             "---\ntitle: My Note\ntags: [a, b]\n---\n\n# Title\n",
			expectedFrontMatter: "title: My Note\ntags: [a, b]\n",
			expectedBody:        "# Title\n",
		},
		{
			name:                "Horizontal rule in body",
			content:             "# Title\n\n---\n\nText\n",
			expectedFrontMatter: "",
			expectedBody:        "# Title\n\n---\n\nText\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := markdown.ParseFileContent(tt.content)
			assert.Equal(t, tt.expectedFrontMatter, string(file.FrontMatter))
			assert.Equal(t, tt.expectedBody, file.Body)
		})
	}
}

func TestFileTitle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "My Note.md")
	require.NoError(t, os.WriteFile(path, []byte("Body\n"), 0644))

	file, err := markdown.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "My Note", file.Title(), "must fall back on the basename")

	require.NoError(t, os.WriteFile(path, []byte("---\ntitle: Renamed\n---\nBody\n"), 0644))
	file, err = markdown.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", file.Title())
}
