package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/mdbridge/mdbridge/pkg/text"
)

// UploadFunc uploads a referenced note and returns the created document.
type UploadFunc func(ctx context.Context, file *markdown.File) (*remote.Document, error)

// Resolver rewrites `[[title]]` wiki-links into Markdown links pointing at
// remote documents, uploading each referenced note first. One resolver
// instance covers one top-level upload, including its recursive referenced
// uploads: the in-flight set and the result cache are shared across the
// whole recursion so mutual references terminate.
type Resolver struct {
	paths    []string
	upload   UploadFunc
	inFlight map[string]bool
	cache    map[string]*remote.Document
}

func NewResolver(paths []string, upload UploadFunc) *Resolver {
	return &Resolver{
		paths:    paths,
		upload:   upload,
		inFlight: make(map[string]bool),
		cache:    make(map[string]*remote.Document),
	}
}

// Enter marks a title as being uploaded. References to an in-flight title
// are skipped instead of recursing.
func (r *Resolver) Enter(title string) {
	r.inFlight[slug.Make(title)] = true
}

// Leave clears the in-flight mark.
func (r *Resolver) Leave(title string) {
	delete(r.inFlight, slug.Make(title))
}

// ResolveFile maps a wiki-link target to a local note path: exact basename
// match first, then path-suffix match, then fuzzy substring match in either
// direction. Returns "" when nothing matches.
func (r *Resolver) ResolveFile(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	for _, path := range r.paths {
		if strings.EqualFold(text.TrimExtension(filepath.Base(path)), target) {
			return path
		}
	}
	normalized := strings.ToLower(filepath.ToSlash(target))
	for _, path := range r.paths {
		if strings.HasSuffix(strings.ToLower(filepath.ToSlash(text.TrimExtension(path))), normalized) {
			return path
		}
	}
	for _, path := range r.paths {
		basename := strings.ToLower(text.TrimExtension(filepath.Base(path)))
		if strings.Contains(basename, normalized) || strings.Contains(normalized, basename) {
			return path
		}
	}
	return ""
}

// Resolve uploads every note referenced by a wiki-link and rewrites the
// links into Markdown links. Unresolvable or failing references are logged
// and left as-is; a reference to a note already being uploaded is skipped
// (cycle protection). Returns the rewritten body and the documents created
// along the way.
func (r *Resolver) Resolve(ctx context.Context, body markdown.Document) (markdown.Document, []ReferencedDocument, error) {
	logger := core.CurrentLogger()
	if !markdown.MatchWikilink(string(body)) {
		return body, nil, nil
	}

	type replacement struct {
		wikilink markdown.Wikilink
		document *remote.Document
	}
	var replacements []replacement
	var references []ReferencedDocument

	for _, wikilink := range body.Wikilinks() {
		if wikilink.Anchored() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return body, references, err
		}
		key := slug.Make(wikilink.Link)
		if r.inFlight[key] {
			logger.Debugf("Skipping %s: already being uploaded", wikilink)
			continue
		}

		document := r.cache[key]
		if document == nil {
			path := r.ResolveFile(wikilink.Link)
			if path == "" {
				logger.Warnf("Unable to resolve %s to a local note", wikilink)
				continue
			}
			file, err := markdown.ParseFile(path)
			if err != nil {
				logger.Warnf("Unable to read %s: %v", path, err)
				continue
			}

			r.Enter(wikilink.Link)
			document, err = r.upload(ctx, file)
			r.Leave(wikilink.Link)
			if err != nil {
				logger.Warnf("Unable to upload referenced note %s: %v", wikilink, err)
				continue
			}
			if document == nil {
				// Dry run or skipped upload, keep the wikilink as-is.
				continue
			}
			r.cache[key] = document
			references = append(references, ReferencedDocument{
				Title: file.Title(),
				Token: document.ID,
				URL:   document.URL,
			})
		}
		replacements = append(replacements, replacement{wikilink: wikilink, document: document})
	}

	// Rewrite from the end so earlier replacements keep later offsets valid.
	sort.Slice(replacements, func(i, j int) bool {
		return replacements[i].wikilink.Position > replacements[j].wikilink.Position
	})
	raw := string(body)
	for _, rep := range replacements {
		span := rep.wikilink.Raw()
		position := rep.wikilink.Position
		if position+len(span) > len(raw) || raw[position:position+len(span)] != span {
			logger.Warnf("Stale offset for %s, skipping rewrite", rep.wikilink)
			continue
		}
		link := fmt.Sprintf("[%s](%s)", rep.wikilink.Title(), rep.document.URL)
		raw = raw[:position] + link + raw[position+len(span):]
	}
	return markdown.Document(raw), references, nil
}
