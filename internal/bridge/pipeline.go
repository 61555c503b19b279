package bridge

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/callout"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/medias"
	"github.com/mdbridge/mdbridge/internal/plan"
	"github.com/mdbridge/mdbridge/internal/reconcile"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/mdbridge/mdbridge/pkg/clock"
)

// Options control one upload.
type Options struct {
	// SmartUpdate reuses the previous remote document when possible.
	SmartUpdate bool
	// ResolveLinks uploads wiki-linked notes and rewrites the links.
	ResolveLinks bool
	// Permissions to apply to the document after upload.
	Permissions *remote.Permissions

	// asReference marks recursive uploads triggered by a wiki-link.
	asReference bool
}

// Progress receives human-readable status messages during an upload.
type Progress func(message string)

// Context carries the per-run state of one top-level upload and its
// recursive referenced uploads. No pipeline state lives in globals.
type Context struct {
	// Images caches image bytes by absolute path.
	Images map[string][]byte

	resolver *Resolver
}

func NewContext() *Context {
	return &Context{
		Images: make(map[string][]byte),
	}
}

// Result is the outcome of one upload.
type Result struct {
	Document *remote.Document
	// Secondary lists the documents created while resolving wiki-links.
	Secondary []ReferencedDocument
	// Callouts counts the quote blocks rewritten as callouts.
	Callouts int
	// FallbackTables counts the tables replaced by placeholder text.
	FallbackTables int
}

// Uploader runs the full note-to-document pipeline.
type Uploader struct {
	Config     *core.Config
	API        remote.API
	Executor   *remote.Executor
	Transcoder *callout.Transcoder
	History    *History
	Mirror     core.Mirror
	// Rasterizer renders SVG and Mermaid sources to PNG; nil skips them.
	Rasterizer medias.Rasterizer
}

func NewUploader(config *core.Config, api remote.API) (*Uploader, error) {
	executor := remote.NewExecutor(api)
	if ms := config.ConfigFile.Upload.RetryBackoffMs; ms > 0 {
		executor.RetryBackoff = millis(ms)
	}
	transcoder := callout.NewTranscoder(executor)
	transcoder.SettleDelay = config.SettleDelay()

	history, err := LoadHistory(config.HistoryPath())
	if err != nil {
		return nil, err
	}
	mirror, err := core.NewMirror(config.ConfigFile.Mirror)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the asset mirror: %w", err)
	}

	return &Uploader{
		Config:     config,
		API:        api,
		Executor:   executor,
		Transcoder: transcoder,
		History:    history,
		Mirror:     mirror,
	}, nil
}

// Upload converts a note into a remote document: wiki-links resolved,
// markdown preprocessed, blocks reconciled against the source structure,
// inserted under rate limits, images attached, callouts rewritten. Repeated
// runs update the previous document in place when SmartUpdate is set.
func (u *Uploader) Upload(ctx context.Context, file *markdown.File, opts Options, progress Progress) (*Result, error) {
	return u.upload(ctx, NewContext(), file, opts, progress)
}

func (u *Uploader) upload(ctx context.Context, run *Context, file *markdown.File, opts Options, progress Progress) (*Result, error) {
	logger := core.CurrentLogger()
	title := file.Title()
	report(progress, "Uploading %q", title)

	body := file.Body
	var references []ReferencedDocument
	if opts.ResolveLinks {
		if run.resolver == nil {
			paths, err := ListNoteFiles(u.Config)
			if err != nil {
				return nil, fmt.Errorf("unable to list vault notes: %w", err)
			}
			run.resolver = NewResolver(paths, func(ctx context.Context, referenced *markdown.File) (*remote.Document, error) {
				refOpts := opts
				refOpts.SmartUpdate = false
				refOpts.asReference = true
				result, err := u.upload(ctx, run, referenced, refOpts, progress)
				if err != nil {
					return nil, err
				}
				return result.Document, nil
			})
		}
		run.resolver.Enter(title)
		defer run.resolver.Leave(title)

		var err error
		body, references, err = run.resolver.Resolve(ctx, body)
		if err != nil {
			return nil, err
		}
	}

	preprocessed, err := body.Transform(markdown.Preprocess()...)
	if err != nil {
		return nil, fmt.Errorf("unable to preprocess note %q: %w", title, err)
	}
	payloads := u.collectImages(run, file, preprocessed)

	if u.Config.DryRun {
		report(progress, "Dry run: would upload %q (%d images, %d wiki-links)",
			title, len(payloads), len(body.Wikilinks()))
		return &Result{Secondary: references}, nil
	}

	var document *remote.Document
	var stats populateStats
	rebuild := func(ctx context.Context, existing *remote.Document) error {
		var err error
		stats, err = u.populate(ctx, existing, preprocessed, payloads, progress)
		return err
	}

	if opts.SmartUpdate {
		document, err = NewSmartUpdater(u.API, u.Executor).Run(ctx, u.History, title, body, rebuild)
		if err != nil {
			return nil, err
		}
		if document != nil {
			report(progress, "Updated %q in place", title)
		}
	}
	if document == nil {
		report(progress, "Creating document %q", title)
		document, err = u.API.CreateDocument(ctx, title, u.Config.ConfigFile.Remote.FolderToken)
		if err != nil {
			return nil, fmt.Errorf("unable to create document %q: %w", title, err)
		}
		if err := rebuild(ctx, document); err != nil {
			return nil, err
		}
	}

	if opts.Permissions != nil {
		if err := u.API.SetPermissions(ctx, document.ID, *opts.Permissions); err != nil {
			logger.Warnf("Unable to apply permissions on %q: %v", title, err)
		}
	}
	if ownerID := u.Config.ConfigFile.Remote.OwnerID; ownerID != "" {
		// Documents created by an app belong to the app until transferred.
		if err := u.API.TransferOwnership(ctx, document.ID, ownerID); err != nil {
			logger.Warnf("Unable to transfer ownership of %q: %v", title, err)
		}
	}

	u.History.Upsert(&UploadRecord{
		Title:                title,
		URL:                  document.URL,
		Token:                document.ID,
		UploadedAt:           clock.Now(),
		ContentHash:          preprocessed.Hash(),
		Permissions:          opts.Permissions,
		ReferencedDocuments:  references,
		IsReferencedDocument: opts.asReference,
	})
	if err := u.History.Save(); err != nil {
		logger.Warnf("Unable to save the upload history: %v", err)
	}

	report(progress, "Uploaded %q => %s", title, document.URL)
	return &Result{
		Document:       document,
		Secondary:      references,
		Callouts:       stats.callouts,
		FallbackTables: stats.fallbackTables,
	}, nil
}

type populateStats struct {
	callouts       int
	fallbackTables int
}

// populate fills an empty document with the preprocessed note content.
func (u *Uploader) populate(ctx context.Context, document *remote.Document, preprocessed markdown.Document, payloads []medias.Payload, progress Progress) (populateStats, error) {
	logger := core.CurrentLogger()
	var stats populateStats

	blocks, err := u.API.ConvertMarkdownToBlockTree(ctx, preprocessed.String())
	if err != nil {
		return stats, fmt.Errorf("unable to convert note to blocks: %w", err)
	}
	blocks = stripPageRoots(blocks)

	elements := preprocessed.ParseStructure()
	ordered, assignments := reconcile.Reconcile(elements, blocks)
	logger.Debugf("Reconciled %d blocks against %d structural elements (%d matched)",
		len(ordered), len(elements), len(assignments))

	tree := block.NewTree(ordered)
	if repairs := tree.ValidateRelations(); repairs > 0 {
		logger.Debugf("Repaired %d block relations", repairs)
	}

	insertionPlan, err := plan.Build(tree, u.Config.BatchSize())
	if err != nil {
		return stats, err
	}
	report(progress, "Inserting %d blocks (%d batches, %d tables)",
		insertionPlan.Tree.Len()-len(insertionPlan.Rejected), len(insertionPlan.Batches), len(insertionPlan.Tables))

	result, err := u.Executor.ExecutePlan(ctx, document.ID, document.RootBlockID, 0, insertionPlan)
	if err != nil {
		return stats, err
	}
	stats.fallbackTables = result.FallbackTables

	if len(payloads) > 0 {
		report(progress, "Attaching %d images", len(payloads))
		if err := u.Executor.AttachImages(ctx, document.ID, result.ImageBlocks(), payloads, u.Mirror); err != nil {
			return stats, err
		}
	}

	rewritten, err := u.Transcoder.Transcode(ctx, document.ID, document.RootBlockID)
	if err != nil {
		return stats, err
	}
	stats.callouts = rewritten
	return stats, nil
}

// collectImages gathers the local images embedded in the preprocessed note,
// in source order. Unreadable images are skipped with a warning; SVG and
// Mermaid sources require a rasterizer.
func (u *Uploader) collectImages(run *Context, file *markdown.File, preprocessed markdown.Document) []medias.Payload {
	logger := core.CurrentLogger()
	noteDir := filepath.Dir(file.AbsolutePath)

	var payloads []medias.Payload
	for i, link := range preprocessed.EmbeddedLinks() {
		if !link.Internal() {
			continue
		}
		decoded, err := url.PathUnescape(link.URL)
		if err != nil {
			decoded = link.URL
		}
		path := decoded
		if !filepath.IsAbs(path) {
			path = filepath.Join(noteDir, decoded)
		}

		payload := medias.Payload{
			SourcePath:      path,
			FileName:        filepath.Base(path),
			OrdinalPosition: i,
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".svg", ".mmd", ".mermaid":
			if u.Rasterizer == nil {
				logger.Warnf("No rasterizer available, skipping %s", path)
				continue
			}
			data, dimensions, err := u.Rasterizer.Rasterize(path)
			if err != nil {
				logger.Warnf("Unable to rasterize %s: %v", path, err)
				continue
			}
			payload.Data = data
			payload.Natural = dimensions
			payload.FileName = strings.TrimSuffix(payload.FileName, filepath.Ext(payload.FileName)) + ".png"
		default:
			data, ok := run.Images[path]
			if !ok {
				data, err = os.ReadFile(path)
				if err != nil {
					logger.Warnf("Unable to read image %s: %v", path, err)
					continue
				}
				run.Images[path] = data
			}
			payload.Data = data
			if dimensions, err := medias.ReadImageDimensions(data); err == nil {
				payload.Natural = dimensions
			}
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

// stripPageRoots removes the page block the conversion wraps the document
// in, promoting its children to top level.
func stripPageRoots(blocks []*block.Block) []*block.Block {
	pages := make(map[string]bool)
	for _, b := range blocks {
		if b.Kind == block.KindPage {
			pages[b.ID] = true
		}
	}
	if len(pages) == 0 {
		return blocks
	}
	var kept []*block.Block
	for _, b := range blocks {
		if b.Kind == block.KindPage {
			continue
		}
		if pages[b.ParentID] {
			b.ParentID = ""
		}
		kept = append(kept, b)
	}
	return kept
}

// ListNoteFiles walks the vault and returns every note path, skipping
// hidden directories.
func ListNoteFiles(config *core.Config) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(config.VaultDirectory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != config.VaultDirectory {
				return filepath.SkipDir
			}
			return nil
		}
		if config.ConfigFile.SupportExtension(path) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func report(progress Progress, format string, args ...any) {
	core.CurrentLogger().Infof(format, args...)
	if progress != nil {
		progress(fmt.Sprintf(format, args...))
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
