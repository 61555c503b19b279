package bridge_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/bridge"
	"github.com/mdbridge/mdbridge/internal/callout"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/markdown"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is an in-memory document service. Conversion returns blocks in
// REVERSE source order, mimicking the real service's lack of ordering
// guarantees, so these tests exercise reconciliation end to end.
type fakeService struct {
	remote.API

	mu          sync.Mutex
	nextDoc     int
	nextBlock   int
	docs        map[string]*fakeDocument
	assets      map[string][]byte
	patched     map[string]string
	permissions map[string]remote.Permissions
	owners      map[string]string
}

type fakeDocument struct {
	id       string
	rootID   string
	title    string
	children []*block.Block
}

func newFakeService() *fakeService {
	return &fakeService{
		docs:        make(map[string]*fakeDocument),
		assets:      make(map[string][]byte),
		patched:     make(map[string]string),
		permissions: make(map[string]remote.Permissions),
		owners:      make(map[string]string),
	}
}

var regexOrderedLine = regexp.MustCompile(`^\d+\. `)

func (f *fakeService) ConvertMarkdownToBlockTree(ctx context.Context, md string) ([]*block.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var blocks []*block.Block
	add := func(kind block.Kind, content string) {
		f.nextBlock++
		b := block.NewTextBlock(content)
		b.ID = fmt.Sprintf("cv%d", f.nextBlock)
		b.Kind = kind
		if kind == block.KindImage {
			b.Text = nil
			b.Image = &block.ImagePayload{}
		}
		blocks = append(blocks, b)
	}

	inFence := false
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				add(block.KindCode, "")
			}
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "# "):
			add(block.KindHeading1, line[2:])
		case strings.HasPrefix(line, "## "):
			add(block.KindHeading2, line[3:])
		case strings.HasPrefix(line, "- "):
			add(block.KindBullet, line[2:])
		case regexOrderedLine.MatchString(line):
			add(block.KindOrdered, regexOrderedLine.ReplaceAllString(line, ""))
		case strings.HasPrefix(line, "> "):
			add(block.KindQuote, line[2:])
		case strings.HasPrefix(line, "!["):
			add(block.KindImage, "")
		default:
			add(block.KindText, line)
		}
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

func (f *fakeService) CreateDocument(ctx context.Context, title, folderToken string) (*remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDoc++
	doc := &fakeDocument{
		id:     fmt.Sprintf("doc%d", f.nextDoc),
		title:  title,
		rootID: fmt.Sprintf("doc%d_root", f.nextDoc),
	}
	f.docs[doc.id] = doc
	return &remote.Document{
		ID:          doc.id,
		RootBlockID: doc.rootID,
		Title:       title,
		URL:         "https://docs.example.com/docs/" + doc.id,
	}, nil
}

func (f *fakeService) GetDocument(ctx context.Context, documentID string) (*remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, &remote.APIError{Code: 404, Message: "document not found"}
	}
	return &remote.Document{
		ID:          doc.id,
		RootBlockID: doc.rootID,
		Title:       doc.title,
		URL:         "https://docs.example.com/docs/" + doc.id,
	}, nil
}

func (f *fakeService) GetBlocksDetailed(ctx context.Context, documentID string) ([]*block.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, &remote.APIError{Code: 404, Message: "document not found"}
	}
	root := &block.Block{ID: doc.rootID, Kind: block.KindPage}
	listed := []*block.Block{root}
	for _, child := range doc.children {
		root.Children = append(root.Children, child.ID)
		copied := *child
		copied.ParentID = doc.rootID
		listed = append(listed, &copied)
	}
	return listed, nil
}

func (f *fakeService) CreateBlocks(ctx context.Context, documentID, parentID string, index int, blocks []*block.Block) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, &remote.APIError{Code: 404, Message: "document not found"}
	}
	ids := make([]string, 0, len(blocks))
	var created []*block.Block
	for _, b := range blocks {
		f.nextBlock++
		copied := *b
		copied.ID = fmt.Sprintf("srv%d", f.nextBlock)
		ids = append(ids, copied.ID)
		created = append(created, &copied)
	}
	if parentID == doc.rootID {
		if index > len(doc.children) {
			index = len(doc.children)
		}
		updated := make([]*block.Block, 0, len(doc.children)+len(created))
		updated = append(updated, doc.children[:index]...)
		updated = append(updated, created...)
		updated = append(updated, doc.children[index:]...)
		doc.children = updated
	}
	return ids, nil
}

func (f *fakeService) CreateNestedBlocks(ctx context.Context, documentID, parentID string, index int, children []*block.Block, descendants []*block.Block) ([]string, error) {
	return f.CreateBlocks(ctx, documentID, parentID, index, children)
}

func (f *fakeService) BatchDeleteBlocksByRange(ctx context.Context, documentID, parentID string, startIndex, endIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[documentID]
	if !ok {
		return &remote.APIError{Code: 404, Message: "document not found"}
	}
	if parentID == doc.rootID && startIndex >= 0 && endIndex <= len(doc.children) {
		doc.children = append(doc.children[:startIndex], doc.children[endIndex:]...)
	}
	return nil
}

func (f *fakeService) DeleteBlock(ctx context.Context, documentID, blockID, parentID string, index int) error {
	return f.BatchDeleteBlocksByRange(ctx, documentID, parentID, index, index+1)
}

func (f *fakeService) UploadAsset(ctx context.Context, fileName string, data []byte, targetContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok_" + fileName
	f.assets[token] = data
	return token, nil
}

func (f *fakeService) PatchImageBlock(ctx context.Context, documentID, blockID, imageToken string, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched[blockID] = fmt.Sprintf("%s %dx%d", imageToken, width, height)
	return nil
}

func (f *fakeService) TransferOwnership(ctx context.Context, documentID, newOwnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[documentID] = newOwnerID
	return nil
}

func (f *fakeService) SetPermissions(ctx context.Context, documentID string, permissions remote.Permissions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions[documentID] = permissions
	return nil
}

func (f *fakeService) kinds(documentID string) []block.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []block.Kind
	for _, child := range f.docs[documentID].children {
		kinds = append(kinds, child.Kind)
	}
	return kinds
}

func newTestUploader(t *testing.T, vault string, api remote.API) *bridge.Uploader {
	t.Helper()
	config := &core.Config{
		VaultDirectory: vault,
		ConfigFile: core.ConfigFile{
			Core: core.ConfigCore{Extensions: []string{"md"}},
		},
	}
	uploader, err := bridge.NewUploader(config, api)
	require.NoError(t, err)

	executor := remote.NewExecutor(api).WithQueue(remote.NewDeleteQueue(time.Millisecond))
	executor.RetryBackoff = 0
	executor.InterBatchDelay = 0
	executor.CellDelay = 0
	executor.InterTableDelay = 0
	uploader.Executor = executor
	transcoder := callout.NewTranscoder(executor)
	transcoder.SettleDelay = 0
	uploader.Transcoder = transcoder
	return uploader
}

func TestUploaderUpload(t *testing.T) {
	vault := t.TempDir()
	path := writeNote(t, vault, "Guide.md", `# Guide

Intro text

- first step
- second step

> [!tip] Stay hydrated
`)
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)

	var messages []string
	result, err := uploader.Upload(context.Background(), file, bridge.Options{},
		func(message string) { messages = append(messages, message) })
	require.NoError(t, err)
	require.NotNil(t, result.Document)
	assert.Equal(t, 1, result.Callouts)
	assert.NotEmpty(t, messages)

	// Conversion returned reversed blocks; the document must still read in
	// source order, with the marked quote rewritten as a callout.
	assert.Equal(t, []block.Kind{
		block.KindHeading1,
		block.KindText,
		block.KindBullet,
		block.KindBullet,
		block.KindCallout,
	}, api.kinds(result.Document.ID))

	record := uploader.History.Find("Guide")
	require.NotNil(t, record)
	assert.Equal(t, result.Document.ID, record.Token)
	assert.False(t, record.IsReferencedDocument)
	assert.NotEmpty(t, record.ContentHash)

	// History survives a reload
	reloaded, err := bridge.LoadHistory(uploader.Config.HistoryPath())
	require.NoError(t, err)
	assert.NotNil(t, reloaded.Find("Guide"))
}

func TestUploaderSmartUpdate(t *testing.T) {
	vault := t.TempDir()
	path := writeNote(t, vault, "Journal.md", "# Journal\n\nDay one\n")
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)
	opts := bridge.Options{SmartUpdate: true}

	first, err := uploader.Upload(context.Background(), file, opts, nil)
	require.NoError(t, err)

	// Edit the note and upload again
	path = writeNote(t, vault, "Journal.md", "# Journal\n\nDay two\n\nMore details\n")
	file, err = markdown.ParseFile(path)
	require.NoError(t, err)

	second, err := uploader.Upload(context.Background(), file, opts, nil)
	require.NoError(t, err)

	// Same document updated in place, not a duplicate
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Len(t, api.docs, 1)
	assert.Equal(t, []block.Kind{
		block.KindHeading1,
		block.KindText,
		block.KindText,
	}, api.kinds(first.Document.ID))
	assert.Len(t, uploader.History.Records(), 1)
}

func TestUploaderResolvesWikilinks(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "Alpha.md", "Forward to [[Beta]]\n")
	writeNote(t, vault, "Beta.md", "Back to [[Alpha]]\n")

	file, err := markdown.ParseFile(filepath.Join(vault, "Alpha.md"))
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)

	result, err := uploader.Upload(context.Background(), file, bridge.Options{ResolveLinks: true}, nil)
	require.NoError(t, err)

	// Beta was uploaded once as a referenced document
	assert.Len(t, api.docs, 2)
	require.Len(t, result.Secondary, 1)
	assert.Equal(t, "Beta", result.Secondary[0].Title)

	beta := uploader.History.Find("Beta")
	require.NotNil(t, beta)
	assert.True(t, beta.IsReferencedDocument)

	alpha := uploader.History.Find("Alpha")
	require.NotNil(t, alpha)
	require.Len(t, alpha.ReferencedDocuments, 1)

	// Alpha's content points at Beta's document; Beta kept its wikilink
	// because Alpha was still in flight when Beta was processed.
	alphaText := api.docs[alpha.Token].children[0].FlattenText()
	assert.Contains(t, alphaText, "[Beta](https://docs.example.com/docs/"+beta.Token+")")
	betaText := api.docs[beta.Token].children[0].FlattenText()
	assert.Contains(t, betaText, "[[Alpha]]")
}

func TestUploaderAttachesImages(t *testing.T) {
	vault := t.TempDir()

	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, image.NewRGBA(image.Rect(0, 0, 400, 300))))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "shot.png"), buffer.Bytes(), 0644))

	path := writeNote(t, vault, "Photo.md", "# Photo\n\n![shot](shot.png)\n")
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)

	result, err := uploader.Upload(context.Background(), file, bridge.Options{}, nil)
	require.NoError(t, err)

	require.Len(t, api.assets, 1)
	assert.Equal(t, buffer.Bytes(), api.assets["tok_shot.png"])
	require.Len(t, api.patched, 1)
	for _, patch := range api.patched {
		assert.Equal(t, "tok_shot.png 400x300", patch)
	}
	assert.Contains(t, api.kinds(result.Document.ID), block.KindImage)
}

func TestUploaderAppliesPermissions(t *testing.T) {
	vault := t.TempDir()
	path := writeNote(t, vault, "Public.md", "# Public\n\nShared widely\n")
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)

	permissions := &remote.Permissions{Public: true, AllowCopy: true}
	result, err := uploader.Upload(context.Background(), file, bridge.Options{Permissions: permissions}, nil)
	require.NoError(t, err)

	assert.Equal(t, *permissions, api.permissions[result.Document.ID])
	record := uploader.History.Find("Public")
	require.NotNil(t, record)
	require.NotNil(t, record.Permissions)
	assert.True(t, record.Permissions.Public)
}

func TestUploaderTransfersOwnership(t *testing.T) {
	vault := t.TempDir()
	path := writeNote(t, vault, "Handover.md", "# Handover\n\nA note\n")
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)
	uploader.Config.ConfigFile.Remote.OwnerID = "ou_123"

	result, err := uploader.Upload(context.Background(), file, bridge.Options{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ou_123", api.owners[result.Document.ID])
}

func TestUploaderDryRun(t *testing.T) {
	vault := t.TempDir()
	path := writeNote(t, vault, "Draft.md", "# Draft\n\nNot yet\n")
	file, err := markdown.ParseFile(path)
	require.NoError(t, err)

	api := newFakeService()
	uploader := newTestUploader(t, vault, api)
	uploader.Config.DryRun = true

	result, err := uploader.Upload(context.Background(), file, bridge.Options{}, nil)
	require.NoError(t, err)
	assert.Nil(t, result.Document)
	assert.Empty(t, api.docs)
}
