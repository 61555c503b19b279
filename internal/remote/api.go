// Package remote talks to the block-document service: a typed API boundary,
// its HTTP implementation, and the mutation executor enforcing the service's
// rate limits and batch-size limits.
package remote

import (
	"context"

	"github.com/mdbridge/mdbridge/internal/block"
)

// Document describes a remote document.
type Document struct {
	ID          string `json:"document_id"`
	RootBlockID string `json:"root_block_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

// Permissions are the sharing settings applied to a document.
type Permissions struct {
	Public         bool `json:"public"`
	AllowCopy      bool `json:"allow_copy"`
	AllowDuplicate bool `json:"allow_duplicate"`
}

// API is the RPC boundary with the document service. Implementations must
// preserve these semantics:
//
//   - ConvertMarkdownToBlockTree returns a flat list of typed block
//     descriptors with NO ordering guarantee relative to the source;
//   - CreateBlocks inserts up to MaxBlocksPerCall sibling blocks at the
//     given index and returns the created ids in input order;
//   - BatchDeleteBlocksByRange deletes the half-open sibling interval
//     [startIndex, endIndex);
//   - indices shift with every mutation, so callers must never issue
//     concurrent structural mutations against the same document.
type API interface {
	ConvertMarkdownToBlockTree(ctx context.Context, markdown string) ([]*block.Block, error)

	CreateDocument(ctx context.Context, title, folderToken string) (*Document, error)
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	DeleteDocument(ctx context.Context, documentID string) error

	GetBlocksDetailed(ctx context.Context, documentID string) ([]*block.Block, error)
	CreateBlocks(ctx context.Context, documentID, parentID string, index int, blocks []*block.Block) ([]string, error)
	CreateNestedBlocks(ctx context.Context, documentID, parentID string, index int, children []*block.Block, descendants []*block.Block) ([]string, error)
	BatchDeleteBlocksByRange(ctx context.Context, documentID, parentID string, startIndex, endIndex int) error
	DeleteBlock(ctx context.Context, documentID, blockID, parentID string, index int) error
	PatchImageBlock(ctx context.Context, documentID, blockID, imageToken string, width, height int) error

	UploadAsset(ctx context.Context, fileName string, data []byte, targetContext string) (string, error)
	SetPermissions(ctx context.Context, documentID string, permissions Permissions) error
	TransferOwnership(ctx context.Context, documentID, newOwnerID string) error
}

// MaxBlocksPerCall is the sibling-batch limit of CreateBlocks.
const MaxBlocksPerCall = 50
