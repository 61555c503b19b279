package remote_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/medias"
	"github.com/mdbridge/mdbridge/internal/plan"
	"github.com/mdbridge/mdbridge/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records every call and assigns sequential ids. Hooks allow a test
// to inject failures for specific calls.
type fakeAPI struct {
	remote.API

	mu     sync.Mutex
	nextID int
	calls  []string

	failNested  error
	failCreates map[int]error // call number (1-based) -> error
	createCount int

	uploaded map[string][]byte
	patched  map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		failCreates: make(map[int]error),
		uploaded:    make(map[string][]byte),
		patched:     make(map[string]string),
	}
}

func (f *fakeAPI) newID() string {
	f.nextID++
	return fmt.Sprintf("blk%d", f.nextID)
}

func (f *fakeAPI) CreateBlocks(ctx context.Context, documentID, parentID string, index int, blocks []*block.Block) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCount++
	if err := f.failCreates[f.createCount]; err != nil {
		f.calls = append(f.calls, fmt.Sprintf("create!%s@%d", parentID, index))
		return nil, err
	}
	var kinds []string
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		kinds = append(kinds, string(b.Kind))
		ids = append(ids, f.newID())
	}
	f.calls = append(f.calls, fmt.Sprintf("create:%s@%d[%s]", parentID, index, strings.Join(kinds, ",")))
	return ids, nil
}

func (f *fakeAPI) CreateNestedBlocks(ctx context.Context, documentID, parentID string, index int, children []*block.Block, descendants []*block.Block) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNested != nil {
		f.calls = append(f.calls, fmt.Sprintf("nested!%s@%d", parentID, index))
		return nil, f.failNested
	}
	ids := make([]string, 0, len(children))
	for range children {
		ids = append(ids, f.newID())
	}
	f.calls = append(f.calls, fmt.Sprintf("nested:%s@%d(%d+%d)", parentID, index, len(children), len(descendants)))
	return ids, nil
}

func (f *fakeAPI) BatchDeleteBlocksByRange(ctx context.Context, documentID, parentID string, startIndex, endIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("delete:%s[%d,%d)", parentID, startIndex, endIndex))
	return nil
}

func (f *fakeAPI) DeleteBlock(ctx context.Context, documentID, blockID, parentID string, index int) error {
	return f.BatchDeleteBlocksByRange(ctx, documentID, parentID, index, index+1)
}

func (f *fakeAPI) UploadAsset(ctx context.Context, fileName string, data []byte, targetContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := fmt.Sprintf("tok_%s", fileName)
	f.uploaded[token] = data
	return token, nil
}

func (f *fakeAPI) PatchImageBlock(ctx context.Context, documentID, blockID, imageToken string, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched[blockID] = fmt.Sprintf("%s %dx%d", imageToken, width, height)
	return nil
}

func newFastExecutor(api remote.API) *remote.Executor {
	executor := remote.NewExecutor(api).WithQueue(remote.NewDeleteQueue(time.Millisecond))
	executor.RetryBackoff = 0
	executor.InterBatchDelay = 0
	executor.CellDelay = 0
	executor.InterTableDelay = 0
	return executor
}

func textBlocks(n int) []*block.Block {
	var blocks []*block.Block
	for i := 0; i < n; i++ {
		b := block.NewTextBlock(fmt.Sprintf("paragraph %d", i))
		b.ID = fmt.Sprintf("src%d", i)
		blocks = append(blocks, b)
	}
	return blocks
}

func TestExecutorExecutePlan(t *testing.T) {
	t.Run("Batches preserve order and pairing", func(t *testing.T) {
		p, err := plan.Build(block.NewTree(textBlocks(70)), 0)
		require.NoError(t, err)
		require.Len(t, p.Batches, 2)

		api := newFakeAPI()
		result, err := newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.NoError(t, err)
		require.Len(t, result.TopLevel, 70)
		assert.Equal(t, "blk1", result.TopLevel[0].ID)
		assert.Equal(t, "paragraph 0", result.TopLevel[0].Block.FlattenText())
		assert.Equal(t, "blk70", result.TopLevel[69].ID)

		// Second batch starts where the first one ended
		require.Len(t, api.calls, 2)
		assert.Contains(t, api.calls[0], "root1@0")
		assert.Contains(t, api.calls[1], "root1@50")
	})

	t.Run("Table created in a single nested call", func(t *testing.T) {
		blocks := tableBlocks(2, 2)
		p, err := plan.Build(block.NewTree(blocks), 0)
		require.NoError(t, err)
		require.Len(t, p.Tables, 1)

		api := newFakeAPI()
		result, err := newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.NoError(t, err)
		require.Len(t, result.TopLevel, 1)
		assert.Zero(t, result.FallbackTables)
		// 1 first-level table + 2 rows + 4 cells + 4 cell paragraphs
		assert.Equal(t, []string{"nested:root1@0(1+10)"}, api.calls)
	})

	t.Run("Table falls back to stepwise creation", func(t *testing.T) {
		blocks := tableBlocks(1, 2)
		p, err := plan.Build(block.NewTree(blocks), 0)
		require.NoError(t, err)

		api := newFakeAPI()
		api.failNested = &remote.APIError{Code: 400, Message: "descendant not supported"}
		result, err := newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.NoError(t, err)
		assert.Zero(t, result.FallbackTables)

		// shell, row, 2 cells, 2 cell paragraphs
		assert.Equal(t, "nested!root1@0", api.calls[0])
		assert.Contains(t, api.calls[1], "[table]")
		assert.Contains(t, api.calls[2], "[table_row]")
		assert.Contains(t, api.calls[3], "[table_cell]")
		require.Len(t, api.calls, 7)
	})

	t.Run("Table replaced by placeholder when stepwise fails", func(t *testing.T) {
		blocks := tableBlocks(1, 1)
		p, err := plan.Build(block.NewTree(blocks), 0)
		require.NoError(t, err)

		api := newFakeAPI()
		api.failNested = &remote.APIError{Code: 400, Message: "descendant not supported"}
		// Fail the row creation (2nd stepwise call)
		api.failCreates[2] = &remote.APIError{Code: 400, Message: "row rejected"}
		result, err := newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.NoError(t, err)
		assert.Equal(t, 1, result.FallbackTables)

		// The partial table shell must have been deleted
		assert.Contains(t, api.calls, "delete:root1[0,1)")
		last := api.calls[len(api.calls)-1]
		assert.Contains(t, last, "[text]")
	})

	t.Run("Transient failures are retried", func(t *testing.T) {
		p, err := plan.Build(block.NewTree(textBlocks(1)), 0)
		require.NoError(t, err)

		api := newFakeAPI()
		api.failCreates[1] = &remote.TransientError{Status: 502, Err: fmt.Errorf("bad gateway")}
		api.failCreates[2] = &remote.TransientError{Status: 502, Err: fmt.Errorf("bad gateway")}
		result, err := newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.NoError(t, err)
		require.Len(t, result.TopLevel, 1)
		assert.Len(t, api.calls, 3)
	})

	t.Run("Business rejections are not retried", func(t *testing.T) {
		p, err := plan.Build(block.NewTree(textBlocks(1)), 0)
		require.NoError(t, err)

		api := newFakeAPI()
		api.failCreates[1] = &remote.APIError{Code: 99991672, Message: "invalid access"}
		_, err = newFastExecutor(api).ExecutePlan(context.Background(), "doc1", "root1", 0, p)
		require.Error(t, err)
		assert.Len(t, api.calls, 1)
	})
}

// tableBlocks builds a top-level table subtree with the given dimensions,
// each cell holding one paragraph.
func tableBlocks(rows, columns int) []*block.Block {
	table := &block.Block{
		ID:    "tbl",
		Kind:  block.KindTable,
		Table: &block.TablePayload{RowSize: rows, ColumnSize: columns},
	}
	blocks := []*block.Block{table}
	for r := 0; r < rows; r++ {
		row := &block.Block{
			ID:       fmt.Sprintf("row%d", r),
			ParentID: table.ID,
			Kind:     block.KindTableRow,
		}
		table.Children = append(table.Children, row.ID)
		blocks = append(blocks, row)
		for c := 0; c < columns; c++ {
			cell := &block.Block{
				ID:       fmt.Sprintf("cell%d_%d", r, c),
				ParentID: row.ID,
				Kind:     block.KindTableCell,
			}
			row.Children = append(row.Children, cell.ID)
			blocks = append(blocks, cell)

			content := block.NewTextBlock(fmt.Sprintf("value %d/%d", r, c))
			content.ID = fmt.Sprintf("txt%d_%d", r, c)
			content.ParentID = cell.ID
			cell.Children = append(cell.Children, content.ID)
			blocks = append(blocks, content)
		}
	}
	return blocks
}

func TestExecutorAttachImages(t *testing.T) {
	api := newFakeAPI()
	executor := newFastExecutor(api)

	imageBlock := &block.Block{ID: "srcimg", Kind: block.KindImage, Image: &block.ImagePayload{}}
	images := []remote.Created{{Block: imageBlock, ID: "blk_img"}}
	payloads := []medias.Payload{
		{
			FileName: "sunset.png",
			Data:     []byte("png-bytes"),
			Natural:  medias.Dimensions{Width: 1520, Height: 800},
		},
	}

	require.NoError(t, executor.AttachImages(context.Background(), "doc1", images, payloads, nil))
	assert.Contains(t, api.uploaded, "tok_sunset.png")
	// Natural dimensions exceed the display bounds and must be clamped
	assert.Equal(t, "tok_sunset.png 760x400", api.patched["blk_img"])
}

func TestDeleteQueueSpacing(t *testing.T) {
	queue := remote.NewDeleteQueue(20 * time.Millisecond)

	start := time.Now()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = queue.Run(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 3)
	// Three deletions need at least two full spacing intervals
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
