package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdbridge/mdbridge/internal/block"
	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/pkg/clock"
)

// Client implements API over the service's HTTP interface. All responses use
// the same envelope:
//
//	{"code": 0, "msg": "success", "data": {...}}
//
// A non-zero code is a business rejection, a 5xx status a transient failure.
type Client struct {
	endpoint   string
	appID      string
	appSecret  string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a client authenticating with the given app credentials.
func NewClient(endpoint, appID, appSecret string) *Client {
	return &Client{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		appID:     appID,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientFromConfig creates a client from the [remote] configuration section.
func NewClientFromConfig(config core.ConfigRemote) *Client {
	return NewClient(config.Endpoint, config.AppID, config.AppSecret)
}

/* Wire types */

type wireBlock struct {
	BlockID   string                `json:"block_id,omitempty"`
	ParentID  string                `json:"parent_id,omitempty"`
	Children  []string              `json:"children,omitempty"`
	BlockType string                `json:"block_type"`
	Text      *block.TextPayload    `json:"text,omitempty"`
	Code      *block.CodePayload    `json:"code,omitempty"`
	Image     *block.ImagePayload   `json:"image,omitempty"`
	Table     *block.TablePayload   `json:"table,omitempty"`
	Callout   *block.CalloutPayload `json:"callout,omitempty"`
}

func toWire(b *block.Block) wireBlock {
	return wireBlock{
		BlockID:   b.ID,
		ParentID:  b.ParentID,
		Children:  b.Children,
		BlockType: string(b.Kind),
		Text:      b.Text,
		Code:      b.Code,
		Image:     b.Image,
		Table:     b.Table,
		Callout:   b.Callout,
	}
}

func fromWire(w wireBlock) *block.Block {
	kind := block.Kind(w.BlockType)
	if kind == "" {
		kind = block.KindUndefined
	}
	return &block.Block{
		ID:       w.BlockID,
		ParentID: w.ParentID,
		Children: w.Children,
		Kind:     kind,
		Text:     w.Text,
		Code:     w.Code,
		Image:    w.Image,
		Table:    w.Table,
		Callout:  w.Callout,
	}
}

func toWireList(blocks []*block.Block) []wireBlock {
	wires := make([]wireBlock, 0, len(blocks))
	for _, b := range blocks {
		wires = append(wires, toWire(b))
	}
	return wires
}

func fromWireList(wires []wireBlock) []*block.Block {
	blocks := make([]*block.Block, 0, len(wires))
	for _, w := range wires {
		blocks = append(blocks, fromWire(w))
	}
	return blocks
}

/* Authentication */

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && clock.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/auth/tenant_access_token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("authentication failed")}
	}

	var payload struct {
		Code   int    `json:"code"`
		Msg    string `json:"msg"`
		Token  string `json:"tenant_access_token"`
		Expire int    `json:"expire"` // seconds
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("malformed authentication response: %w", err)
	}
	if payload.Code != 0 {
		return "", &APIError{Code: payload.Code, Message: payload.Msg}
	}

	c.accessToken = payload.Token
	// Renew one minute before expiry to avoid racing the deadline.
	c.tokenExpiry = clock.Now().Add(time.Duration(payload.Expire-60) * time.Second)
	return c.accessToken, nil
}

/* Plumbing */

func (c *Client) call(ctx context.Context, method, path string, reqBody, respData any) error {
	var reader io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		// Idempotency token so a retried mutation is not applied twice.
		req.Header.Set("X-Client-Token", uuid.NewString())
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	core.CurrentLogger().Debugf("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 500 {
		return &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(raw)))}
	}

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("malformed response from %s %s: %w", method, path, err)
	}
	if envelope.Code != 0 {
		return &APIError{Code: envelope.Code, Message: envelope.Msg}
	}
	if respData != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, respData); err != nil {
			return fmt.Errorf("malformed response data from %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) docURL(documentID string) string {
	base := strings.TrimSuffix(c.endpoint, "/open-apis")
	return fmt.Sprintf("%s/docs/%s", base, documentID)
}

/* API implementation */

func (c *Client) ConvertMarkdownToBlockTree(ctx context.Context, markdown string) ([]*block.Block, error) {
	reqBody := map[string]string{
		"content_type": "markdown",
		"content":      markdown,
	}
	var data struct {
		Blocks []wireBlock `json:"blocks"`
	}
	if err := c.call(ctx, http.MethodPost, "/documents/content/blocks", reqBody, &data); err != nil {
		return nil, err
	}
	return fromWireList(data.Blocks), nil
}

func (c *Client) CreateDocument(ctx context.Context, title, folderToken string) (*Document, error) {
	reqBody := map[string]string{
		"title":        title,
		"folder_token": folderToken,
	}
	var data struct {
		Document Document `json:"document"`
	}
	if err := c.call(ctx, http.MethodPost, "/documents", reqBody, &data); err != nil {
		return nil, err
	}
	doc := data.Document
	if doc.URL == "" {
		doc.URL = c.docURL(doc.ID)
	}
	if doc.RootBlockID == "" {
		doc.RootBlockID = doc.ID
	}
	return &doc, nil
}

func (c *Client) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var data struct {
		Document Document `json:"document"`
	}
	path := "/documents/" + url.PathEscape(documentID)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	doc := data.Document
	if doc.URL == "" {
		doc.URL = c.docURL(doc.ID)
	}
	if doc.RootBlockID == "" {
		doc.RootBlockID = doc.ID
	}
	return &doc, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	path := "/documents/" + url.PathEscape(documentID)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetBlocksDetailed(ctx context.Context, documentID string) ([]*block.Block, error) {
	var blocks []*block.Block
	pageToken := ""
	for {
		path := fmt.Sprintf("/documents/%s/blocks?page_size=500", url.PathEscape(documentID))
		if pageToken != "" {
			path += "&page_token=" + url.QueryEscape(pageToken)
		}
		var data struct {
			Items     []wireBlock `json:"items"`
			HasMore   bool        `json:"has_more"`
			PageToken string      `json:"page_token"`
		}
		if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
			return nil, err
		}
		blocks = append(blocks, fromWireList(data.Items)...)
		if !data.HasMore {
			return blocks, nil
		}
		pageToken = data.PageToken
	}
}

func (c *Client) CreateBlocks(ctx context.Context, documentID, parentID string, index int, blocks []*block.Block) ([]string, error) {
	if len(blocks) > MaxBlocksPerCall {
		return nil, fmt.Errorf("cannot create %d blocks in a single call (max %d)", len(blocks), MaxBlocksPerCall)
	}
	reqBody := struct {
		Index    int         `json:"index"`
		Children []wireBlock `json:"children"`
	}{
		Index:    index,
		Children: toWireList(blocks),
	}
	var data struct {
		Children []wireBlock `json:"children"`
	}
	path := fmt.Sprintf("/documents/%s/blocks/%s/children",
		url.PathEscape(documentID), url.PathEscape(parentID))
	if err := c.call(ctx, http.MethodPost, path, reqBody, &data); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data.Children))
	for _, child := range data.Children {
		ids = append(ids, child.BlockID)
	}
	return ids, nil
}

// CreateNestedBlocks creates a subtree in one call. Children are the
// first-level blocks, descendants the remaining subtree nodes; both use
// caller-chosen temporary ids to express the relations, replaced by
// service-assigned ids on creation.
func (c *Client) CreateNestedBlocks(ctx context.Context, documentID, parentID string, index int, children []*block.Block, descendants []*block.Block) ([]string, error) {
	childrenIDs := make([]string, 0, len(children))
	for _, child := range children {
		childrenIDs = append(childrenIDs, child.ID)
	}
	all := make([]wireBlock, 0, len(children)+len(descendants))
	all = append(all, toWireList(children)...)
	all = append(all, toWireList(descendants)...)

	reqBody := struct {
		Index       int         `json:"index"`
		ChildrenIDs []string    `json:"children_id"`
		Descendants []wireBlock `json:"descendants"`
	}{
		Index:       index,
		ChildrenIDs: childrenIDs,
		Descendants: all,
	}
	var data struct {
		ChildrenIDs []string `json:"children_ids"`
	}
	path := fmt.Sprintf("/documents/%s/blocks/%s/descendant",
		url.PathEscape(documentID), url.PathEscape(parentID))
	if err := c.call(ctx, http.MethodPost, path, reqBody, &data); err != nil {
		return nil, err
	}
	return data.ChildrenIDs, nil
}

func (c *Client) BatchDeleteBlocksByRange(ctx context.Context, documentID, parentID string, startIndex, endIndex int) error {
	reqBody := struct {
		StartIndex int `json:"start_index"`
		EndIndex   int `json:"end_index"`
	}{
		StartIndex: startIndex,
		EndIndex:   endIndex,
	}
	path := fmt.Sprintf("/documents/%s/blocks/%s/children/batch_delete",
		url.PathEscape(documentID), url.PathEscape(parentID))
	return c.call(ctx, http.MethodDelete, path, reqBody, nil)
}

func (c *Client) DeleteBlock(ctx context.Context, documentID, blockID, parentID string, index int) error {
	// The service only deletes by sibling range under a parent.
	core.CurrentLogger().Tracef("deleting block %s at index %d", blockID, index)
	return c.BatchDeleteBlocksByRange(ctx, documentID, parentID, index, index+1)
}

func (c *Client) PatchImageBlock(ctx context.Context, documentID, blockID, imageToken string, width, height int) error {
	reqBody := struct {
		ReplaceImage block.ImagePayload `json:"replace_image"`
	}{
		ReplaceImage: block.ImagePayload{
			Token:  imageToken,
			Width:  width,
			Height: height,
		},
	}
	path := fmt.Sprintf("/documents/%s/blocks/%s",
		url.PathEscape(documentID), url.PathEscape(blockID))
	return c.call(ctx, http.MethodPatch, path, reqBody, nil)
}

func (c *Client) UploadAsset(ctx context.Context, fileName string, data []byte, targetContext string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("file_name", fileName)
	_ = writer.WriteField("parent_type", targetContext)
	_ = writer.WriteField("size", strconv.Itoa(len(data)))
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/medias/upload_all", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Client-Token", uuid.NewString())
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	core.CurrentLogger().Debugf("POST /medias/upload_all (%s, %d bytes)", fileName, len(data))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", &TransientError{Status: resp.StatusCode, Err: fmt.Errorf("upload failed")}
	}

	var envelope struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			FileToken string `json:"file_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("malformed upload response: %w", err)
	}
	if envelope.Code != 0 {
		return "", &APIError{Code: envelope.Code, Message: envelope.Msg}
	}
	return envelope.Data.FileToken, nil
}

func (c *Client) SetPermissions(ctx context.Context, documentID string, permissions Permissions) error {
	path := fmt.Sprintf("/documents/%s/permissions/public", url.PathEscape(documentID))
	return c.call(ctx, http.MethodPatch, path, permissions, nil)
}

func (c *Client) TransferOwnership(ctx context.Context, documentID, newOwnerID string) error {
	reqBody := map[string]string{
		"member_id": newOwnerID,
	}
	path := fmt.Sprintf("/documents/%s/permissions/transfer_owner", url.PathEscape(documentID))
	return c.call(ctx, http.MethodPost, path, reqBody, nil)
}
