package remote

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mdbridge/mdbridge/internal/core"
	"github.com/mdbridge/mdbridge/internal/helpers"
	"github.com/mdbridge/mdbridge/internal/medias"
)

// AttachImages uploads the image payloads and binds each one to a created
// image block. Pairing is ordinal: the conversion emits image blocks in
// source order and ExecutePlan preserves creation order, so the i-th created
// image block receives the i-th payload. When a mirror is configured, every
// uploaded asset is also copied there, keyed by content hash.
func (e *Executor) AttachImages(ctx context.Context, documentID string, images []Created, payloads []medias.Payload, mirror core.Mirror) error {
	logger := core.CurrentLogger()
	if len(images) != len(payloads) {
		logger.Warnf("Found %d image blocks for %d local images, pairing by position", len(images), len(payloads))
	}

	count := len(images)
	if len(payloads) < count {
		count = len(payloads)
	}
	for i := 0; i < count; i++ {
		created := images[i]
		payload := payloads[i]

		var token string
		err := e.retry(ctx, "asset upload", func(ctx context.Context) error {
			var err error
			token, err = e.api.UploadAsset(ctx, payload.FileName, payload.Data, documentID)
			return err
		})
		if err != nil {
			return fmt.Errorf("unable to upload %s: %w", payload.FileName, err)
		}

		dimensions := payload.DisplayDimensions()
		err = e.retry(ctx, "image block patch", func(ctx context.Context) error {
			return e.api.PatchImageBlock(ctx, documentID, created.ID, token, dimensions.Width, dimensions.Height)
		})
		if err != nil {
			return fmt.Errorf("unable to bind image %s to block %s: %w", payload.FileName, created.ID, err)
		}
		logger.Debugf("Attached %s (%s) to block %s", payload.FileName, dimensions, created.ID)

		if mirror != nil {
			key := filepath.Join("assets", helpers.Hash(payload.Data)+filepath.Ext(payload.FileName))
			if err := mirror.PutObject(key, payload.Data); err != nil {
				logger.Warnf("Unable to mirror %s: %v", payload.FileName, err)
			}
		}
	}
	return nil
}
