// Package bridge wires the full upload pipeline: wiki-link resolution,
// preprocessing, remote conversion, reconciliation, planning, execution,
// attachment, and callout rewriting, plus the upload history that makes
// repeated runs update a document instead of duplicating it.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	"github.com/mdbridge/mdbridge/internal/remote"
)

// ReferencedDocument records a secondary document created while resolving a
// wiki-link.
type ReferencedDocument struct {
	Title string `json:"title"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

// UploadRecord is one entry of the upload history.
type UploadRecord struct {
	Title                string               `json:"title"`
	URL                  string               `json:"url"`
	Token                string               `json:"token"`
	UploadedAt           time.Time            `json:"uploaded_at"`
	ContentHash          string               `json:"content_hash,omitempty"`
	Permissions          *remote.Permissions  `json:"permissions,omitempty"`
	ReferencedDocuments  []ReferencedDocument `json:"referenced_documents,omitempty"`
	IsReferencedDocument bool                 `json:"is_referenced_document,omitempty"`
}

// Key returns the slugified title used to compare records. Titles differing
// only in case or punctuation identify the same document.
func (r *UploadRecord) Key() string {
	return slug.Make(r.Title)
}

// History is the persisted list of upload records, stored as a JSON array.
type History struct {
	path    string
	records []*UploadRecord
}

// LoadHistory reads the history file, returning an empty history when the
// file does not exist yet.
func LoadHistory(path string) (*History, error) {
	history := &History{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return history, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read upload history: %w", err)
	}
	if err := json.Unmarshal(data, &history.records); err != nil {
		return nil, fmt.Errorf("corrupted upload history %q: %w", path, err)
	}
	return history, nil
}

// Save writes the history back to disk.
func (h *History) Save() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(h.records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0644)
}

// Records returns the records in insertion order.
func (h *History) Records() []*UploadRecord {
	return h.records
}

// Find returns the record matching a title, or nil.
func (h *History) Find(title string) *UploadRecord {
	key := slug.Make(title)
	for _, record := range h.records {
		if record.Key() == key {
			return record
		}
	}
	return nil
}

// FindPrimary returns the record matching a title that was uploaded
// directly, not as a side effect of resolving a wiki-link.
func (h *History) FindPrimary(title string) *UploadRecord {
	record := h.Find(title)
	if record == nil || record.IsReferencedDocument {
		return nil
	}
	return record
}

// Upsert adds a record, replacing any existing record with the same key.
func (h *History) Upsert(record *UploadRecord) {
	for i, existing := range h.records {
		if existing.Key() == record.Key() {
			h.records[i] = record
			return
		}
	}
	h.records = append(h.records, record)
}

// Delete removes the record matching a title and returns it, or nil when
// the title is unknown. Deleting the remote document is the caller's job.
func (h *History) Delete(title string) *UploadRecord {
	key := slug.Make(title)
	for i, record := range h.records {
		if record.Key() == key {
			h.records = append(h.records[:i], h.records[i+1:]...)
			return record
		}
	}
	return nil
}
