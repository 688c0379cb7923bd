// Package document defines the immutable text-plus-metadata unit that flows
// through chunking, indexing and retrieval.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Metadata keys set by convrag. Everything else in a document's metadata is
// supplied by the host and carried through untouched.
const (
	KeySourceID      = "source_id"
	KeyChunkStrategy = "chunk_strategy"
	KeyChunkIndex    = "chunk_index"
	KeyChunkID       = "chunk_id"
	KeyParentID      = "parent_id"
)

// Document is a piece of text with provenance metadata. The zero value is an
// empty document. Documents are values; no method mutates the receiver.
type Document struct {
	content  string
	metadata map[string]any
}

// New returns a Document owning a copy of metadata.
func New(content string, metadata map[string]any) Document {
	return Document{content: content, metadata: maps.Clone(metadata)}
}

// Content returns the document text.
func (d Document) Content() string {
	return d.content
}

// Metadata returns a copy of the metadata; callers may modify it freely.
func (d Document) Metadata() map[string]any {
	m := maps.Clone(d.metadata)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// Get returns a single metadata value.
func (d Document) Get(key string) (any, bool) {
	v, ok := d.metadata[key]
	return v, ok
}

// String returns a metadata value formatted as a string, or "".
func (d Document) String(key string) string {
	v, ok := d.metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// With returns a copy of d with extra metadata merged over the existing keys.
func (d Document) With(extra map[string]any) Document {
	m := maps.Clone(d.metadata)
	if m == nil {
		m = make(map[string]any, len(extra))
	}
	maps.Copy(m, extra)
	return Document{content: d.content, metadata: m}
}

// ID returns the chunk ID if set, else the source ID, else a content hash.
func (d Document) ID() string {
	if id := d.String(KeyChunkID); id != "" {
		return id
	}
	if id := d.String(KeySourceID); id != "" {
		return id
	}
	return ContentHash(d.content)
}

// ContentHash returns a short stable hash of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// NewChunk derives a chunk of parent. The chunk inherits all of parent's
// metadata and gains strategy, position, a fresh ID and the parent's ID.
func NewChunk(parent Document, content, strategy string, index int) Document {
	parentID := parent.String(KeySourceID)
	if parentID == "" {
		parentID = ContentHash(parent.content)
	}
	return parent.With(map[string]any{
		KeyChunkStrategy: strategy,
		KeyChunkIndex:    index,
		KeyChunkID:       uuid.NewString(),
		KeyParentID:      parentID,
	}).withContent(content)
}

func (d Document) withContent(content string) Document {
	d.content = content
	return d
}

type wireDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON encodes the document as {"content": ..., "metadata": {...}}.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDocument{Content: d.content, Metadata: d.metadata})
}

// UnmarshalJSON decodes the format written by MarshalJSON. "page_content" is
// accepted as an alias for "content".
func (d *Document) UnmarshalJSON(data []byte) error {
	var w struct {
		wireDocument
		PageContent *string `json:"page_content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Content == "" && w.PageContent != nil {
		w.Content = *w.PageContent
	}
	*d = Document{content: w.Content, metadata: w.Metadata}
	return nil
}
