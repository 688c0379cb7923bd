package engine

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
)

// sampleSize is how many chunks of the last ingest a Corpus remembers.
const sampleSize = 50

// IngestStats summarises one ingestion.
type IngestStats struct {
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	Strategy      string    `json:"strategy"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Corpus is a handle on one document collection and its index.
type Corpus struct {
	ID    string
	Index vectorstore.Index

	mu     sync.RWMutex
	stats  IngestStats
	sample []document.Document
}

// NewCorpus returns a handle for idx.
func NewCorpus(id string, idx vectorstore.Index) *Corpus {
	return &Corpus{ID: id, Index: idx}
}

// Stats returns the last ingestion's summary.
func (c *Corpus) Stats() IngestStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Sample returns up to n chunks from the last ingestion, in chunk order.
func (c *Corpus) Sample(n int) []document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n = max(0, min(n, len(c.sample)))
	return append([]document.Document(nil), c.sample[:n]...)
}

func (c *Corpus) record(stats IngestStats, chunks []document.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
	c.sample = append([]document.Document(nil), chunks[:min(sampleSize, len(chunks))]...)
}
