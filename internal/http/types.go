package http

import (
	"github.com/fyrsmithlabs/convrag/internal/conversation"
	"github.com/fyrsmithlabs/convrag/internal/document"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestRequest is the request body for POST /api/v1/corpora/:id/documents.
type IngestRequest struct {
	Documents []document.Document `json:"documents"`
}

// IngestResponse summarises an ingestion.
type IngestResponse struct {
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	Strategy      string `json:"strategy"`
}

// CorpusResponse is the response body for GET /api/v1/corpora/:id.
// IndexedChunks is -1 when the index cannot be counted.
type CorpusResponse struct {
	ID            string         `json:"id"`
	IndexedChunks int            `json:"indexed_chunks"`
	LastIngest    IngestResponse `json:"last_ingest"`
}

// ChunkView is a chunk as returned by the API.
type ChunkView struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// ChunksResponse is the response body for GET /api/v1/corpora/:id/chunks.
type ChunksResponse struct {
	Chunks []ChunkView `json:"chunks"`
}

// SearchRequest is the request body for POST /api/v1/corpora/:id/search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// SearchHit is one ranked chunk.
type SearchHit struct {
	ChunkView
	Score float32 `json:"score"`
}

// SearchResponse is the response body for POST /api/v1/corpora/:id/search.
type SearchResponse struct {
	Results      []SearchHit `json:"results"`
	Degradations []string    `json:"degradations,omitempty"`
}

// ChatRequest is the request body for POST /api/v1/corpora/:id/chat.
// With ConversationID set, history comes from the conversation store and
// History must be empty.
type ChatRequest struct {
	Question       string               `json:"question"`
	History        conversation.History `json:"history,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
}

// ChatResponse is the response body for POST /api/v1/corpora/:id/chat.
type ChatResponse struct {
	Answer         string           `json:"answer"`
	Sources        []map[string]any `json:"sources"`
	Route          string           `json:"route"`
	Degradations   []string         `json:"degradations,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

func chunkView(d document.Document) ChunkView {
	return ChunkView{Content: d.Content(), Metadata: d.Metadata()}
}
