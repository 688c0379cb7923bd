// Package vectorstore provides the similarity indexes convrag retrieves from.
//
// A Provider owns a connection (an embedded chromem-go database or a Qdrant
// gRPC client) and hands out one Index per corpus. Indexes embed text with
// the Embedder they were opened with, so callers only deal in documents and
// query strings.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/convrag/internal/document"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the backing service is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is a search hit. Score is cosine similarity; higher is closer.
type Match struct {
	Document document.Document
	Score    float32
}

// Index is a single corpus' similarity index.
type Index interface {
	// AddDocuments embeds and stores docs. Re-adding a document with the same
	// ID replaces it.
	AddDocuments(ctx context.Context, docs []document.Document) error

	// SimilaritySearch returns up to k matches ordered by descending score.
	SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Provider opens indexes by collection name.
type Provider interface {
	Index(ctx context.Context, collection string) (Index, error)
	Close() error
}

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,62}$`)

// ValidateCollectionName checks name is usable by every backend.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-63 chars of letters, digits, '_' or '-'", ErrInvalidCollectionName, name)
	}
	return nil
}
