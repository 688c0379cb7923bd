package http

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/convrag/internal/engine"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
)

// Registry hands out one Corpus per ID, opening its index on first use.
type Registry struct {
	provider vectorstore.Provider

	mu      sync.Mutex
	corpora map[string]*registered
}

type registered struct {
	corpus *engine.Corpus

	// ingest serializes ingestion into the corpus.
	ingest sync.Mutex
}

// NewRegistry creates a Registry backed by provider.
func NewRegistry(provider vectorstore.Provider) *Registry {
	return &Registry{provider: provider, corpora: make(map[string]*registered)}
}

// Corpus returns the corpus for id, opening the index if needed.
func (r *Registry) Corpus(ctx context.Context, id string) (*engine.Corpus, error) {
	reg, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return reg.corpus, nil
}

// WithIngestLock runs fn while holding id's ingestion lock.
func (r *Registry) WithIngestLock(ctx context.Context, id string, fn func(*engine.Corpus) error) error {
	reg, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	reg.ingest.Lock()
	defer reg.ingest.Unlock()
	return fn(reg.corpus)
}

// IDs returns the IDs opened so far.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.corpora))
	for id := range r.corpora {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) get(ctx context.Context, id string) (*registered, error) {
	if err := vectorstore.ValidateCollectionName(id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.corpora[id]; ok {
		return reg, nil
	}
	idx, err := r.provider.Index(ctx, id)
	if err != nil {
		return nil, err
	}
	reg := &registered{corpus: engine.NewCorpus(id, idx)}
	r.corpora[id] = reg
	return reg, nil
}
