// Package recovery writes append-only JSON-lines logs of pipeline output so
// a corpus can be rebuilt without re-running earlier stages.
package recovery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/google/uuid"
)

// Stage names.
const (
	StageChunking = "chunking"
	StageCleaning = "cleaning"
)

var (
	stagePattern  = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)
	corpusPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,62}$`)
)

var (
	// ErrInvalidStage is returned for stage names that are not safe file names.
	ErrInvalidStage = errors.New("invalid recovery stage")

	// ErrInvalidCorpus is returned for corpus IDs that are not safe directory names.
	ErrInvalidCorpus = errors.New("invalid recovery corpus")
)

// Entry is one line of a recovery log.
type Entry struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Sink receives documents produced by a pipeline stage.
type Sink interface {
	Append(ctx context.Context, stage string, docs []document.Document) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Append(context.Context, string, []document.Document) error { return nil }

// FileSink appends to <dir>/<stage>.jsonl. Safe for concurrent use.
// Sinks returned by Corpus share the parent's lock.
type FileSink struct {
	dir string
	mu  *sync.Mutex
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("recovery dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating recovery dir: %w", err)
	}
	return &FileSink{dir: dir, mu: &sync.Mutex{}}, nil
}

// Corpus returns a sink writing to <dir>/<id>/<stage>.jsonl, so logs of
// different corpora never mix. The directory is created on first append.
func (s *FileSink) Corpus(id string) (*FileSink, error) {
	if !corpusPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCorpus, id)
	}
	return &FileSink{dir: filepath.Join(s.dir, id), mu: s.mu}, nil
}

// Path returns the log file for stage.
func (s *FileSink) Path(stage string) string {
	return filepath.Join(s.dir, stage+".jsonl")
}

// Append writes one entry per document with a freshly generated ID.
func (s *FileSink) Append(ctx context.Context, stage string, docs []document.Document) error {
	if !stagePattern.MatchString(stage) {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("creating recovery dir: %w", err)
	}
	f, err := os.OpenFile(s.Path(stage), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening recovery log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := Entry{ID: uuid.NewString(), Content: d.Content(), Metadata: d.Metadata()}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encoding recovery entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing recovery log: %w", err)
	}
	return f.Sync()
}

// Replay reads a recovery log back into documents.
func Replay(r io.Reader) ([]document.Document, error) {
	dec := json.NewDecoder(r)
	var docs []document.Document
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding recovery entry %d: %w", len(docs)+1, err)
		}
		docs = append(docs, document.New(e.Content, e.Metadata))
	}
}

// ReplayFile opens path and calls Replay.
func ReplayFile(path string) ([]document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Replay(f)
}
