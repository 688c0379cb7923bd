package recovery

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_AppendWritesOneLinePerDocument(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	docs := []document.Document{
		document.New("alpha", map[string]any{"source_id": "a"}),
		document.New("beta <b>", nil),
	}
	require.NoError(t, sink.Append(context.Background(), StageChunking, docs))
	require.NoError(t, sink.Append(context.Background(), StageChunking, docs[:1]))

	f, err := os.Open(sink.Path(StageChunking))
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Content)
	assert.Equal(t, "a", entries[0].Metadata["source_id"])
	assert.Equal(t, "beta <b>", entries[1].Content)
	assert.NotEqual(t, entries[0].ID, entries[2].ID)
}

func TestFileSink_EmptyBatchCreatesNothing(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sink.Append(context.Background(), StageChunking, nil))
	_, err = os.Stat(sink.Path(StageChunking))
	assert.True(t, os.IsNotExist(err))
}

func TestFileSink_RejectsUnsafeStage(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	for _, stage := range []string{"", "../etc", "Chunking", "a/b"} {
		err := sink.Append(context.Background(), stage, []document.Document{document.New("x", nil)})
		assert.ErrorIs(t, err, ErrInvalidStage, stage)
	}
}

func TestFileSink_CorpusKeepsLogsApart(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	a, err := sink.Corpus("a")
	require.NoError(t, err)
	b, err := sink.Corpus("b")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Append(ctx, StageChunking, []document.Document{document.New("from a", nil)}))
	require.NoError(t, b.Append(ctx, StageChunking, []document.Document{document.New("from b", nil)}))

	assert.Equal(t, filepath.Join(dir, "b", "chunking.jsonl"), b.Path(StageChunking))
	docs, err := ReplayFile(b.Path(StageChunking))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "from b", docs[0].Content())

	_, err = os.Stat(sink.Path(StageChunking))
	assert.True(t, os.IsNotExist(err))
}

func TestFileSink_CorpusRejectsUnsafeID(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../other", "a/b", "-lead"} {
		_, err := sink.Corpus(id)
		assert.ErrorIs(t, err, ErrInvalidCorpus, id)
	}
}

func TestFileSink_ConcurrentAppends(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs := []document.Document{document.New("x", nil), document.New("y", nil)}
			assert.NoError(t, sink.Append(context.Background(), StageCleaning, docs))
		}()
	}
	wg.Wait()

	docs, err := ReplayFile(sink.Path(StageCleaning))
	require.NoError(t, err)
	assert.Len(t, docs, 16)
}

func TestReplay_RestoresDocuments(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	in := []document.Document{
		document.New("one", map[string]any{"chunk_strategy": "recursive"}),
		document.New("two", nil),
	}
	require.NoError(t, sink.Append(context.Background(), StageChunking, in))

	out, err := ReplayFile(sink.Path(StageChunking))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "one", out[0].Content())
	assert.Equal(t, "recursive", out[0].String("chunk_strategy"))
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	assert.NoError(t, s.Append(context.Background(), "anything", nil))
}
