package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/engine"
	"github.com/fyrsmithlabs/convrag/internal/recovery"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reindexCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <docs.jsonl>",
	Short: "Chunk and index cleaned documents",
	Long: `Chunk and index documents from a JSON-lines file, one
{"content": ..., "metadata": {...}} object per line. Use - for stdin.

With recovery enabled the input is logged to
<recovery.dir>/<corpus>/cleaning.jsonl and the chunks to
<recovery.dir>/<corpus>/chunking.jsonl.

Examples:
  convrag ingest docs.jsonl
  cat docs.jsonl | convrag ingest --corpus handbook -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [chunking.jsonl]",
	Short: "Rebuild an index from a chunking recovery log",
	Long: `Add the chunks recorded in a chunking recovery log to the index without
chunking again. Useful after switching index backends or losing the index.

Without an argument the corpus's own log, <recovery.dir>/<corpus>/chunking.jsonl,
is replayed.

Examples:
  convrag reindex --corpus handbook
  convrag reindex --corpus handbook backup/handbook/chunking.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReindex,
}

func readDocuments(cmd *cobra.Command, path string) ([]document.Document, error) {
	if path == "-" {
		return document.ReadJSONL(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return document.ReadJSONL(f)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docs, err := readDocuments(cmd, args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents in %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	corpus, err := a.corpus(ctx)
	if err != nil {
		return err
	}
	sink, err := a.corpusLog(corpus)
	if err != nil {
		return err
	}
	if sink != nil {
		if err := sink.Append(ctx, recovery.StageCleaning, docs); err != nil {
			return fmt.Errorf("recording input: %w", err)
		}
	}
	stats, err := a.engine.Ingest(ctx, corpus, docs)
	if err != nil {
		return err
	}
	cmd.Printf("Ingested %d documents into %q: %d chunks (%s strategy)\n",
		stats.DocumentCount, corpus.ID, stats.ChunkCount, stats.Strategy)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	corpus, err := a.corpus(ctx)
	if err != nil {
		return err
	}
	path, err := reindexSource(a, corpus, args)
	if err != nil {
		return err
	}
	chunks, err := recovery.ReplayFile(path)
	if err != nil {
		return err
	}
	stats, err := a.engine.Restore(ctx, corpus, chunks)
	if err != nil {
		return err
	}
	cmd.Printf("Restored %d chunks from %d documents into %q\n", stats.ChunkCount, stats.DocumentCount, corpus.ID)
	return nil
}

// reindexSource picks the log to replay: the argument if given, else the
// corpus's own chunking log.
func reindexSource(a *app, corpus *engine.Corpus, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	sink, err := a.corpusLog(corpus)
	if err != nil {
		return "", err
	}
	if sink == nil {
		return "", errors.New("recovery is disabled; pass the chunking log to replay")
	}
	return sink.Path(recovery.StageChunking), nil
}
