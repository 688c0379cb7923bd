// Package main implements the convrag CLI: an HTTP server plus local
// ingest, ask and chat commands against the configured index.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML configuration file.
	configPath string
	// corpusID overrides index.collection.
	corpusID string
	// verbose keeps info logs on interactive commands.
	verbose bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "convrag",
	Short: "Conversational retrieval over your documents",
	Long: `convrag chunks and indexes documents, then answers questions about them
in a conversation. Follow-up questions the conversation already answers are
answered without retrieval; everything else is refined into a standalone
search query, retrieved, reranked and answered from the retrieved context.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&corpusID, "corpus", "", "corpus (index collection) to use; defaults to index.collection")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level on interactive commands")
}
