//go:build cgo

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/convrag/internal/embeddings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var forceDownload bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&forceDownload, "force", "f", false, "re-download even if the ONNX runtime exists")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Install the ONNX runtime for local embeddings",
	Long: `Download the ONNX runtime library the fastembed embedding provider needs.
The library is installed to ~/.config/convrag/lib/ unless ONNX_PATH points
at an existing one.

Examples:
  convrag init
  convrag init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, _ []string) error {
	if path := embeddings.ONNXLibraryPath(); path != "" {
		if !forceDownload {
			cmd.Printf("ONNX runtime already installed at: %s\n", path)
			cmd.Println("Use --force to re-download.")
			return nil
		}
		if os.Getenv("ONNX_PATH") == "" {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing %s: %w", path, err)
			}
		}
	}

	cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.ONNXRuntimeVersion)
	path, err := embeddings.EnsureONNXRuntime(cmd.Context(), zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to install ONNX runtime: %w", err)
	}
	cmd.Printf("Installed ONNX runtime to: %s\n", filepath.Clean(path))
	return nil
}
