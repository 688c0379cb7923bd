//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// ONNXRuntimeVersion must match the onnxruntime_go version fastembed-go
// links against.
const ONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX build.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

var onnxArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func onnxArchive(goos, goarch string) (string, error) {
	if a, ok := onnxArchives[goos+"/"+goarch]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "convrag", "lib")
}

// ONNXLibraryPath returns ONNX_PATH if set, else the managed install if it
// exists, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// EnsureONNXRuntime makes the ONNX runtime available to fastembed-go,
// downloading it into the managed directory when missing.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if p := ONNXLibraryPath(); p != "" {
		return p, os.Setenv("ONNX_PATH", p)
	}

	logger.Info("downloading ONNX runtime",
		zap.String("version", ONNXRuntimeVersion),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
	)
	if err := downloadONNXRuntime(ctx, ONNXRuntimeVersion, onnxInstallDir()); err != nil {
		return "", fmt.Errorf("downloading ONNX runtime (set ONNX_PATH to use a local copy): %w", err)
	}

	p := ONNXLibraryPath()
	if p == "" {
		return "", errors.New("ONNX runtime download completed but library not found")
	}
	return p, os.Setenv("ONNX_PATH", p)
}

func downloadONNXRuntime(ctx context.Context, version, destDir string) error {
	platform, err := onnxArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, version, platform, version), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	return extractLibraries(resp.Body, destDir, prefix, onnxLibraryName(runtime.GOOS))
}

// extractLibraries copies every file under prefix in the tarball into
// destDir and fails if libName was not among them.
func extractLibraries(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}
		filename := filepath.Base(name)
		dest := filepath.Join(destDir, filename)

		switch header.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if filename == libName || strings.HasPrefix(filename, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
