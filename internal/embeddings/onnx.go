package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion matches the onnxruntime bindings pinned in
// go.mod; bump them together.
const DefaultONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform reports an OS/arch with no ONNX runtime build.
var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

const onnxReleaseURLTemplate = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// onnxPlatforms maps GOOS/GOARCH to ONNX release archive names.
var onnxPlatforms = map[string]map[string]string{
	"linux": {
		"amd64": "linux-x64",
		"arm64": "linux-aarch64",
	},
	"darwin": {
		"amd64": "osx-x86_64",
		"arm64": "osx-arm64",
	},
}

// onnxLibraryNames maps GOOS to the shared library filename.
var onnxLibraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func onnxPlatformArchive(goos, goarch string) (string, error) {
	archMap, ok := onnxPlatforms[goos]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	arch, ok := archMap[goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return arch, nil
}

func onnxLibraryName(goos string) string {
	if name, ok := onnxLibraryNames[goos]; ok {
		return name
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "memoryd", "lib")
}

// ONNXLibraryPath returns the ONNX runtime library path, preferring the
// ONNX_PATH override, then the managed install under
// ~/.config/memoryd/lib. Empty when not installed.
func ONNXLibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}

	managed := filepath.Join(onnxInstallDir(), onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// ONNXRuntimeExists reports whether the ONNX runtime is installed.
func ONNXRuntimeExists() bool {
	return ONNXLibraryPath() != ""
}

// DownloadONNXRuntime fetches the runtime for the current platform into
// the managed install directory. An empty version means
// DefaultONNXRuntimeVersion.
func DownloadONNXRuntime(ctx context.Context, version string) error {
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	return downloadONNXRuntimeTo(ctx, version, onnxInstallDir())
}

func downloadONNXRuntimeTo(ctx context.Context, version, destDir string) error {
	platform, err := onnxPlatformArchive(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	url := fmt.Sprintf(onnxReleaseURLTemplate, version, platform, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := extractONNXArchive(resp.Body, destDir, version, platform); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// extractONNXArchive pulls everything under the archive's lib/
// directory, including the versioned library files and their symlinks.
func extractONNXArchive(r io.Reader, destDir, version, platform string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	libPrefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	libName := onnxLibraryName(runtime.GOOS)

	var foundLib bool
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, libPrefix) || header.Typeflag == tar.TypeDir {
			continue
		}

		filename := filepath.Base(name)
		destPath := filepath.Join(destDir, filename)

		if header.Typeflag == tar.TypeSymlink {
			os.Remove(destPath)
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				// The target file is extracted too, so a failed
				// symlink is not fatal.
				continue
			}
			if filename == libName {
				foundLib = true
			}
			continue
		}

		outFile, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", filename, err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("writing file %s: %w", filename, err)
		}
		outFile.Close()

		if filename == libName || strings.HasPrefix(filename, libName+".") {
			foundLib = true
		}
	}

	if !foundLib {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

// EnsureONNXRuntime makes the ONNX runtime available, downloading it on
// first use, and returns the library path. fastembed locates the
// library through the ONNX_PATH environment variable, which this sets.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path := ONNXLibraryPath()
	if path == "" {
		logger.Info("downloading ONNX runtime",
			zap.String("version", DefaultONNXRuntimeVersion),
			zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

		if err := DownloadONNXRuntime(ctx, ""); err != nil {
			return "", fmt.Errorf("downloading ONNX runtime: %w (run 'memctl init' to install manually, or set ONNX_PATH)", err)
		}

		path = ONNXLibraryPath()
		if path == "" {
			return "", fmt.Errorf("ONNX runtime downloaded but library not found")
		}
		logger.Info("installed ONNX runtime", zap.String("path", path))
	}

	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return path, nil
}
