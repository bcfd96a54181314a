package main

import (
	"fmt"
	"os"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// initCmd installs local dependencies for on-device embeddings
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Install the ONNX runtime for local embeddings",
	Long: `Install the ONNX runtime shared library that the fastembed embedding
provider loads at startup. The server does this on first run; init does it
ahead of time, for machines that block downloads at runtime.

The library lands under ~/.config/memoryd/lib unless ONNX_PATH points
elsewhere.`,
	RunE: runInit,
}

// runInit handles the init command
func runInit(cmd *cobra.Command, args []string) error {
	if embeddings.ONNXRuntimeExists() {
		fmt.Printf("ONNX runtime already installed at %s\n", embeddings.ONNXLibraryPath())
		return nil
	}

	fmt.Fprintf(os.Stderr, "[memctl] Downloading ONNX runtime to %s...\n", embeddings.ONNXLibraryPath())

	path, err := embeddings.EnsureONNXRuntime(cmd.Context(), zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to install ONNX runtime: %w", err)
	}

	fmt.Printf("ONNX runtime installed at %s\n", path)
	return nil
}
