//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned from every method when the binary
// was built without CGO; fastembed needs the ONNX runtime bindings.
var ErrFastEmbedUnavailable = errors.New("fastembed: unavailable in this build (compiled without CGO; use the hash, openai, or tei provider)")

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub in non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without CGO.
func NewFastEmbedProvider(FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedUnavailable
}

func (p *FastEmbedProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (p *FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (p *FastEmbedProvider) Dimensions() int { return 0 }

func (p *FastEmbedProvider) Close() error { return nil }
