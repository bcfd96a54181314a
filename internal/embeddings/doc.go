// Package embeddings generates vector embeddings for memory content.
//
// Providers share the Provider interface and are selected by config:
// "hash" (deterministic term-frequency hashing, no model download, the
// default), "fastembed" (local ONNX models, CGO builds only), and
// "openai"/"tei" (OpenAI-compatible HTTP endpoints via langchaingo,
// rate limited). Every provider reports its vector dimension so the
// index can size collections before the first write.
package embeddings
