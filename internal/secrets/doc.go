// Package secrets detects and redacts secrets in memory content using
// the Gitleaks ruleset.
//
// Content is scrubbed before persistence and before tool output leaves
// the daemon. Detected secrets are replaced with [REDACTED:<rule>]
// markers that keep surrounding text intact, so embeddings and keyword
// search stay useful. A TOML allowlist can exempt known-safe patterns.
package secrets
