package memory

import (
	"encoding/json"
	"time"
)

// Memory type conventions. Any non-empty string is accepted; these cover
// the common cases.
const (
	TypeGeneral     = "general"
	TypeFact        = "fact"
	TypeInsight     = "insight"
	TypeObservation = "observation"
)

// DefaultImportance is the importance assigned when none is given.
const DefaultImportance = 0.5

// Content is a minimal textual payload with free-form metadata.
type Content struct {
	// Text is the natural-language content.
	Text string `json:"text"`

	// Metadata carries additional key-value pairs.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the content was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewContent creates a Content with the creation time set.
func NewContent(text string) *Content {
	return &Content{
		Text:      text,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// RichContent extends Content with importance, typing, tags, access
// tracking, and an optional embedding vector.
type RichContent struct {
	Content

	// Importance weights the content in [0, 1]. Out-of-range values are
	// clamped on construction and on decode.
	Importance float64 `json:"importance"`

	// MemoryType tags the kind of content ("general", "fact", "insight", ...).
	MemoryType string `json:"memory_type"`

	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty"`

	// AccessCount is how many times the content has been recalled.
	AccessCount int `json:"access_count"`

	// LastAccessedAt is when the content was last recalled.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Embedding is an optional precomputed vector for similarity search.
	Embedding []float32 `json:"embedding,omitempty"`
}

// NewRichContent creates a RichContent with clamped importance.
// An empty memoryType defaults to "general".
func NewRichContent(text string, importance float64, memoryType string) *RichContent {
	if memoryType == "" {
		memoryType = TypeGeneral
	}
	return &RichContent{
		Content:    *NewContent(text),
		Importance: clampImportance(importance),
		MemoryType: memoryType,
	}
}

// Touch records an access: bumps the count and the access time.
func (c *RichContent) Touch() {
	c.AccessCount++
	c.LastAccessedAt = time.Now().UTC()
}

// WithTags returns the content with tags set, for chained construction.
func (c *RichContent) WithTags(tags ...string) *RichContent {
	c.Tags = tags
	return c
}

// UnmarshalJSON decodes rich content, clamping importance into [0, 1].
func (c *RichContent) UnmarshalJSON(data []byte) error {
	type alias RichContent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Importance = clampImportance(a.Importance)
	*c = RichContent(a)
	return nil
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
