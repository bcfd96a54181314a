package memory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContent(t *testing.T) {
	c := NewContent("hello")
	assert.Equal(t, "hello", c.Text)
	assert.NotNil(t, c.Metadata)
	assert.WithinDuration(t, time.Now(), c.CreatedAt, time.Second)
}

func TestNewRichContent(t *testing.T) {
	tests := []struct {
		name           string
		importance     float64
		memoryType     string
		wantImportance float64
		wantType       string
	}{
		{name: "in range", importance: 0.8, memoryType: TypeFact, wantImportance: 0.8, wantType: TypeFact},
		{name: "clamped high", importance: 1.5, memoryType: TypeInsight, wantImportance: 1.0, wantType: TypeInsight},
		{name: "clamped low", importance: -0.3, memoryType: TypeObservation, wantImportance: 0.0, wantType: TypeObservation},
		{name: "empty type defaults", importance: 0.5, memoryType: "", wantImportance: 0.5, wantType: TypeGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRichContent("text", tt.importance, tt.memoryType)
			assert.InDelta(t, tt.wantImportance, rc.Importance, 1e-9)
			assert.Equal(t, tt.wantType, rc.MemoryType)
			assert.Zero(t, rc.AccessCount)
		})
	}
}

func TestRichContent_Touch(t *testing.T) {
	rc := NewRichContent("text", 0.5, TypeGeneral)
	require.Zero(t, rc.AccessCount)
	require.True(t, rc.LastAccessedAt.IsZero())

	rc.Touch()
	rc.Touch()

	assert.Equal(t, 2, rc.AccessCount)
	assert.WithinDuration(t, time.Now(), rc.LastAccessedAt, time.Second)
}

func TestRichContent_WithTags(t *testing.T) {
	rc := NewRichContent("text", 0.5, TypeGeneral).WithTags("infra", "flaky")
	assert.Equal(t, []string{"infra", "flaky"}, rc.Tags)
}

func TestRichContent_UnmarshalClampsImportance(t *testing.T) {
	var rc RichContent
	require.NoError(t, json.Unmarshal([]byte(`{"text":"t","importance":7.5,"memory_type":"fact"}`), &rc))
	assert.InDelta(t, 1.0, rc.Importance, 1e-9)
	assert.Equal(t, TypeFact, rc.MemoryType)
	assert.Equal(t, "t", rc.Text)
}

func TestRichContent_RoundTrip(t *testing.T) {
	rc := NewRichContent("lesson learned", 0.9, TypeInsight).WithTags("ci")
	rc.Touch()

	data, err := json.Marshal(rc)
	require.NoError(t, err)

	var got RichContent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rc.Text, got.Text)
	assert.InDelta(t, rc.Importance, got.Importance, 1e-9)
	assert.Equal(t, rc.Tags, got.Tags)
	assert.Equal(t, 1, got.AccessCount)
}
