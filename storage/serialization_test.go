package storage

import (
	"testing"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalDocument(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 8000, time.UTC)
	doc := &core.Document{
		ItemID:       core.GenerateFileID([]byte("c"), "big.json#chunk-1"),
		SourcePath:   "big.json",
		Title:        "Big",
		Tags:         []string{"a"},
		Body:         "body",
		ParentItemID: core.GenerateFileID([]byte("c"), "big.json"),
		ChunkIndex:   1,
		TotalChunks:  3,
		CreatedAt:    created,
	}

	got, err := UnmarshalDocument(MarshalDocument(doc))
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestUnmarshalDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"unknown version", []byte{99, 1, 2}},
		{"truncated", MarshalDocument(&core.Document{Title: "long enough title"})[:5]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalDocument(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestMarshalUnmarshalCheckpoint(t *testing.T) {
	cp := &core.TransformCheckpoint{
		ItemID:             core.GenerateFileID([]byte("x"), "x.json"),
		Stage:              core.StageTransform,
		TransformedContent: "text",
		Category:           "notes",
	}
	got, err := UnmarshalCheckpoint(MarshalCheckpoint(cp))
	require.NoError(t, err)
	assert.Equal(t, cp, got)

	_, err = UnmarshalCheckpoint(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalFileID(t *testing.T) {
	id := core.GenerateFileID([]byte("x"), "x.json")
	got, err := UnmarshalFileID(MarshalFileID(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = UnmarshalFileID([]byte("short"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
