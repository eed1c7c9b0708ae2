package simplified

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/vellum/chunking"
	"github.com/poiesic/vellum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConversation(t *testing.T, dir, name string, conv Conversation) string {
	t.Helper()
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sampleConversation(id string, texts ...string) Conversation {
	conv := Conversation{ConversationID: id, Title: "Thread " + id}
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		ts := 1700000000.5 + float64(i)
		conv.Messages = append(conv.Messages, Message{Role: role, Text: text, CreateTime: &ts})
	}
	return conv
}

func collect(t *testing.T, e *Extractor, input string) []*core.ProcessingItem {
	t.Helper()
	var items []*core.ProcessingItem
	for item, err := range e.DiscoverRawItems(context.Background(), input) {
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func TestDiscoverRawItems(t *testing.T) {
	dir := t.TempDir()
	writeConversation(t, dir, "b.json", sampleConversation("b", "hi"))
	writeConversation(t, dir, "a.json", sampleConversation("a", "hello", "world"))
	writeConversation(t, dir, "nested/c.JSON", sampleConversation("c", "x"))
	writeConversation(t, dir, ".hidden/d.json", sampleConversation("d", "x"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	items := collect(t, New(), dir)
	require.Len(t, items, 4)

	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.SourcePath
	}
	assert.Equal(t, []string{"a.json", "b.json", "broken.json", "nested/c.JSON"}, paths)

	a := items[0]
	assert.Equal(t, core.GenerateFileID([]byte(a.Content), "a.json"), a.ItemID)
	assert.Equal(t, Name, a.Metadata.Provider)
	assert.Equal(t, "a", a.Metadata.ConversationID)
	assert.Equal(t, "Thread a", a.Metadata.Title)
	assert.Equal(t, 2, a.Metadata.MessageCount)

	broken := items[2]
	assert.Empty(t, broken.Metadata.ConversationID)
	assert.Equal(t, core.ItemPending, broken.Status)
}

func TestDiscoverRawItems_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConversation(t, dir, "only.json", sampleConversation("x", "hi"))

	items := collect(t, New(), path)
	require.Len(t, items, 1)
	assert.Equal(t, "only.json", items[0].SourcePath)
}

func TestDiscoverRawItems_IDsAreStable(t *testing.T) {
	dir := t.TempDir()
	writeConversation(t, dir, "a.json", sampleConversation("a", "hello"))

	first := collect(t, New(), dir)
	second := collect(t, New(), dir)
	assert.Equal(t, first[0].ItemID, second[0].ItemID)
}

func TestDiscoverRawItems_MissingInput(t *testing.T) {
	var got error
	for _, err := range New().DiscoverRawItems(context.Background(), filepath.Join(t.TempDir(), "missing")) {
		got = err
	}
	assert.ErrorIs(t, got, os.ErrNotExist)
}

func TestDiscoverRawItems_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeConversation(t, dir, "a.json", sampleConversation("a", "hello"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got error
	for _, err := range New().DiscoverRawItems(ctx, dir) {
		got = err
	}
	assert.ErrorIs(t, got, context.Canceled)
}

func TestBuildConversationForChunking(t *testing.T) {
	conv := sampleConversation("a", "hello", "", "again")
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	item := core.NewProcessingItem("a.json", data)

	got, err := New().BuildConversationForChunking(item)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	require.Len(t, got.Messages, 2, "messages without text are dropped")
	assert.Equal(t, "hello", got.Messages[0].Text)
	require.NotNil(t, got.Messages[0].CreateTime)
	assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), *got.Messages[0].CreateTime)
}

func TestBuildConversationForChunking_Errors(t *testing.T) {
	e := New()

	_, err := e.BuildConversationForChunking(core.NewProcessingItem("x.json", []byte("{not json")))
	assert.ErrorIs(t, err, ErrMalformedConversation)

	empty, _ := json.Marshal(Conversation{ConversationID: "e"})
	_, err = e.BuildConversationForChunking(core.NewProcessingItem("e.json", empty))
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestFormatChunk_RoundTrips(t *testing.T) {
	e := New()
	conv := sampleConversation("a", strings.Repeat("x", 40), strings.Repeat("y", 40), strings.Repeat("z", 40))
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	item := core.NewProcessingItem("a.json", data)

	parsed, err := e.BuildConversationForChunking(item)
	require.NoError(t, err)

	chunker, err := chunking.NewChunker(
		chunking.WithThreshold(100),
		chunking.WithOverlapMessages(1),
		chunking.WithFormatter(e.FormatChunk),
	)
	require.NoError(t, err)
	chunks, err := chunker.Split(item, parsed)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for i, chunk := range chunks {
		back, err := e.BuildConversationForChunking(chunk)
		require.NoError(t, err, "chunk %d must parse in the provider format", i)
		assert.Equal(t, "a", back.ID)
		assert.Equal(t, "Thread a", back.Title)
		assert.Equal(t, item.ItemID, chunk.Chunk.ParentItemID)
	}
}
