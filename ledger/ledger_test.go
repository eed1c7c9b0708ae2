package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(path string) *core.ProcessingItem {
	return core.NewProcessingItem(path, []byte("content of "+path))
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestWriter_AppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import", FileName)
	w := NewWriter(path, "20260101_000000", core.PhaseImport)

	item := testItem("a.json")
	require.NoError(t, w.Append(NewRecord(item, core.StageExtract, "validate", StatusSuccess, 5*time.Millisecond)))
	require.NoError(t, w.Append(NewRecord(item, core.StageTransform, "extract_knowledge", StatusSuccess, time.Second)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, got, 2)

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(got[1]), &rec))
	assert.Equal(t, item.ItemID, rec.ItemID)
	assert.Equal(t, "20260101_000000", rec.SessionID)
	assert.Equal(t, core.PhaseImport, rec.Phase)
	assert.Equal(t, int64(1000), rec.TimingMS)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestWriter_OmitsUnsetOptionalFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	w := NewWriter(path, "s", core.PhaseImport)

	require.NoError(t, w.Append(NewRecord(testItem("a.json"), core.StageLoad, "write_document", StatusSuccess, 0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.NotContains(t, line, "null")
	for _, key := range []string{"skipped_reason", "before_chars", "diff_ratio", "is_chunked", "parent_item_id", "chunk_index", "extra"} {
		assert.NotContains(t, line, key)
	}
}

func TestWriter_RejectsIncompleteRecords(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), FileName), "s", core.PhaseImport)

	err := w.Append(Record{Stage: core.StageLoad, Step: "x", Status: StatusSuccess})
	assert.ErrorIs(t, err, ErrIncompleteRecord)

	err = w.Append(Record{ItemID: "0123456789ab", Stage: core.StageLoad, Step: "x", Status: "done"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestNewRecord_ChunkAndCharFields(t *testing.T) {
	item := testItem("a.json")
	item.Chunk = &core.ChunkInfo{Index: 2, Total: 3, ParentItemID: "0123456789ab"}

	rec := NewRecord(item, core.StageTransform, "extract_knowledge", StatusSuccess, 0).WithChars(200, 50)
	require.NotNil(t, rec.IsChunked)
	assert.True(t, *rec.IsChunked)
	assert.Equal(t, 2, *rec.ChunkIndex)
	assert.Equal(t, core.FileID("0123456789ab"), rec.ParentItemID)
	assert.InDelta(t, 0.25, *rec.DiffRatio, 1e-9)

	zero := NewRecord(item, core.StageTransform, "extract_knowledge", StatusSuccess, 0).WithChars(0, 10)
	assert.Nil(t, zero.DiffRatio)
}

func TestLoadCompletedItems_ResumeCorrectness(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	w := NewWriter(path, "s", core.PhaseImport)

	items := map[string]*core.ProcessingItem{}
	for _, name := range []string{"a", "b", "c", "d"} {
		items[name] = testItem(name + ".json")
	}

	// a, b and c succeed at transform; d only fails.
	// Other outcomes for the same ids must not change the answer.
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, w.Append(NewRecord(items[name], core.StageTransform, "extract_knowledge", StatusSuccess, 0)))
	}
	require.NoError(t, w.Append(NewRecord(items["a"], core.StageTransform, "extract_knowledge", StatusFailed, 0)))
	require.NoError(t, w.Append(NewRecord(items["b"], core.StageTransform, "extract_knowledge", StatusSkipped, 0)))
	require.NoError(t, w.Append(NewRecord(items["d"], core.StageTransform, "extract_knowledge", StatusFailed, 0)))
	require.NoError(t, w.Append(NewRecord(items["d"], core.StageLoad, "write_document", StatusSuccess, 0)))

	cache := LoadCompletedItems(path, core.StageTransform, nil)
	assert.Equal(t, 3, cache.Len())
	for _, name := range []string{"a", "b", "c"} {
		assert.True(t, cache.Contains(items[name].ItemID), name)
	}
	assert.False(t, cache.Contains(items["d"].ItemID))
	assert.Equal(t, core.StageTransform, cache.Stage())

	loadCache := LoadCompletedItems(path, core.StageLoad, nil)
	assert.Equal(t, []core.FileID{items["d"].ItemID}, loadCache.IDs())
}

func TestLoadCompletedItems_Resilience(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeLines(t, path,
		`{"item_id":"aaaaaaaaaaaa","stage":"transform","status":"success","step":"x"}`,
		`{"item_id":"bbbbbbbbbbbb","stage":"transform","status":"success"`,
		`not json at all`,
		`{"item_id":"cccccccccccc","stage":"transform"}`,
		`{"stage":"transform","status":"success"}`,
		`{"item_id":"","stage":"transform","status":"success"}`,
		`{"item_id":"dddddddddddd","stage":"load","status":"success"}`,
		`{"item_id":"eeeeeeeeeeee","stage":"transform","status":"failed"}`,
		``,
		`[1,2,3]`,
		`{"item_id":"ffffffffffff","stage":"transform","status":"success","timing_ms":"oops"}`,
		`{"item_id":"aaaaaaaaaaaa","stage":"transform","status":"success"}`,
	)

	cache := LoadCompletedItems(path, core.StageTransform, nil)
	assert.Equal(t, []core.FileID{"aaaaaaaaaaaa", "ffffffffffff"}, cache.IDs())
}

func TestWriter_TerminatesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	torn := `{"item_id":"aaaaaaaaaaaa","stage":"transform","status":"success","step":"x"}` + "\n" +
		`{"item_id":"bbbbbbbbbbbb","stage":"tra`
	require.NoError(t, os.WriteFile(path, []byte(torn), 0o644))

	item := testItem("c.json")
	w := NewWriter(path, "s", core.PhaseImport)
	require.NoError(t, w.Append(NewRecord(item, core.StageTransform, "extract_knowledge", StatusSuccess, 0)))

	cache := LoadCompletedItems(path, core.StageTransform, nil)
	assert.True(t, cache.Contains(item.ItemID))
	assert.True(t, cache.Contains("aaaaaaaaaaaa"))
	assert.False(t, cache.Contains("bbbbbbbbbbbb"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), 3)

	require.NoError(t, w.Append(NewRecord(testItem("d.json"), core.StageTransform, "extract_knowledge", StatusSuccess, 0)))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n\n", "an intact tail gets no extra newline")
}

func TestLoadCompletedItems_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	missing := LoadCompletedItems(filepath.Join(dir, "nope.jsonl"), core.StageExtract, nil)
	assert.Equal(t, 0, missing.Len())

	empty := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Equal(t, 0, LoadCompletedItems(empty, core.StageExtract, nil).Len())

	var nilCache *CompletedItemsCache
	assert.False(t, nilCache.Contains("aaaaaaaaaaaa"))
	assert.Equal(t, 0, nilCache.Len())
}

func TestCountDistinct(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeLines(t, path,
		`{"item_id":"aaaaaaaaaaaa","stage":"extract","status":"success"}`,
		`{"item_id":"aaaaaaaaaaaa","stage":"extract","status":"success"}`,
		`{"item_id":"bbbbbbbbbbbb","stage":"extract","status":"success"}`,
		`{"item_id":"cccccccccccc","stage":"extract","status":"failed"}`,
		`{"item_id":"dddddddddddd","stage":"load","status":"success"}`,
	)

	assert.Equal(t, 2, CountDistinct(path, core.StageExtract, StatusSuccess, nil))
	assert.Equal(t, 1, CountDistinct(path, core.StageExtract, StatusFailed, nil))
	assert.Equal(t, 0, CountDistinct(path, core.StageTransform, StatusSuccess, nil))
}

func TestRecords_SkipsUnusableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeLines(t, path,
		`{"item_id":"aaaaaaaaaaaa","stage":"extract","status":"success","step":"validate","filename":"a.json"}`,
		`garbage`,
		`{"item_id":"bbbbbbbbbbbb","stage":"load","status":"failed","step":"write_document","error":"disk full"}`,
	)

	var got []Record
	for rec := range Records(path, nil) {
		got = append(got, rec)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a.json", got[0].Filename)
	assert.Equal(t, StatusFailed, got[1].Status)
	assert.Equal(t, "disk full", got[1].Error)
}
