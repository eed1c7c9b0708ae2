package badger

import (
	"context"
	"testing"

	"github.com/poiesic/vellum/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository_SaveLoad(t *testing.T) {
	_, repo := newTestRepos(t)
	ctx := context.Background()
	id := core.GenerateFileID([]byte("body"), "a.json")

	missing, err := repo.LoadCheckpoint(ctx, id, core.StageTransform)
	require.NoError(t, err)
	assert.Nil(t, missing)

	cp := &core.TransformCheckpoint{
		ItemID:             id,
		Stage:              core.StageTransform,
		TransformedContent: "# Notes\n",
		Title:              "Notes",
	}
	require.NoError(t, repo.SaveCheckpoint(ctx, cp))
	assert.False(t, cp.UpdatedAt.IsZero())

	got, err := repo.LoadCheckpoint(ctx, id, core.StageTransform)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "# Notes\n", got.TransformedContent)
	assert.Equal(t, "Notes", got.Title)

	other, err := repo.LoadCheckpoint(ctx, id, core.StageLoad)
	require.NoError(t, err)
	assert.Nil(t, other, "checkpoints are per stage")
}

func TestCheckpointRepository_Delete(t *testing.T) {
	_, repo := newTestRepos(t)
	ctx := context.Background()
	id := core.GenerateFileID([]byte("body"), "a.json")

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.TransformCheckpoint{ItemID: id, Stage: core.StageTransform}))
	require.NoError(t, repo.DeleteCheckpoint(ctx, id, core.StageTransform))
	got, err := repo.LoadCheckpoint(ctx, id, core.StageTransform)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, repo.DeleteCheckpoint(ctx, id, core.StageTransform))
}
