package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// testApp returns the app with output captured and a config file rooted in
// a temp directory.
func testApp(t *testing.T) (*cli.App, *bytes.Buffer, *config.Config, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	path := filepath.Join(cfg.DataDir, config.FileName)
	require.NoError(t, cfg.Save(path))
	cfg.Normalize()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	return app, &out, cfg, path
}

func findFlag(flags []cli.Flag, name string) cli.Flag {
	for _, f := range flags {
		for _, n := range f.Names() {
			if n == name {
				return f
			}
		}
	}
	return nil
}

func findCommand(cmds []*cli.Command, name string) *cli.Command {
	for _, c := range cmds {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("global flags", func(t *testing.T) {
		for _, name := range []string{"config", "c", "log-level", "l", "log-file"} {
			assert.NotNil(t, findFlag(app.Flags, name), name)
		}
	})

	t.Run("status type defaults to import", func(t *testing.T) {
		status := findCommand(app.Commands, "status")
		require.NotNil(t, status)
		flag, ok := findFlag(status.Flags, "type").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "import", flag.Value)
	})

	t.Run("retry has list preview and run", func(t *testing.T) {
		retryCmd := findCommand(app.Commands, "retry")
		require.NotNil(t, retryCmd)
		for _, name := range []string{"list", "preview", "run"} {
			assert.NotNil(t, findCommand(retryCmd.Subcommands, name), name)
		}
	})

	t.Run("import input has no default value", func(t *testing.T) {
		importCmd := findCommand(app.Commands, "import")
		require.NotNil(t, importCmd)
		flag, ok := findFlag(importCmd.Flags, "input").(*cli.StringFlag)
		require.True(t, ok)
		assert.Empty(t, flag.Value)
	})
}

func TestSetup_InvalidLogLevel(t *testing.T) {
	app, _, _, path := testApp(t)
	err := app.Run([]string{"vellum", "--config", path, "--log-level", "loud", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestSetup_MissingConfigFile(t *testing.T) {
	app, _, _, _ := testApp(t)
	err := app.Run([]string{"vellum", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "status"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStatusCommand(t *testing.T) {
	app, out, cfg, path := testApp(t)

	require.NoError(t, app.Run([]string{"vellum", "--config", path, "status"}))
	assert.Contains(t, out.String(), "No import sessions")

	manager, err := session.NewManager(cfg.SessionsDir)
	require.NoError(t, err)
	s, err := manager.Create(string(core.PhaseImport), "simplified", session.CreateOptions{TotalFiles: 4})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, app.Run([]string{"vellum", "--config", path, "status"}))
	assert.Contains(t, out.String(), s.ID())

	out.Reset()
	require.NoError(t, app.Run([]string{"vellum", "--config", path, "status", "--session", s.ID()}))
	assert.Contains(t, out.String(), "provider: simplified")
	assert.Contains(t, out.String(), "files:    4")

	err = app.Run([]string{"vellum", "--config", path, "status", "--type", "export"})
	assert.ErrorIs(t, err, core.ErrUnknownPhase)
}

func TestRetryCommands(t *testing.T) {
	app, out, cfg, path := testApp(t)
	id := "20260301_120000"
	dir := filepath.Join(cfg.SessionsDir, string(core.PhaseImport), id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, fsutil.WriteJSONAtomic(filepath.Join(dir, session.ErrorsFileName), []session.ErrorEntry{{
		ItemID:     core.GenerateFileID([]byte("x"), "broken.json"),
		SourcePath: "broken.json",
		Filename:   "broken.json",
		Phase:      core.PhaseImport,
		Stage:      core.StageTransform,
		Step:       "extract_knowledge",
		Error:      "model unavailable",
	}}))

	require.NoError(t, app.Run([]string{"vellum", "--config", path, "retry", "list"}))
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "1 error(s)")

	out.Reset()
	require.NoError(t, app.Run([]string{"vellum", "--config", path, "retry", "preview", id}))
	assert.Contains(t, out.String(), "broken.json")
	assert.Contains(t, out.String(), "import/transform/extract_knowledge")

	err := app.Run([]string{"vellum", "--config", path, "retry", "preview"})
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	app, out, _, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "conf", config.FileName)

	require.NoError(t, app.Run([]string{"vellum", "--config", path, "init"}))
	assert.Contains(t, out.String(), "Wrote "+path)
	_, err := config.Load(path)
	require.NoError(t, err)

	err = app.Run([]string{"vellum", "--config", path, "init"})
	assert.ErrorIs(t, err, os.ErrExist)

	require.NoError(t, app.Run([]string{"vellum", "--config", path, "init", "--force"}))
}
