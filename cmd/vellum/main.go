// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/providers"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vellum",
		Usage: "Turn conversation exports into organized markdown knowledge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: <data dir>/" + config.FileName + " when present)",
				EnvVars: []string{"VELLUM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file; overrides the config file",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "Import a conversation export as markdown documents",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Export file or directory (optional when resuming)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for generated documents (default from config)",
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   fmt.Sprintf("Export format %v (default from config)", providers.Names()),
					},
					&cli.StringFlag{
						Name:  "resume",
						Usage: "Resume an unfinished import session by id",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after N extracted items (0 for no limit)",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Log per-item transform details",
					},
				},
			},
			{
				Name:   "organize",
				Usage:  "File markdown documents into category folders",
				Action: organizeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Directory of markdown documents (default: import output)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory receiving category folders (default: <data dir>/organized)",
					},
					&cli.StringFlag{
						Name:  "resume",
						Usage: "Resume an unfinished organize session by id",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Stop after N documents (0 for no limit)",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Log per-item details",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show sessions and their phase results",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Session type (import, organize)",
						Value:   "import",
					},
					&cli.StringFlag{
						Name:    "session",
						Aliases: []string{"s"},
						Usage:   "Show a single session",
					},
				},
			},
			{
				Name:  "retry",
				Usage: "Inspect and retry failed import items",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List import sessions with recorded errors",
						Action: retryListCommand,
					},
					{
						Name:      "preview",
						Usage:     "Show what a retry of a session would reprocess",
						ArgsUsage: "<session-id>",
						Action:    retryPreviewCommand,
					},
					{
						Name:      "run",
						Usage:     "Reprocess the failed items of a session in a new session",
						ArgsUsage: "<session-id>",
						Action:    retryRunCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "input",
								Aliases: []string{"i"},
								Usage:   "Export location (default: the source session's input)",
							},
						},
					},
				},
			},
			{
				Name:   "init",
				Usage:  "Write a default config file",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
			},
		},
	}
}

// configPath returns the explicit config path, or the default file when it
// exists.
func configPath(c *cli.Context) string {
	if path := c.String("config"); path != "" {
		return path
	}
	path := filepath.Join(config.DefaultDataDir(), config.FileName)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// setup loads the config and installs the default logger.
func setup(c *cli.Context) error {
	path := configPath(c)
	if c.Args().First() == "init" {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, cleanup := config.SetupLogger(cfg.LogFile, level)
	slog.SetDefault(logger)

	c.App.Metadata = map[string]any{configKey: cfg, "cleanup": cleanup}
	return nil
}

func teardown(c *cli.Context) error {
	if cleanup, ok := c.App.Metadata["cleanup"].(func() error); ok {
		return cleanup()
	}
	return nil
}

func loadedConfig(c *cli.Context) (*config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return nil, errors.New("config not loaded")
	}
	return cfg, nil
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), config.FileName)
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite): %w", path, fs.ErrExist)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
