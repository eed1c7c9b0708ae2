package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/poiesic/vellum"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/retry"
	"github.com/poiesic/vellum/session"
	"github.com/urfave/cli/v2"
)

func openEngine(c *cli.Context) (*vellum.Engine, error) {
	cfg, err := loadedConfig(c)
	if err != nil {
		return nil, err
	}
	engine, err := vellum.NewEngine(cfg, vellum.WithProgress(c.App.ErrWriter))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func interruptible(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

func importCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg := engine.Config()
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DatabaseDir)
	fmt.Fprintf(c.App.ErrWriter, "Knowledge model: %s @ %s\n", cfg.AI.KnowledgeModel, cfg.AI.KnowledgeHost)
	fmt.Fprintln(c.App.ErrWriter)

	ctx, cancel := interruptible(c)
	defer cancel()
	report, err := engine.Import(ctx, vellum.ImportRequest{
		InputPath:     c.String("input"),
		OutputDir:     c.String("output"),
		Provider:      c.String("provider"),
		ResumeSession: c.String("resume"),
		Limit:         c.Int("limit"),
		Debug:         c.Bool("debug"),
	})
	return finish(c, report, err)
}

func organizeCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg := engine.Config()
	fmt.Fprintf(c.App.ErrWriter, "Classifier model: %s @ %s\n", cfg.AI.ClassifierModel, cfg.AI.ClassifierHost)
	fmt.Fprintf(c.App.ErrWriter, "Categories: %v\n", cfg.AI.Categories)
	fmt.Fprintln(c.App.ErrWriter)

	ctx, cancel := interruptible(c)
	defer cancel()
	report, err := engine.Organize(ctx, vellum.OrganizeRequest{
		InputPath:     c.String("input"),
		OutputDir:     c.String("output"),
		ResumeSession: c.String("resume"),
		Limit:         c.Int("limit"),
		Debug:         c.Bool("debug"),
	})
	return finish(c, report, err)
}

// finish prints the run summary. A crashed run prints how to resume it.
func finish(c *cli.Context, report *vellum.RunReport, err error) error {
	theme := defaultTheme
	if err != nil {
		if report != nil && report.Session != nil {
			fmt.Fprintln(c.App.ErrWriter, theme.hintStyle().Render(
				fmt.Sprintf("Session %s can be resumed with --resume %s", report.Session.ID(), report.Session.ID())))
		}
		return err
	}
	return renderReport(c.App.Writer, theme, report)
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	sessionType := c.String("type")
	if _, err := core.ParsePhaseType(sessionType); err != nil {
		return err
	}
	manager, err := session.NewManager(cfg.SessionsDir)
	if err != nil {
		return err
	}

	if id := c.String("session"); id != "" {
		s, err := manager.Open(sessionType, id)
		if err != nil {
			return err
		}
		return renderManifest(c.App.Writer, defaultTheme, s.Manifest())
	}

	ids, err := manager.List(sessionType)
	if err != nil {
		return err
	}
	manifests := make([]session.Manifest, 0, len(ids))
	for _, id := range ids {
		s, err := manager.Open(sessionType, id)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "skipping %s: %v\n", id, err)
			continue
		}
		manifests = append(manifests, s.Manifest())
	}
	return renderSessions(c.App.Writer, defaultTheme, sessionType, manifests)
}

func newCoordinator(c *cli.Context) (*retry.Coordinator, error) {
	cfg, err := loadedConfig(c)
	if err != nil {
		return nil, err
	}
	return retry.NewCoordinator(cfg.SessionsDir)
}

func sessionArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one session id, got %d", c.NArg())
	}
	return c.Args().First(), nil
}

func retryListCommand(c *cli.Context) error {
	coordinator, err := newCoordinator(c)
	if err != nil {
		return err
	}
	infos, err := coordinator.GetSessionsWithErrors(c.Context)
	if err != nil {
		return err
	}
	return renderRetrySessions(c.App.Writer, defaultTheme, infos)
}

func retryPreviewCommand(c *cli.Context) error {
	id, err := sessionArg(c)
	if err != nil {
		return err
	}
	coordinator, err := newCoordinator(c)
	if err != nil {
		return err
	}
	preview, err := coordinator.PreviewRetry(id)
	if err != nil {
		return err
	}
	return renderPreview(c.App.Writer, defaultTheme, preview)
}

func retryRunCommand(c *cli.Context) error {
	id, err := sessionArg(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := interruptible(c)
	defer cancel()
	report, err := engine.Retry(ctx, id, vellum.ImportRequest{InputPath: c.String("input")})
	return finish(c, report, err)
}
