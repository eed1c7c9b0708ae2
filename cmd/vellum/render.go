package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/poiesic/vellum"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/retry"
	"github.com/poiesic/vellum/session"
)

// Theme holds the colors used for terminal output.
type Theme struct {
	Title   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Title:   lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Warning: lipgloss.Color("#FFAF00"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Title).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error)
}

// statusStyle colors a phase or session status.
func (t Theme) statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusCompleted:
		return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
	case session.StatusPartial, session.StatusInProgress:
		return lipgloss.NewStyle().Foreground(t.Warning)
	case session.StatusFailed, session.StatusCrashed:
		return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	default:
		return lipgloss.NewStyle()
	}
}

func renderReport(w io.Writer, t Theme, report *vellum.RunReport) error {
	if report == nil || report.Result == nil {
		return nil
	}
	r := report.Result
	status := session.StatusCompleted
	if stats := report.Session.PhaseStats(r.Phase); stats != nil {
		status = stats.Status
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", t.titleStyle().Render("Session "+report.Session.ID()), t.statusStyle(status).Render(status))
	fmt.Fprintf(&b, "  phase:     %s\n", r.Phase)
	fmt.Fprintf(&b, "  processed: %d\n", r.Processed)
	fmt.Fprintf(&b, "  failed:    %d\n", r.Failed)
	fmt.Fprintf(&b, "  skipped:   %d\n", r.Skipped)
	if r.Unfinished > 0 {
		fmt.Fprintf(&b, "  pending:   %d\n", r.Unfinished)
	}
	if r.ExtractResumed {
		b.WriteString(t.hintStyle().Render("  extract restored from a previous run") + "\n")
	}
	if r.Failed > 0 && r.Phase == core.PhaseImport {
		b.WriteString(t.hintStyle().Render(fmt.Sprintf("  retry failures with: vellum retry run %s", report.Session.ID())) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderManifest(w io.Writer, t Theme, m session.Manifest) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", t.titleStyle().Render(fmt.Sprintf("Session %s (%s)", m.SessionID, m.SessionType)))
	fmt.Fprintf(&b, "  started:  %s\n", m.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  updated:  %s\n", m.UpdatedAt.Format(time.RFC3339))
	if m.Provider != "" {
		fmt.Fprintf(&b, "  provider: %s\n", m.Provider)
	}
	fmt.Fprintf(&b, "  files:    %d\n", m.TotalFiles)
	if m.SourceSession != "" {
		fmt.Fprintf(&b, "  retry of: %s\n", m.SourceSession)
	}

	phaseTypes := make([]core.PhaseType, 0, len(m.Phases))
	for p := range m.Phases {
		phaseTypes = append(phaseTypes, p)
	}
	slices.Sort(phaseTypes)
	for _, p := range phaseTypes {
		stats := m.Phases[p]
		fmt.Fprintf(&b, "  %s: %s", p, t.statusStyle(stats.Status).Render(stats.Status))
		if info := stats.CompletedInformation; info != nil {
			fmt.Fprintf(&b, " (%d ok, %d failed of %d expected)", info.SuccessCount, info.ErrorCount, stats.ExpectedTotalItemCount)
		}
		b.WriteString("\n")
		if stats.Error != nil {
			fmt.Fprintf(&b, "    %s\n", t.errorStyle().Render(stats.Error.Type+": "+stats.Error.Message))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderSessions(w io.Writer, t Theme, sessionType string, manifests []session.Manifest) error {
	if len(manifests) == 0 {
		_, err := fmt.Fprintln(w, t.hintStyle().Render("No "+sessionType+" sessions"))
		return err
	}
	phaseType := core.PhaseType(sessionType)
	var b strings.Builder
	b.WriteString(t.titleStyle().Render(fmt.Sprintf("%d %s session(s)", len(manifests), sessionType)) + "\n")
	for _, m := range manifests {
		status, counts := "pending", ""
		if stats, ok := m.Phases[phaseType]; ok {
			status = stats.Status
			if info := stats.CompletedInformation; info != nil {
				counts = fmt.Sprintf("%d ok, %d failed", info.SuccessCount, info.ErrorCount)
			}
		}
		fmt.Fprintf(&b, "  %s  %-11s  %s\n", m.SessionID, t.statusStyle(status).Render(status), counts)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderRetrySessions(w io.Writer, t Theme, infos []retry.SessionInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, t.hintStyle().Render("No sessions with errors"))
		return err
	}
	var b strings.Builder
	b.WriteString(t.titleStyle().Render("Sessions with errors") + "\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "  %s  %s  %s\n", info.ID,
			t.errorStyle().Render(fmt.Sprintf("%d error(s)", info.ErrorCount)),
			t.hintStyle().Render(string(info.Layout)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderPreview(w io.Writer, t Theme, preview *retry.Preview) error {
	if _, err := fmt.Fprintln(w, t.titleStyle().Render("Retry preview")); err != nil {
		return err
	}
	return preview.Render(w)
}
