package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mpataki/cadence/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusPaused  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	statusQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	sectionStyle = lipgloss.NewStyle().Bold(true)

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func (a *App) View() string {
	var s string
	switch a.view {
	case ViewRunList:
		s = a.viewRunList()
	case ViewRunDetail:
		s = a.viewRunDetail()
	case ViewNewRun:
		s = a.viewNewRun()
	}

	if a.annotating {
		s += "\n\n" + labelStyle.Render("Evidence for "+a.targetID()+": ") + a.input.View()
		s += "\n" + helpStyle.Render("[enter] save  [esc] cancel")
	}
	return s
}

func (a *App) viewRunList() string {
	s := titleStyle.Render("Cadence") + "\n\n"

	if a.err != nil {
		s += statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	} else if a.notice != "" {
		s += noticeStyle.Render(a.notice) + "\n"
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Press 'n' to start one.\n"
	} else {
		s += "Runs\n"
		s += "────\n"

		for i, run := range a.runs {
			line := a.formatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Status.Terminal() {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render(helpLine(
		a.keys.Open, a.keys.New, a.keys.Pause, a.keys.Resume,
		a.keys.Stop, a.keys.Discard, a.keys.Annotate, a.keys.Quit,
	))

	return s
}

func (a *App) formatRunLine(run *models.RunSnapshot) string {
	return fmt.Sprintf("%-12s %-10s %s %3d%%  %-12s %s",
		shortID(run.ID),
		truncate(run.RunType, 10),
		a.bar.ViewAs(float64(run.Progress)/100),
		run.Progress,
		a.formatStatus(run.Status),
		formatAge(time.Since(run.CreatedAt)),
	)
}

func (a *App) formatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return statusRunning.Render("● running")
	case models.RunStatusDone:
		return statusDone.Render("✓ done")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed")
	case models.RunStatusBlocked:
		return statusBlocked.Render("⚠ blocked")
	case models.RunStatusPaused:
		return statusPaused.Render("‖ paused")
	case models.RunStatusQueued:
		return statusQueued.Render("○ queued")
	default:
		return string(status)
	}
}

func formatStepStatus(status models.StepStatus) string {
	switch status {
	case models.StepStatusDone:
		return statusDone.Render("✓")
	case models.StepStatusRunning:
		return statusRunning.Render("●")
	case models.StepStatusBlocked:
		return statusBlocked.Render("⚠")
	default:
		return statusQueued.Render("○")
	}
}

func (a *App) viewRunDetail() string {
	run := a.selectedRun
	if run == nil {
		return "No run selected"
	}

	header := fmt.Sprintf("%s: %s", run.ID, run.RunType)
	s := titleStyle.Render(header) + "  " + a.formatStatus(run.Status) + "\n"
	if a.err != nil {
		s += statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}
	s += "\n" + a.detail.View() + "\n"

	s += "\n" + helpStyle.Render(helpLine(
		a.keys.Pause, a.keys.Resume, a.keys.Stop, a.keys.Discard,
		a.keys.Annotate, a.keys.Back,
	))

	return s
}

// renderDetail is the scrollable body of the detail view.
func (a *App) renderDetail(run *models.RunSnapshot) string {
	var b strings.Builder

	bar := a.bar
	bar.Width = max(a.width-10, 20)
	fmt.Fprintf(&b, "%s %3d%%\n\n", bar.ViewAs(float64(run.Progress)/100), run.Progress)

	fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Mode:     "), run.Mode)
	fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Created:  "), run.CreatedAt.Format(time.TimeOnly))
	if run.StartedAt != nil {
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Started:  "), run.StartedAt.Format(time.TimeOnly))
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "%s%s", labelStyle.Render("Finished: "), run.FinishedAt.Format(time.TimeOnly))
		if run.StartedAt != nil {
			b.WriteString(dimStyle.Render(" (" + formatDuration(run.FinishedAt.Sub(*run.StartedAt)) + ")"))
		}
		b.WriteString("\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "%s%s\n", labelStyle.Render("Error:    "), statusFailed.Render(run.Error))
	}

	b.WriteString("\n" + sectionStyle.Render("Steps") + "\n")
	for _, st := range run.Steps {
		last := ""
		if n := len(st.Logs); n > 0 {
			last = dimStyle.Render(st.Logs[n-1])
		}
		fmt.Fprintf(&b, "  %s %-16s %s\n", formatStepStatus(st.Status), st.Name, last)
	}

	if len(run.Exceptions) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Exceptions") + "\n")
		for _, ex := range run.Exceptions {
			fmt.Fprintf(&b, "  %s %s: %s\n", statusBlocked.Render("⚠"), ex.Step, ex.Reason)
			if ex.Action != "" {
				fmt.Fprintf(&b, "    %s\n", dimStyle.Render("→ "+ex.Action))
			}
		}
	}

	if len(run.Evidence) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Evidence") + "\n")
		for _, ev := range run.Evidence {
			src := ev.Step
			if ev.Manual {
				src = "manual"
			}
			fmt.Fprintf(&b, "  • %s %s\n", ev.Text, dimStyle.Render("("+src+")"))
		}
	}

	if len(run.Insights) > 0 {
		b.WriteString("\n" + sectionStyle.Render("Insights") + "\n")
		for _, ins := range run.Insights {
			fmt.Fprintf(&b, "  ★ %s\n", ins.Title)
			if ins.Detail != "" {
				fmt.Fprintf(&b, "    %s\n", dimStyle.Render(ins.Detail))
			}
		}
	}

	b.WriteString("\n" + sectionStyle.Render("Log") + "\n")
	for _, l := range run.Logs {
		prefix := ""
		if l.Step != "" {
			prefix = l.Step + ": "
		}
		fmt.Fprintf(&b, "  %s %s%s\n", dimStyle.Render(l.Timestamp.Format(time.TimeOnly)), prefix, l.Message)
	}

	return b.String()
}

func (a *App) viewNewRun() string {
	s := titleStyle.Render("New Run") + "\n\n"

	if a.err != nil {
		s += statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n\n"
	}

	if len(a.types) == 0 {
		s += "  (no run types registered)\n"
	}
	for i, rt := range a.types {
		line := fmt.Sprintf("%-12s %s", rt.ID, dimStyle.Render(fmt.Sprintf("%d steps", len(rt.StepNames()))))
		if i == a.typeIdx {
			line = selectedStyle.Render("▶ " + fmt.Sprintf("%-12s", rt.ID))
			if rt.Description != "" {
				line += "  " + rt.Description
			}
		} else {
			line = "  " + line
		}
		s += line + "\n"
	}

	policy := "wait"
	if a.autoFail {
		policy = "fail"
	}
	s += "\n" + labelStyle.Render("Mode: ") + string(a.mode) +
		"   " + labelStyle.Render("On block: ") + policy + "\n"

	s += "\n" + helpStyle.Render(helpLine(a.keys.Open, a.keys.Mode, a.keys.Policy, a.keys.Back))

	return s
}

// shortID keeps the RUN- prefix and the first uuid group.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
