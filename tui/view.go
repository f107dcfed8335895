package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"gpuconsole/failover"
	"gpuconsole/toast"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	bannerOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	bannerDone   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	bannerFailed = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")).Border(lipgloss.ThickBorder()).Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	toastStyles = map[toast.Kind]lipgloss.Style{
		toast.Success: okStyle,
		toast.Error:   errStyle,
		toast.Warning: warnStyle,
		toast.Info:    valueStyle,
	}
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// View renders the console.
func (m Model) View() string {
	var b strings.Builder

	pollPct := float64(-1)
	if m.stats != nil {
		pollPct = m.stats.SuccessPercent()
	}
	b.WriteString(renderHeader(m.instanceID, pollPct))
	b.WriteString("\n\n")

	if banner := m.renderBanner(); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderReservation())
	b.WriteString("\n")

	if toasts := renderToasts(m.toasts.Toasts()); toasts != "" {
		b.WriteString("\n" + toasts + "\n")
	}

	b.WriteString("\n" + dimStyle.Render("  g gpu type | +/- count | s/S start | e/E end | enter reserve | x dismiss | q quit"))
	return b.String()
}

func renderHeader(instanceID string, pollPct float64) string {
	health := "no polls yet"
	if pollPct >= 0 {
		health = fmt.Sprintf("poll health %.0f%%", pollPct)
	}
	return headerStyle.Render(fmt.Sprintf("  GPU Console — instance %s | %s", instanceID, health))
}

func (m Model) renderBanner() string {
	if !m.banner.Visible {
		return ""
	}
	p := m.banner.Phase.Presentation()

	var line strings.Builder
	if p.Animated {
		line.WriteString(spinnerFrames[m.frame%len(spinnerFrames)] + " ")
	}
	line.WriteString(p.Title)
	if p.Detail != "" {
		line.WriteString(" — " + p.Detail)
	}
	if m.banner.Phase == failover.PhaseUnknown && m.banner.RawPhase != "" {
		line.WriteString(" (" + m.banner.RawPhase + ")")
	}
	if m.banner.NewGPUID != "" {
		line.WriteString("\nReplacement GPU: " + m.banner.NewGPUID)
	}

	switch {
	case p.Failed:
		return bannerFailed.Render(line.String())
	case m.banner.Phase == failover.PhaseComplete:
		return bannerDone.Render(line.String())
	default:
		return bannerOK.Render(line.String())
	}
}

func (m Model) renderReservation() string {
	snap := m.negotiator.Snapshot()
	p := snap.Params

	var b strings.Builder
	b.WriteString("  " + headerStyle.Render("Reserve GPUs") + "\n")

	gpu := p.GPUType
	if gpu == "" {
		gpu = "(loading catalog...)"
	}
	b.WriteString(fmt.Sprintf("  %s %s  %s %d\n",
		labelStyle.Render("GPU:"), valueStyle.Render(gpu),
		labelStyle.Render("Count:"), p.GPUCount))
	b.WriteString(fmt.Sprintf("  %s %s  %s %s  %s %s\n",
		labelStyle.Render("From:"), valueStyle.Render(formatTime(p.Start)),
		labelStyle.Render("To:"), valueStyle.Render(formatTime(p.End)),
		labelStyle.Render("Window:"), valueStyle.Render(formatWindow(p.End.Sub(p.Start)))))

	if snap.Availability != nil {
		if snap.Availability.Available {
			b.WriteString("  " + okStyle.Render("✓ available") + "\n")
		} else {
			msg := snap.Availability.Message
			if msg == "" {
				msg = "not available for this window"
			}
			b.WriteString("  " + errStyle.Render("✗ "+msg) + "\n")
		}
	}

	if q := snap.Pricing; q != nil {
		b.WriteString(fmt.Sprintf("  %s spot $%.2f | reserved $%.2f (%.0f%% off, save $%.2f) | %.1f credits\n",
			labelStyle.Render("Quote:"),
			q.TotalSpotCost, q.TotalReservedCost, q.DiscountRate, q.Savings, q.CreditsRequired))
	}

	if snap.Submitting {
		b.WriteString("  " + warnStyle.Render("Submitting...") + "\n")
	}
	if m.submitErr != "" {
		b.WriteString("  " + errStyle.Render(m.submitErr) + "\n")
	}
	return b.String()
}

func renderToasts(toasts []toast.Toast) string {
	if len(toasts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(toasts))
	for _, t := range toasts {
		style := toastStyles[t.Kind]
		line := fmt.Sprintf("  [%s] %s", t.Kind, t.Message)
		if t.Exiting {
			line = dimStyle.Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.Format("Jan 2 15:04")
}

func formatWindow(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	h := d.Hours()
	if h < 24 {
		return fmt.Sprintf("%.0fh", h)
	}
	return fmt.Sprintf("%.0fd %.0fh", float64(int(h)/24), float64(int(h)%24))
}
