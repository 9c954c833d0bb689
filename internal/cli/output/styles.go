package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/roadlens/internal/catalog"
)

// Styles are the lipgloss styles used for terminal output.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	ID      lipgloss.Style
	Banner  lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	StatusSkipped lipgloss.Style

	BadgeHigh lipgloss.Style
	BadgeMed  lipgloss.Style
	BadgeLow  lipgloss.Style
}

// NewStyles returns colored styles for a terminal and plain ones otherwise.
func NewStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header: plain, Success: plain, Warning: plain, Error: plain,
			Muted: plain, ID: plain, Banner: plain,
			StatusSuccess: plain.SetString("[ok]"),
			StatusWarning: plain.SetString("[warn]"),
			StatusError:   plain.SetString("[fail]"),
			StatusSkipped: plain.SetString("[skip]"),
			BadgeHigh:     plain, BadgeMed: plain, BadgeLow: plain,
		}
	}

	green := lipgloss.Color("10")
	yellow := lipgloss.Color("11")
	red := lipgloss.Color("9")
	gray := lipgloss.Color("8")
	cyan := lipgloss.Color("14")

	return &Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(cyan),
		Success: lipgloss.NewStyle().Foreground(green),
		Warning: lipgloss.NewStyle().Foreground(yellow),
		Error:   lipgloss.NewStyle().Foreground(red).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(gray),
		ID:      lipgloss.NewStyle().Bold(true),
		Banner: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Padding(0, 1),

		StatusSuccess: lipgloss.NewStyle().Foreground(green).SetString("✓"),
		StatusWarning: lipgloss.NewStyle().Foreground(yellow).SetString("!"),
		StatusError:   lipgloss.NewStyle().Foreground(red).SetString("✗"),
		StatusSkipped: lipgloss.NewStyle().Foreground(gray).SetString("-"),

		BadgeHigh: lipgloss.NewStyle().Foreground(green).Bold(true),
		BadgeMed:  lipgloss.NewStyle().Foreground(yellow).Bold(true),
		BadgeLow:  lipgloss.NewStyle().Foreground(red).Bold(true),
	}
}

// Badge renders a confidence badge.
func (s *Styles) Badge(c catalog.Confidence) string {
	switch c.Normalize() {
	case catalog.ConfidenceHigh:
		return s.BadgeHigh.Render(string(catalog.ConfidenceHigh))
	case catalog.ConfidenceMed:
		return s.BadgeMed.Render(string(catalog.ConfidenceMed))
	default:
		return s.BadgeLow.Render(string(catalog.ConfidenceLow))
	}
}

// Status returns the icon for a status name.
func (s *Styles) Status(status string) lipgloss.Style {
	switch status {
	case "success", "ok":
		return s.StatusSuccess
	case "warning", "warn":
		return s.StatusWarning
	case "error", "fail":
		return s.StatusError
	default:
		return s.StatusSkipped
	}
}
