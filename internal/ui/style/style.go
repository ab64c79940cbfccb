// Package style provides shared UI styling primitives including brand colors
// and icons for consistent visual presentation across the CLI.
package style

import "github.com/charmbracelet/lipgloss"

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Mist   = lipgloss.Color("#98A2B3")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
	Circle  = "○"
	Pin     = "◆"
)

// Text styles for the inspection views.
var (
	Title   = lipgloss.NewStyle().Bold(true).Foreground(Iris)
	Label   = lipgloss.NewStyle().Foreground(Slate)
	Success = lipgloss.NewStyle().Foreground(Green)
	Failure = lipgloss.NewStyle().Foreground(Red)
	Pinned  = lipgloss.NewStyle().Foreground(Yellow)
)

// StatusIcon returns the icon used for an entry status.
func StatusIcon(status string) string {
	switch status {
	case "accepted":
		return Success.Render(Check)
	case "frozen":
		return Pinned.Render(Pin)
	case "failed":
		return Failure.Render(Cross)
	default:
		return Label.Render(Circle)
	}
}
