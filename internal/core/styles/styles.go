// Package styles provides shared lipgloss styles for CLI output.
package styles

import "github.com/charmbracelet/lipgloss"

// CurrentPalette holds the active theme palette.
var CurrentPalette Palette

// Style exports.
var (
	HeaderStyle  lipgloss.Style
	LabelStyle   lipgloss.Style
	ValueStyle   lipgloss.Style
	MutedStyle   lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style

	// Temporary tag ids are shown in this style until the backend assigns
	// a real one.
	TempIDStyle lipgloss.Style
)

func init() {
	p, _ := GetPalette(DefaultTheme)
	SetTheme(p)
}

// SetTheme sets the active palette and rebuilds all global styles.
func SetTheme(p Palette) {
	CurrentPalette = p

	HeaderStyle = lipgloss.NewStyle().
		Foreground(p.Primary).
		Bold(true)
	LabelStyle = lipgloss.NewStyle().
		Foreground(p.Secondary).
		Width(12)
	ValueStyle = lipgloss.NewStyle().
		Foreground(p.Foreground)
	MutedStyle = lipgloss.NewStyle().
		Foreground(p.Muted)
	SuccessStyle = lipgloss.NewStyle().
		Foreground(p.Success)
	WarningStyle = lipgloss.NewStyle().
		Foreground(p.Warning)
	ErrorStyle = lipgloss.NewStyle().
		Foreground(p.Error).
		Bold(true)
	TempIDStyle = lipgloss.NewStyle().
		Foreground(p.Warning).
		Italic(true)
}
