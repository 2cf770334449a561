package color

import "github.com/charmbracelet/lipgloss"

var (
	primary = lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FD7FF"}
	success = lipgloss.AdaptiveColor{Light: "#007A3D", Dark: "#5FD75F"}
	failure = lipgloss.AdaptiveColor{Light: "#C00000", Dark: "#FF5F5F"}
	warning = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#FFD75F"}
	muted   = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#8A8A8A"}
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	OKStyle     = lipgloss.NewStyle().Foreground(success)
	FailStyle   = lipgloss.NewStyle().Bold(true).Foreground(failure)
	SkipStyle   = lipgloss.NewStyle().Foreground(muted)
	HintStyle   = lipgloss.NewStyle().Foreground(warning)
	OutputStyle = lipgloss.NewStyle().Foreground(muted).PaddingLeft(4)
)

// Initialize sets whether the terminal has a dark background, which picks
// the variant of every adaptive color.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
}
