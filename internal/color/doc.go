// Package color holds the terminal palette of coffeectl's progress output.
//
// Styles use lipgloss adaptive colors, so the same palette reads on dark and
// light terminals. Initialize fixes the background mode once at startup;
// lipgloss drops the colors by itself when output is not a terminal or
// NO_COLOR is set.
//
// Usage:
//
//	color.Initialize(lipgloss.HasDarkBackground())
//	fmt.Println(color.OKStyle.Render("✓") + " cluster ready")
package color
