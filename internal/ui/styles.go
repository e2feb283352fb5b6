// Package ui provides terminal styling for agora CLI output.
// Colors adapt to light and dark terminals and degrade to plain text
// when the output is not a terminal.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Semantic status colors.
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#2da44e",
		Dark:  "#57d96d",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#bf8700",
		Dark:  "#e3b341",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#cf222e",
		Dark:  "#f47067",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#6e7781",
		Dark:  "#768390",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#0969da",
		Dark:  "#539bf5",
	}
)

// Status styles shared by every command.
var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
)

// HeaderStyle marks section headers.
var HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

// RenderPass renders text with pass (green) styling.
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling.
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with failure (red) styling.
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders de-emphasized text.
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderHeader renders a section header.
func RenderHeader(s string) string {
	return HeaderStyle.Render(s)
}
