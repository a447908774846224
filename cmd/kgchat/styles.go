package main

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
)

var (
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	responseLabel = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle     = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	keyStyle      = lipgloss.NewStyle().Foreground(colorMuted).Width(18)
)
