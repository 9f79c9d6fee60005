package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#22c55e")
	mutedColor  = lipgloss.Color("#9ca3af")
	errorColor  = lipgloss.Color("#ef4444")
	mineColor   = lipgloss.Color("#34d399")
	theirsColor = lipgloss.Color("#60a5fa")
	borderColor = lipgloss.Color("#1f2937")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(1, 2)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	mineSenderStyle   = lipgloss.NewStyle().Foreground(mineColor).Bold(true)
	theirsSenderStyle = lipgloss.NewStyle().Foreground(theirsColor).Bold(true)
	deletedStyle      = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	quoteStyle        = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	cursorLineStyle   = lipgloss.NewStyle().Background(borderColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(borderColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(borderColor).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(errorColor).
			Padding(0, 1)
)
