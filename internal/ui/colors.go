package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/tunesync/internal/models"
)

// stylesheet holds the fixed styles the sync TUI renders with.
type stylesheet struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

var styles = stylesheet{
	title: lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true).MarginBottom(1),
	ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true),
	err:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
	warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
	muted: lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
}

// outcomeStyle picks a style for a per-track sync outcome line.
func outcomeStyle(status models.SyncStatus) lipgloss.Style {
	switch status {
	case models.StatusAdded, models.StatusAlreadyPresent:
		return styles.ok
	case models.StatusAmbiguous, models.StatusUnmatched:
		return styles.warn
	case models.StatusMatched:
		return styles.muted
	default:
		return styles.muted
	}
}
