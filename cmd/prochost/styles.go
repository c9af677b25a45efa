package main

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles for CLI output.
type Styles struct {
	// Header is the style for section headers (bold).
	Header lipgloss.Style

	// Label is the style for field names (cyan).
	Label lipgloss.Style

	// Error is the style for error prefixes (red, bold).
	Error lipgloss.Style

	// Warning is the style for child stderr and timeouts (yellow).
	Warning lipgloss.Style
}

// DefaultStyles returns the standard styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")), // Cyan
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // Yellow
	}
}
