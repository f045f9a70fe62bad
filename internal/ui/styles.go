// Package ui renders terminal output for cstudio commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	folderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func init() {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderAccent highlights headings and icons.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders a warning marker.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders an error marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders secondary information.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderHeader renders a table header.
func RenderHeader(s string) string { return headerStyle.Render(s) }
