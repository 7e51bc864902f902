package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// VS Code Dark theme colors
const (
	VSCodeForeground = "#D4D4D4"
	VSCodeLink       = "#4FC1FF"
	VSCodeInlineCode = "#EACD53" // golden, like listing strings
	VSCodeFunction   = "#DCDCAA"
	VSCodeComment    = "#6A9955"
	VSCodeHeading    = "#569CD6"
	VSCodeSelection  = "#264F78"
	VSCodeLineNumber = "#858585"
)

// Styles used by the interactive viewer.
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(charmtone.Zest.Hex())).
		Background(lipgloss.Color(charmtone.Charple.Hex())).
		Padding(0, 1)

	Status = lipgloss.NewStyle().
		Foreground(lipgloss.Color(VSCodeLineNumber))

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color(charmtone.Cheeky.Hex()))

	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color(VSCodeComment))

	Selected = lipgloss.NewStyle().
		Foreground(lipgloss.Color(VSCodeFunction)).
		Background(lipgloss.Color(VSCodeSelection))

	Pane = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(VSCodeHeading))
)
