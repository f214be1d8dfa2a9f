package tui

import "github.com/charmbracelet/lipgloss"

// Palette tuned for dim survey-boat cabins.
var (
	Primary   = lipgloss.Color("#26C6DA") // Sea cyan
	Secondary = lipgloss.Color("#1E88E5")
	Success   = lipgloss.Color("#4CAF50")
	Warning   = lipgloss.Color("#FFB74D")
	Error     = lipgloss.Color("#F44336")

	Text       = lipgloss.Color("#E0E0E0")
	TextBright = lipgloss.Color("#FFFFFF")
	Muted      = lipgloss.Color("#90A4AE")

	PanelBg    = lipgloss.Color("#161B26")
	HeaderBg   = lipgloss.Color("#1C2128")
	BorderDark = lipgloss.Color("#30363D")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Background(HeaderBg).
			Padding(0, 2).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDark).
			Foreground(Text).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(10)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextBright).
			Bold(true)

	PlayingStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	StoppedStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	IdleStyle    = lipgloss.NewStyle().Foreground(Muted)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(Muted).Italic(true)
)
