package tui

import "github.com/charmbracelet/lipgloss"

const AppName = "skim"

var LogoLines = []string{
	"     ▄█▀ ██ ▄ ▄▄ ▄█▄ ▄█▄",
	" ▀▀█▄ ██▀█ ██ ██ ██ ██ ██",
	"▄▄▄█▀ ██ █ ██ ██ ██ ██ ██",
}

const CompactLogo = `skim ›`

var (
	PrimaryColor   = lipgloss.Color("#7C9EF4") // periwinkle
	SecondaryColor = lipgloss.Color("#B4E1C5") // sage
	AccentColor    = lipgloss.Color("#F4C87C") // amber

	TextColor  = lipgloss.Color("#E8E8E8")
	MutedColor = lipgloss.Color("#8B95A7")

	UnreadColor  = lipgloss.Color("#F4E47C")
	ErrorColor   = lipgloss.Color("#E87C7C")
	SuccessColor = lipgloss.Color("#7CE89B")
)

var (
	LogoStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 1)

	UnreadBadgeStyle = lipgloss.NewStyle().
				Foreground(UnreadColor).
				Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	StatusInfoStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	StatusSuccessStyle = lipgloss.NewStyle().
				Foreground(SuccessColor)

	StatusErrorStyle = lipgloss.NewStyle().
				Foreground(ErrorColor).
				Bold(true)
)

// WelcomeMessage is shown when no feeds are subscribed yet.
func WelcomeMessage() string {
	var colored []string
	for _, line := range LogoLines {
		colored = append(colored, LogoStyle.Render(line))
	}
	logo := lipgloss.JoinVertical(lipgloss.Center, colored...)
	return lipgloss.JoinVertical(
		lipgloss.Center,
		logo,
		"",
		HelpStyle.Render("Press a to add your first feed"),
	)
}
