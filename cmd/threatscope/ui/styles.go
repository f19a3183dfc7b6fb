// Package ui provides the visual styling and page models for the
// Threat Scope interactive terminal. Colors follow the original console
// palette: green for names and headers, cyan for data cells, yellow for
// prompts and kill chains, red for errors.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Dark mode colors (default)
	DarkBackground = lipgloss.Color("#0d1117")
	DarkForeground = lipgloss.Color("#e6edf3")
	DarkPrimary    = lipgloss.Color("#3fb950") // Green
	DarkAccent     = lipgloss.Color("#d29922") // Amber
	DarkSecondary  = lipgloss.Color("#161b22")
	DarkMuted      = lipgloss.Color("#8b949e")
	DarkBorder     = lipgloss.Color("#30363d")
	DarkCard       = lipgloss.Color("#161b22")

	// Light mode colors
	LightBackground = lipgloss.Color("#ffffff")
	LightForeground = lipgloss.Color("#1f2328")
	LightPrimary    = lipgloss.Color("#1a7f37") // Green
	LightAccent     = lipgloss.Color("#9a6700") // Amber
	LightSecondary  = lipgloss.Color("#f6f8fa")
	LightMuted      = lipgloss.Color("#656d76")
	LightBorder     = lipgloss.Color("#d0d7de")
	LightCard       = lipgloss.Color("#f6f8fa")

	// Semantic colors (same in both modes)
	Destructive = lipgloss.Color("#e5534b") // Red
	Success     = lipgloss.Color("#3fb950") // Green
	Warning     = lipgloss.Color("#d29922") // Amber
	Info        = lipgloss.Color("#58a6ff") // Blue

	// Data colors mirroring the original console markup
	NameColor      = lipgloss.Color("#56d364") // bright green technique names
	PlatformColor  = lipgloss.Color("#76e3ea") // bright cyan platforms
	KillChainColor = lipgloss.Color("#e3b341") // bright yellow kill chain phases
	CitationColor  = lipgloss.Color("#d2a8ff") // magenta citation fragments
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Secondary:  DarkSecondary,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Secondary:  LightSecondary,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
		IsDark:     false,
	}
}

// DetectTheme picks a theme from THREATSCOPE_THEME, then the COLORFGBG
// hint some terminals export, and defaults to dark.
func DetectTheme() Theme {
	switch strings.ToLower(os.Getenv("THREATSCOPE_THEME")) {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	}

	// COLORFGBG is "foreground;background"; ANSI backgrounds 0-6 and 8
	// are dark, 7 and 9-15 are light.
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		parts := strings.Split(colorTerm, ";")
		if len(parts) >= 2 {
			if bgIdx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return DarkTheme()
				}
				return LightTheme()
			}
		}
	}

	return DarkTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	App     lipgloss.Style
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Menus and listings
	Menu         lipgloss.Style
	MenuSelected lipgloss.Style
	Number       lipgloss.Style
	GroupHeader  lipgloss.Style
	TableHeader  lipgloss.Style
	WatchMark    lipgloss.Style
	Revoked      lipgloss.Style

	// Technique and tool details
	Name      lipgloss.Style
	Platform  lipgloss.Style
	KillChain lipgloss.Style
	Citation  lipgloss.Style
	Bullet    lipgloss.Style
	Panel     lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner lipgloss.Style
	Badge   lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		// Layout styles
		App: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Content: lipgloss.NewStyle().
			Padding(1, 2),

		// Text styles
		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		// Menu and listing styles
		Menu: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Padding(0, 2),

		MenuSelected: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 2),

		Number: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		GroupHeader: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Underline(true),

		TableHeader: lipgloss.NewStyle().
			Foreground(CitationColor).
			Bold(true),

		WatchMark: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Revoked: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Strikethrough(true),

		// Detail styles
		Name: lipgloss.NewStyle().
			Foreground(NameColor).
			Bold(true),

		Platform: lipgloss.NewStyle().
			Foreground(PlatformColor),

		KillChain: lipgloss.NewStyle().
			Foreground(KillChainColor).
			Bold(true),

		Citation: lipgloss.NewStyle().
			Foreground(CitationColor),

		Bullet: lipgloss.NewStyle().
			Foreground(theme.Primary),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(1, 2),

		// Status styles
		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		// Component styles
		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// DefaultStyles returns styles with the detected theme
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// Logo returns the Threat Scope banner
func Logo(s Styles) string {
	logo := `
 _____  _                         _       ____
|_   _|| |__   _ __   ___   __ _ | |_    / ___|   ___   ___   _ __    ___
  | |  | '_ \ | '__| / _ \ / _` + "`" + ` || __|   \___ \  / __| / _ \ | '_ \  / _ \
  | |  | | | || |   |  __/| (_| || |_     ___) || (__ | (_) || |_) ||  __/
  |_|  |_| |_||_|    \___| \__,_| \__|   |____/  \___| \___/ | .__/  \___|
                                                             |_|
`
	return s.Title.Render(logo)
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
