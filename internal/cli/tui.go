package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// StyleListModel - Interactive style browsing
// =============================================================================

// StyleToggle records one enabled-state change made in the browser.
type StyleToggle struct {
	ID      string
	Enabled bool
}

// StyleListModel is the bubbletea model for browsing installed styles.
// Space toggles a style's enabled state; toggles are collected and
// persisted by the caller after the program exits.
type StyleListModel struct {
	Styles  []style.Document
	Cursor  int
	Toggles []StyleToggle
	Height  int
	Offset  int

	// MatchURL and Matched carry optional per-style match status for a
	// page URL. Matched is either nil or parallel to Styles.
	MatchURL string
	Matched  []bool
}

// NewStyleListModel creates a new style list model.
func NewStyleListModel(styles []style.Document) StyleListModel {
	return StyleListModel{
		Styles: styles,
		Cursor: 0,
		Height: 15,
		Offset: 0,
	}
}

// WithMatches attaches per-style match status for url. The matched
// slice must be parallel to the model's styles.
func (m StyleListModel) WithMatches(url string, matched []bool) StyleListModel {
	m.MatchURL = url
	m.Matched = matched
	return m
}

func (m StyleListModel) Init() tea.Cmd {
	return nil
}

func (m StyleListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc", "enter":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Styles)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ":
			if len(m.Styles) == 0 {
				return m, nil
			}
			s := &m.Styles[m.Cursor]
			s.Enabled = !s.Enabled
			m.Toggles = append(m.Toggles, StyleToggle{ID: s.ID, Enabled: s.Enabled})
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m StyleListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Installed Styles"))
	b.WriteString("\n")
	if m.MatchURL != "" {
		b.WriteString(listDimStyle.Render("matching against ") + StyleLink.Render(m.MatchURL))
		b.WriteString("\n")
	}
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ␣ toggle  q quit"))
	b.WriteString("\n\n")

	if len(m.Styles) == 0 {
		b.WriteString(listDimStyle.Render("  no styles installed"))
		b.WriteString("\n")
		return b.String()
	}

	end := m.Offset + m.Height
	if end > len(m.Styles) {
		end = len(m.Styles)
	}

	for i := m.Offset; i < end; i++ {
		s := m.Styles[i]

		cursor := "  "
		nameStyle := listNormalStyle
		if i == m.Cursor {
			cursor = "▸ "
			nameStyle = listSelectedStyle
		}

		status := styleDisabled.Render(iconDisabled)
		if s.Enabled {
			status = styleEnabled.Render(iconEnabled)
		}

		match := ""
		if m.Matched != nil {
			match = " " + styleIconError.Render(iconError)
			if m.Matched[i] {
				match = " " + styleIconSuccess.Render(iconSuccess)
			}
		}

		rules := listDimStyle.Render(ruleSummary(s))

		b.WriteString(fmt.Sprintf("%s%s %s%s %s\n",
			cursor, nameStyle.Render(s.Name), status, match, rules))
	}

	if len(m.Styles) > end {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("\n  … %d more", len(m.Styles)-end)))
		b.WriteString("\n")
	}

	return b.String()
}

// ruleSummary renders a compact description of a style's domain rules.
func ruleSummary(s style.Document) string {
	if len(s.Rules) == 0 {
		return "no rules"
	}
	parts := make([]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		p := r.Pattern
		if !r.Include {
			p = "!" + p
		}
		parts = append(parts, p)
	}
	const max = 3
	if len(parts) > max {
		return strings.Join(parts[:max], ", ") + fmt.Sprintf(" +%d", len(parts)-max)
	}
	return strings.Join(parts, ", ")
}
