package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ccheshirecat/volterm/internal/terminal/session"
)

const (
	sidebarMaxWidth = 36
	sidebarItems    = 8
	lastOutputLines = 6
)

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("8"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	commandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	pendingStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	outputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	streamStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	selectedStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(lipgloss.Color("12"))
	blockStyle     = lipgloss.NewStyle().PaddingLeft(1)
	favoriteMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("★")
	ghostStyle     = lipgloss.NewStyle().Faint(true)
	cwdStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	panelStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	suggestStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func (m model) sidebarWidth() int {
	if m.width == 0 {
		return sidebarMaxWidth
	}
	return min(sidebarMaxWidth, m.width/3)
}

func (m model) mainWidth() int {
	if m.width == 0 {
		return defaultWrapCol
	}
	return max(20, m.width-m.sidebarWidth()-1)
}

func (m model) View() string {
	column := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.aiPanel(),
		m.inputLine(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, column, " ", m.sidebar())

	status := m.statusLine
	if status == "" {
		status = fmt.Sprintf("%s · ingest %s", m.cfg.APIBase, m.cfg.Ingest)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.tabs(),
		body,
		statusStyle.Render(status),
		m.help.View(m.keys),
	)
}

func (m model) tabs() string {
	active := m.sessions.ActiveID()
	var parts []string
	for i, id := range m.sessions.IDs() {
		label := id
		if id != session.DefaultID && len(label) > 8 {
			label = label[:8]
		}
		label = fmt.Sprintf("%d:%s", i+1, label)
		if id == active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderTimeline draws the active session's blocks and reports the first line
// of the selected block, or -1.
func (m model) renderTimeline(width int) (string, int) {
	blocks := m.sessions.Active().Timeline.Blocks()
	if len(blocks) == 0 {
		return faintStyle.Render("no commands yet"), -1
	}

	var (
		b            strings.Builder
		line         int
		selectedLine = -1
	)
	for i, block := range blocks {
		var parts []string
		if block.HasCommand() {
			header := commandStyle.Render("➜ " + block.Command)
			if m.favorites.Contains(block.Command) {
				header += " " + favoriteMark
			}
			parts = append(parts, header)
		}
		switch block.Kind {
		case session.KindPending:
			parts = append(parts, pendingStyle.Render("waiting for output"))
		case session.KindCompleted:
			if out := strings.TrimRight(block.Output, "\r\n"); out != "" {
				parts = append(parts, outputStyle.Width(max(1, width-2)).Render(out))
			}
		case session.KindStream:
			parts = append(parts, streamStyle.Width(max(1, width-2)).Render(strings.TrimRight(block.Output, "\r\n")))
		}

		style := blockStyle
		if i == m.selected {
			style = selectedStyle
			selectedLine = line
		}
		rendered := style.Render(strings.Join(parts, "\n"))
		b.WriteString(rendered)
		b.WriteString("\n")
		line += lipgloss.Height(rendered)
	}
	return strings.TrimRight(b.String(), "\n"), selectedLine
}

func (m model) aiPanel() string {
	width := m.mainWidth() - 2
	var lines []string
	title := titleStyle.Render("AI")
	if m.aiPending {
		lines = append(lines, title+" "+m.spinner.View()+" "+thinkingText)
	} else {
		lines = append(lines, title)
		if m.aiRendered != "" {
			lines = append(lines, clipLines(m.aiRendered, m.aiPanelLines)...)
		}
	}

	if m.suggest.HasPrimary() {
		lines = append(lines, suggestStyle.Render("▶ "+m.suggest.Primary)+faintStyle.Render("  alt+enter run · ctrl+e edit · alt+x dismiss"))
		for i, extra := range m.suggest.Extras {
			if i >= 9 {
				break
			}
			lines = append(lines, faintStyle.Render(fmt.Sprintf("  alt+%d ", i+1))+extra)
		}
	}

	switch m.focus {
	case focusAI:
		lines = append(lines, m.prompt.View())
	case focusEdit:
		lines = append(lines, m.edit.View())
	}
	return panelStyle.Width(max(10, width)).Render(strings.Join(lines, "\n"))
}

func (m model) inputLine() string {
	cwd := cwdStyle.Render(m.sessions.Active().Cwd + " ❯ ")
	line := cwd + m.input.View()
	if m.focus == focusShell {
		if ghost, ok := m.ghost.Suggestion(); ok {
			if rest := ghost[len(m.input.Value()):]; rest != "" {
				line += ghostStyle.Render(rest)
			}
		}
	}
	return line
}

func (m model) sidebar() string {
	width := m.sidebarWidth()
	var sections []string

	aiLines := make([]string, 0, sidebarItems)
	for i, entry := range m.aiHistory {
		if i >= sidebarItems {
			break
		}
		aiLines = append(aiLines, truncate(entry.Prompt, width-4))
	}
	sections = append(sections, section("AI history", aiLines))

	favs := m.favorites.List()
	if len(favs) > sidebarItems {
		favs = favs[:sidebarItems]
	}
	for i := range favs {
		favs[i] = truncate(favs[i], width-4)
	}
	sections = append(sections, section("Favorites", favs))

	last := clipLines(strings.TrimRight(m.sessions.Active().Timeline.LastOutput(), "\r\n"), lastOutputLines)
	for i := range last {
		last[i] = truncate(last[i], width-4)
	}
	sections = append(sections, section("Last output", last))

	files := append([]string(nil), m.files[m.sessions.ActiveID()]...)
	if len(files) > sidebarItems*2 {
		files = append(files[:sidebarItems*2], fmt.Sprintf("… %d more", len(m.files[m.sessions.ActiveID()])-sidebarItems*2))
	}
	sections = append(sections, section("Files", files))

	return panelStyle.Width(max(10, width-2)).Render(strings.Join(sections, "\n\n"))
}

func section(title string, items []string) string {
	if len(items) == 0 {
		return titleStyle.Render(title) + "\n" + faintStyle.Render("(empty)")
	}
	return titleStyle.Render(title) + "\n" + strings.Join(items, "\n")
}

func clipLines(text string, n int) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = append(lines[:n], "…")
	}
	return lines
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
