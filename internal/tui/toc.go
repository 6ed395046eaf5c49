package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// tocState is the chapter list opened with t.
type tocState struct {
	visible bool
	cursor  int
}

func (m *model) openTOC() {
	if len(m.doc.Chapters) == 0 {
		m.infoMessage = "This document has no chapters."
		return
	}
	m.hidePopup()
	m.toc = tocState{visible: true, cursor: m.chapter}
}

func (m *model) handleTOCKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "t", "q":
		m.toc.visible = false
	case "j", "down":
		if m.toc.cursor < len(m.doc.Chapters)-1 {
			m.toc.cursor++
		}
	case "k", "up":
		if m.toc.cursor > 0 {
			m.toc.cursor--
		}
	case "g", "home":
		m.toc.cursor = 0
	case "G", "end":
		m.toc.cursor = len(m.doc.Chapters) - 1
	case "enter":
		m.toc.visible = false
		if m.toc.cursor == m.chapter {
			return nil
		}
		return m.goToChapter(m.toc.cursor)
	}
	return nil
}

// tocView lists chapter titles, scrolled so the cursor stays inside height rows.
func (m *model) tocView(width, height int) string {
	rows := []string{sectionHeaderStyle.Render("Contents")}
	visible := height - 2
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.toc.cursor >= visible {
		start = m.toc.cursor - visible + 1
	}
	end := start + visible
	if end > len(m.doc.Chapters) {
		end = len(m.doc.Chapters)
	}
	for i := start; i < end; i++ {
		title := m.doc.Chapters[i].Title
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		label := previewText(fmt.Sprintf("%d. %s", i+1, title), width-2)
		switch {
		case i == m.toc.cursor:
			rows = append(rows, currentLineStyle.Render(label))
		case i == m.chapter:
			rows = append(rows, subtitleStyle.Render(label))
		default:
			rows = append(rows, label)
		}
	}
	rows = append(rows, helperStyle.Render("enter: open • esc: back"))
	return strings.Join(rows, "\n")
}
