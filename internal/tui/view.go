package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/simplify"
)

// panelChrome is the number of panel rows outside the transcript: title,
// scope switcher, composer and hint.
const panelChrome = 4

type keyHint struct {
	Key         string
	Description string
}

func (m *model) View() string {
	parts := []string{m.headerView(), m.bodyView(), m.statusView(), m.hintView()}
	if m.showHelp {
		parts = append(parts, m.keyLegendView())
	}
	return strings.Join(parts, "\n")
}

func (m *model) headerView() string {
	title := m.doc.Title
	if title == "" {
		title = "Untitled"
	}
	parts := []string{titleStyle.Render(title)}
	if m.doc.Author != "" {
		parts = append(parts, helperStyle.Render(m.doc.Author))
	}
	if ch, ok := m.doc.Chapter(m.chapter); ok && ch.Title != "" {
		parts = append(parts, subtitleStyle.Render(ch.Title))
	}
	return lipgloss.NewStyle().MaxWidth(m.page.windowWidth).Render(strings.Join(parts, helperStyle.Render(" · ")))
}

func (m *model) bodyView() string {
	content := lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.popupView())
	if m.toc.visible {
		content = m.tocView(m.page.documentWidth, m.page.paneHeight)
	}
	docPane := lipgloss.NewStyle().
		Width(m.page.documentWidth).
		Height(m.page.paneHeight).
		MaxHeight(m.page.paneHeight).
		Render(content)
	if !m.layout.Visible() || m.page.panelWidth <= 0 {
		return docPane
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, docPane, m.panelView())
}

func (m *model) panelInnerWidth() int {
	w := m.page.panelWidth - 3
	if w < 1 {
		w = 1
	}
	return w
}

func (m *model) panelView() string {
	m.refreshChat()
	hint := "Enter: send • Esc: back to page"
	if m.focus != focusComposer {
		hint = "Tab: reply • 1/2/3: scope • s: save • c: clear"
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Conversation"),
		m.scopeSwitcherView(),
		m.chat.View(),
		m.composer.View(),
		helperStyle.Render(previewText(hint, m.panelInnerWidth())),
	)
	style := panelStyle
	if m.layout.Dragging() {
		style = panelDraggingStyle
	}
	return style.
		Width(m.page.panelWidth - 1).
		Height(m.page.paneHeight).
		MaxHeight(m.page.paneHeight).
		Render(content)
}

func (m *model) scopeSwitcherView() string {
	conv := m.store.Snapshot()
	cells := make([]string, 0, len(conversation.Scopes))
	for i, scope := range conversation.Scopes {
		label := fmt.Sprintf("%d %s", i+1, scope.Label())
		switch {
		case conv != nil && conv.Scope == scope:
			cells = append(cells, activeScopeStyle.Render(label))
		case conv == nil || !conv.ScopeAvailable(scope):
			cells = append(cells, disabledScopeStyle.Render(label))
		default:
			cells = append(cells, scopeStyle.Render(label))
		}
	}
	return strings.Join(cells, " ")
}

// refreshChat re-renders the transcript when the conversation changed.
func (m *model) refreshChat() {
	if !m.chatDirty {
		return
	}
	m.chatDirty = false
	conv := m.store.Snapshot()
	if conv == nil {
		m.chat.SetContent("")
		return
	}
	width := m.chat.Width
	var cb contentBuilder
	cb.WriteString(helperStyle.Render(wordwrap.String("On “"+previewText(conv.AnchorText, popupPreviewLimit)+"”", width)))
	for _, turn := range conv.Turns {
		cb.WriteString("\n\n")
		if turn.Role == conversation.RoleUser {
			cb.WriteString(userLabelStyle.Render("You"))
			cb.WriteRune('\n')
			cb.WriteString(wordwrap.String(turn.Content, width))
			continue
		}
		cb.WriteString(assistantLabelStyle.Render("Lumen"))
		cb.WriteRune('\n')
		cb.WriteString(m.renderMarkdown(turn.Content, width))
	}
	if m.followupInFlight {
		cb.WriteString("\n\n")
		cb.WriteString(helperStyle.Render(m.spinner.View() + " Thinking…"))
	}
	m.chat.SetContent(cb.String())
	m.chat.GotoBottom()
}

func (m *model) renderMarkdown(text string, width int) string {
	if m.renderer == nil || m.rendererWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.log.Debug("markdown renderer unavailable")
			return wordwrap.String(text, width)
		}
		m.renderer, m.rendererWidth = r, width
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return wordwrap.String(text, width)
	}
	return strings.Trim(out, "\n")
}

func (m *model) popupView() string {
	if !m.popup.visible {
		return ""
	}
	inner := m.page.documentWidth - 4
	if inner < 10 {
		inner = 10
	}
	lines := []string{
		sectionHeaderStyle.Render("Selection"),
		helperStyle.Render(wordwrap.String("“"+previewText(m.popup.selection.Text, popupPreviewLimit)+"”", inner)),
	}

	switch {
	case m.popup.loading:
		lines = append(lines, helperStyle.Render(fmt.Sprintf("%s %s…", m.spinner.View(), modeLabel(m.popup.mode))))
	case m.popup.result != nil:
		res := m.popup.result
		label := modeLabel(m.popup.mode)
		if res.Source == simplify.SourceDictionary {
			label = "Definition"
		}
		body := wordwrap.String(res.Text, inner)
		if limit := m.popupBodyLimit(); strings.Count(body, "\n")+1 > limit {
			body = strings.Join(strings.Split(body, "\n")[:limit], "\n") + "\n…"
		}
		lines = append(lines, subtitleStyle.Render(label))
		if res.Failed() {
			lines = append(lines, errorStyle.Render(body))
		} else {
			lines = append(lines, body)
		}
	}

	var hints []keyHint
	if !m.popup.loading {
		hints = append(hints, keyHint{"e", "Explain"}, keyHint{"5", "ELI5"})
		if m.popup.result != nil {
			hints = append(hints, keyHint{"x", "Continue in chat"})
		}
		if m.popup.saved != nil {
			hints = append(hints, keyHint{"o", fmt.Sprintf("Open saved thread (%d turns)", len(m.popup.saved.Turns))})
		}
	}
	hints = append(hints, keyHint{"esc", "Dismiss"})
	lines = append(lines, hintRow(hints))

	return popupStyle.Width(m.page.documentWidth - 2).Render(strings.Join(lines, "\n"))
}

// popupBodyLimit keeps the popup from pushing the page off screen.
func (m *model) popupBodyLimit() int {
	limit := m.page.paneHeight/2 - 4
	if limit < 3 {
		limit = 3
	}
	return limit
}

func modeLabel(mode simplify.Mode) string {
	switch mode {
	case simplify.ModeELI5:
		return "ELI5"
	case simplify.ModeFollowup:
		return "Follow-up"
	default:
		return "Explanation"
	}
}

func (m *model) statusView() string {
	stats := []string{fmt.Sprintf("Chapter %d/%d", m.chapter+1, max(len(m.doc.Chapters), 1))}
	if page, total := m.pageStatus(); total > 0 {
		stats = append(stats, fmt.Sprintf("Page %d of %d", page, total))
		stats = append(stats, fmt.Sprintf("%.0f%%", m.progress()))
	}
	switch {
	case m.focus == focusComposer:
		stats = append(stats, "CHAT")
	case m.selMode == selectVisual:
		stats = append(stats, "VISUAL")
	case m.layout.Dragging():
		stats = append(stats, "RESIZE")
	}
	if m.capture.Pending() {
		stats = append(stats, "selecting…")
	}
	if m.running[jobKindLocations] > 0 {
		stats = append(stats, "indexing pages…")
	}
	parts := []string{statusBarStyle.Render(strings.Join(stats, "  •  "))}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	} else if m.infoMessage != "" {
		parts = append(parts, helperStyle.Render(m.infoMessage))
	}
	return lipgloss.NewStyle().MaxWidth(m.page.windowWidth).Render(strings.Join(parts, " "))
}

func (m *model) hintView() string {
	hints := []keyHint{
		{"v", "Select"},
		{"e", "Explain"},
		{"5", "ELI5"},
		{"[/]", "Chapter"},
		{"t", "Contents"},
		{"?", "Keys"},
		{"q", "Quit"},
	}
	return lipgloss.NewStyle().MaxWidth(m.page.windowWidth).Render(hintRow(hints))
}

func hintRow(hints []keyHint) string {
	cells := make([]string, 0, len(hints))
	for _, hint := range hints {
		cells = append(cells, keyStyle.Render(hint.Key)+keyDescStyle.Render(" "+hint.Description))
	}
	return strings.Join(cells, "  ")
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"↑/↓", "Move cursor"},
		{"g/G", "Top or bottom"},
		{"[/]", "Prev/next chapter"},
		{"t", "Table of contents"},
		{"v", "Line selection"},
		{"drag", "Select with mouse"},
		{"e / 5", "Explain / ELI5"},
		{"x", "Continue in chat"},
		{"o", "Open saved thread"},
		{"Tab", "Reply in chat"},
		{"1/2/3", "Highlight/Chapter/Book"},
		{"s", "Save thread"},
		{"c", "Clear conversation"},
		{"< / >", "Move divider"},
		{"Esc", "Dismiss"},
		{"q", "Quit"},
	}
	rows := []string{sectionHeaderStyle.Render("Reading Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Width(24).Render(" " + hint.Description)
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}
