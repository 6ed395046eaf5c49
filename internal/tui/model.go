package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/layout"
	"github.com/csheth/lumen/internal/selection"
	"github.com/csheth/lumen/internal/simplify"
	"github.com/csheth/lumen/internal/threads"
)

const quitSaveTimeout = 2 * time.Second

type model struct {
	cfg  Config
	log  *zap.Logger
	doc  *document.Document
	jobs *jobBus

	capture  *selection.Capture
	layout   *layout.Coordinator
	store    *conversation.Store
	resolver *conversation.Resolver

	page      pageLayout
	chapter   int
	lines     []docLine
	wrapWidth int
	cursor    int
	viewport  viewport.Model

	selMode        selectMode
	selAnchor      int
	sel            *span
	mouseSelecting bool
	mouseLine      int
	mouseCol       int

	popup    popupState
	popupSeq int

	focus            focusArea
	composer         textinput.Model
	chat             viewport.Model
	chatDirty        bool
	followupInFlight bool
	renderer         *glamour.TermRenderer
	rendererWidth    int

	spinner        spinner.Model
	running        map[jobKind]int
	locations      document.Locations
	locationsReady bool
	showHelp       bool
	toc            tocState
	infoMessage    string
	errorMessage   string
}

// New builds the reader model for cfg.Document.
func New(cfg Config) tea.Model {
	return newModel(cfg)
}

func newModel(cfg Config) *model {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tui")

	doc := cfg.Document
	if doc == nil {
		doc = &document.Document{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = document.DefaultPageSize
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = conversation.NewResolver()
	}

	capture := selection.NewCapture()
	if cfg.SingleWordDelay > 0 {
		capture.SingleWordDelay = cfg.SingleWordDelay
	}
	if cfg.MultiWordDelay > 0 {
		capture.MultiWordDelay = cfg.MultiWordDelay
	}

	var widths layout.WidthStore
	if cfg.Library != nil {
		widths = cfg.Library
	}
	coord := layout.NewCoordinator(context.Background(), widths, logger)
	coord.SetDefault(cfg.PanelWidth)

	composer := textinput.New()
	composer.Placeholder = "Ask a follow-up…"
	composer.CharLimit = followupCharLimit
	composer.Prompt = "› "

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := &model{
		cfg:      cfg,
		log:      logger,
		doc:      doc,
		jobs:     newJobBus(logger),
		capture:  capture,
		layout:   coord,
		store:    conversation.NewStore(coord, conversation.WithLogger(logger)),
		resolver: resolver,
		page:     newPageLayout(),
		viewport: viewport.New(80, 20),
		composer: composer,
		chat:     viewport.New(40, 10),
		spinner:  spin,
		running:  make(map[jobKind]int),
	}
	coord.OnResize(func(layout.ResizeEvent) {
		m.relayout()
	})

	start := cfg.Start
	if start.Chapter < 0 || start.Chapter >= len(doc.Chapters) {
		start = document.Position{}
	}
	m.relayout()
	m.loadChapter(start.Chapter, start.Line)
	return m
}

func (m *model) Init() tea.Cmd {
	if len(m.doc.Chapters) == 0 {
		return nil
	}
	return m.jobs.Start(jobKindLocations, locationsJob(m.cfg.Library, m.doc, m.cfg.PageSize))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			if m.followupInFlight {
				m.chatDirty = true
			}
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.page.windowWidth = msg.Width
		m.page.windowHeight = msg.Height
		m.relayout()
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tea.MouseMsg:
		return m, m.handleMouse(msg)
	case selection.StableMsg:
		sel, ok := m.capture.Resolve(msg)
		if !ok {
			return m, nil
		}
		return m, m.showPopup(sel)
	case jobSignalMsg:
		m.running[msg.Snapshot.Kind]++
		return m, nil
	case jobResultEnvelope:
		if m.running[msg.Snapshot.Kind] > 0 {
			m.running[msg.Snapshot.Kind]--
		}
		if msg.Payload == nil {
			return m, nil
		}
		return m.Update(msg.Payload)
	case simplifyResultMsg:
		m.applySimplifyResult(msg)
		return m, nil
	case followupResultMsg:
		m.applyFollowupResult(msg)
		return m, nil
	case threadLookupMsg:
		if msg.err != nil {
			m.log.Warn("thread lookup failed", zap.Error(msg.err))
			return m, nil
		}
		if msg.found && m.popup.visible && msg.request == m.popup.request {
			thread := msg.thread
			m.popup.saved = &thread
			m.relayout()
		}
		return m, nil
	case threadSavedMsg:
		if msg.err != nil {
			m.errorMessage = "Failed to save thread: " + msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = fmt.Sprintf("Thread saved (%d turns).", msg.turns)
		return m, nil
	case locationsReadyMsg:
		if msg.err != nil {
			m.log.Warn("persist locations", zap.Error(msg.err))
		}
		m.locations = msg.locations
		m.locationsReady = true
		return m, nil
	case progressSavedMsg:
		if msg.err != nil {
			m.log.Warn("persist progress", zap.String("position", msg.position.String()), zap.Error(msg.err))
		}
		return m, nil
	}
	return m, nil
}

func (m *model) busy() bool {
	return m.popup.loading || m.followupInFlight
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}
	if m.focus == focusComposer {
		return m.handleComposerKey(msg)
	}
	if m.toc.visible {
		return m.handleTOCKey(msg)
	}
	m.infoMessage = ""
	switch msg.String() {
	case "q":
		return m.quit()
	case "?":
		m.showHelp = !m.showHelp
		m.relayout()
	case "j", "down":
		return m.moveCursor(1)
	case "k", "up":
		return m.moveCursor(-1)
	case "pgdown", " ", "f":
		return m.moveCursor(m.viewport.Height)
	case "pgup", "b":
		return m.moveCursor(-m.viewport.Height)
	case "g", "home":
		return m.setCursor(0)
	case "G", "end":
		return m.setCursor(len(m.lines) - 1)
	case "]", "n":
		return m.changeChapter(1)
	case "[", "p":
		return m.changeChapter(-1)
	case "v":
		return m.toggleVisual()
	case "t":
		m.openTOC()
	case "esc":
		m.dismiss()
	case "e":
		return m.requestSimplify(simplify.ModeExplain)
	case "5":
		return m.requestSimplify(simplify.ModeELI5)
	case "x":
		return m.expandPopup()
	case "o":
		return m.openSavedThread()
	case "1", "2", "3":
		m.selectScope(conversation.Scopes[int(msg.Runes[0]-'1')])
	case "c":
		m.clearConversation()
	case "s":
		return m.saveThread()
	case "<":
		m.nudge(layout.KeyboardStep)
	case ">":
		m.nudge(-layout.KeyboardStep)
	case "tab", "i":
		return m.focusComposer()
	}
	return nil
}

func (m *model) handleComposerKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyTab:
		m.blurComposer()
		return nil
	case tea.KeyEnter:
		return m.sendFollowup()
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return cmd
}

// handleMouse routes every event to the divider while a drag is in progress,
// so the document never sees a selection gesture mid-resize.
func (m *model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.toc.visible {
		return nil
	}
	if m.layout.Dragging() {
		switch msg.Type {
		case tea.MouseRelease:
			if err := m.layout.EndDrag(context.Background()); err != nil {
				m.errorMessage = "Failed to save panel width."
			}
		default:
			m.layout.DragTo(msg.X, m.page.windowWidth)
			m.relayout()
		}
		return nil
	}

	inPane := msg.Y >= headerHeight && msg.Y < headerHeight+m.page.paneHeight
	inPanel := m.layout.Visible() && msg.X > m.page.dividerX()
	switch msg.Type {
	case tea.MouseWheelUp, tea.MouseWheelDown:
		step := 3
		if msg.Type == tea.MouseWheelUp {
			step = -3
		}
		if inPanel {
			if step < 0 {
				m.chat.LineUp(-step)
			} else {
				m.chat.LineDown(step)
			}
			return nil
		}
		return m.moveCursor(step)
	case tea.MouseLeft:
		if !m.mouseSelecting && m.layout.Visible() && inPane && abs(msg.X-m.page.dividerX()) <= 1 {
			if m.layout.BeginDrag() {
				return nil
			}
		}
		if !inPane {
			return nil
		}
		if inPanel {
			if !m.mouseSelecting {
				return m.focusComposer()
			}
			return nil
		}
		line, col := m.cellAt(msg.X, msg.Y)
		if !m.mouseSelecting {
			m.hidePopup()
			m.blurComposer()
			m.mouseSelecting = true
			m.selMode = selectMouse
			m.mouseLine, m.mouseCol = line, col
			m.cursor = line
		}
		s := cellSpan(m.lines, m.mouseLine, m.mouseCol, line, col)
		m.sel = &s
		return m.observeSelection()
	case tea.MouseRelease:
		m.mouseSelecting = false
	}
	return nil
}

func (m *model) cellAt(x, y int) (int, int) {
	line := clampInt(m.viewport.YOffset+y-headerHeight, 0, len(m.lines)-1)
	col := x - documentMargin
	if col < 0 {
		col = 0
	}
	return line, col
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// relayout recomputes pane sizes and rewraps the chapter when the text width
// changed, keeping the cursor on the same source line.
func (m *model) relayout() {
	m.page.Update(m.page.windowWidth, m.page.windowHeight, m.extraFooterHeight(), m.layout)

	docHeight := m.page.paneHeight - m.popupHeight()
	if docHeight < 1 {
		docHeight = 1
	}
	m.viewport.Width = m.page.documentWidth
	m.viewport.Height = docHeight

	inner := m.panelInnerWidth()
	m.chat.Width = inner
	chatHeight := m.page.paneHeight - panelChrome
	if chatHeight < 1 {
		chatHeight = 1
	}
	m.chat.Height = chatHeight
	m.composer.Width = inner - len([]rune(m.composer.Prompt)) - 1
	if m.composer.Width < 1 {
		m.composer.Width = 1
	}
	m.chatDirty = true

	if m.lines != nil && m.wrapWidth != m.page.textWidth() {
		m.rewrap()
	}
	m.refreshDocument()
}

func (m *model) rewrap() {
	ch, ok := m.doc.Chapter(m.chapter)
	if !ok {
		return
	}
	source := 0
	if m.cursor >= 0 && m.cursor < len(m.lines) {
		source = m.lines[m.cursor].source
	}
	m.wrapWidth = m.page.textWidth()
	m.lines = wrapChapter(ch, m.wrapWidth)
	m.cursor = lineForSource(m.lines, source)
	if m.sel != nil {
		m.clearSelection()
	}
}

func (m *model) extraFooterHeight() int {
	if !m.showHelp {
		return 0
	}
	return strings.Count(m.keyLegendView(), "\n") + 1
}

func (m *model) popupHeight() int {
	if !m.popup.visible {
		return 0
	}
	return strings.Count(m.popupView(), "\n") + 1
}

func (m *model) loadChapter(idx, source int) {
	ch, ok := m.doc.Chapter(idx)
	if !ok {
		m.lines = []docLine{{}}
		m.cursor = 0
		m.refreshDocument()
		return
	}
	m.chapter = idx
	m.wrapWidth = m.page.textWidth()
	m.lines = wrapChapter(ch, m.wrapWidth)
	m.cursor = lineForSource(m.lines, source)
	m.clearSelection()
	m.viewport.SetYOffset(0)
	m.refreshDocument()
}

func (m *model) refreshDocument() {
	if m.lines == nil {
		return
	}
	showCursor := m.focus == focusDocument && m.selMode != selectMouse
	m.viewport.SetContent(renderDocument(m.lines, m.page.textWidth(), m.cursor, showCursor, m.sel))
	m.ensureCursorVisible()
}

func (m *model) ensureCursorVisible() {
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m *model) moveCursor(delta int) tea.Cmd {
	return m.setCursor(m.cursor + delta)
}

func (m *model) setCursor(line int) tea.Cmd {
	m.cursor = clampInt(line, 0, len(m.lines)-1)
	if m.selMode == selectVisual {
		s := lineSpan(m.selAnchor, m.cursor)
		m.sel = &s
		return m.observeSelection()
	}
	if m.selMode == selectMouse && !m.mouseSelecting {
		m.clearSelection()
	}
	m.refreshDocument()
	return nil
}

func (m *model) toggleVisual() tea.Cmd {
	if m.selMode == selectVisual {
		m.clearSelection()
		m.refreshDocument()
		return nil
	}
	m.hidePopup()
	m.selMode = selectVisual
	m.selAnchor = m.cursor
	s := lineSpan(m.cursor, m.cursor)
	m.sel = &s
	return m.observeSelection()
}

// currentSelection is the text and anchor under the active span.
func (m *model) currentSelection() (selection.Selection, bool) {
	if m.sel == nil || len(m.lines) == 0 {
		return selection.Selection{}, false
	}
	start := clampInt(m.sel.startLine, 0, len(m.lines)-1)
	end := clampInt(m.sel.endLine, 0, len(m.lines)-1)
	sel := selection.Selection{
		Text: selection.Normalize(m.sel.text(m.lines)),
		Anchor: selection.Anchor{
			Chapter:   m.chapter,
			StartLine: m.lines[start].source,
			EndLine:   m.lines[end].source,
		},
	}
	return sel, sel.Text != ""
}

func (m *model) observeSelection() tea.Cmd {
	m.refreshDocument()
	sel, ok := m.currentSelection()
	if !ok {
		m.capture.Cancel()
		return nil
	}
	return m.capture.Observe(sel)
}

func (m *model) clearSelection() {
	m.selMode = selectNone
	m.sel = nil
	m.mouseSelecting = false
	m.capture.Cancel()
}

func (m *model) dismiss() {
	if m.popup.visible {
		m.hidePopup()
		return
	}
	m.clearSelection()
	m.refreshDocument()
}

func (m *model) showPopup(sel selection.Selection) tea.Cmd {
	m.popupSeq++
	m.popup = popupState{visible: true, selection: sel, request: m.popupSeq}
	m.relayout()
	if m.cfg.Threads == nil {
		return nil
	}
	return m.jobs.Start(jobKindLookup, lookupThreadJob(m.cfg.Threads, m.doc.ID, sel.Text, m.popupSeq))
}

// hidePopup dismisses the popup. Results still in flight for it are dropped
// when they arrive.
func (m *model) hidePopup() {
	if !m.popup.visible {
		return
	}
	m.popupSeq++
	m.popup = popupState{}
	m.relayout()
}

func (m *model) requestSimplify(mode simplify.Mode) tea.Cmd {
	var cmds []tea.Cmd
	if !m.popup.visible {
		sel, ok := m.currentSelection()
		if !ok {
			m.infoMessage = "Select text first: press v or drag with the mouse."
			return nil
		}
		m.capture.Cancel()
		cmds = append(cmds, m.showPopup(sel))
	}
	if m.popup.loading {
		return tea.Batch(cmds...)
	}
	if m.cfg.Requester == nil {
		m.errorMessage = "No simplification backend configured."
		return tea.Batch(cmds...)
	}
	m.popup.loading = true
	m.popup.mode = mode
	m.popup.result = nil
	m.relayout()
	cmds = append(cmds,
		m.spinner.Tick,
		m.jobs.Start(jobKindSimplify, simplifyJob(m.cfg.Requester, mode, m.popup.selection.Text, m.popup.request)),
	)
	return tea.Batch(cmds...)
}

func (m *model) applySimplifyResult(msg simplifyResultMsg) {
	if !m.popup.visible || msg.request != m.popup.request {
		m.log.Debug("stale simplify result dropped", zap.Int("request", msg.request))
		return
	}
	res := msg.result
	m.popup.loading = false
	m.popup.mode = msg.mode
	m.popup.result = &res
	m.relayout()
}

func (m *model) expandPopup() tea.Cmd {
	if !m.popup.visible || m.popup.loading || m.popup.result == nil {
		return nil
	}
	sel := m.popup.selection
	m.startConversation(sel, m.popup.result.Text, nil)
	m.hidePopup()
	m.clearSelection()
	return m.focusComposer()
}

func (m *model) openSavedThread() tea.Cmd {
	if !m.popup.visible || m.popup.saved == nil {
		return nil
	}
	saved := *m.popup.saved
	m.startConversation(m.popup.selection, "", saved.Turns)
	if saved.Scope != "" {
		m.store.SetScope(saved.Scope)
	}
	m.hidePopup()
	m.clearSelection()
	m.infoMessage = fmt.Sprintf("Imported saved thread (%d turns).", len(saved.Turns))
	return m.focusComposer()
}

func (m *model) startConversation(sel selection.Selection, first string, imported []conversation.Turn) {
	ch, _ := m.doc.Chapter(sel.Anchor.Chapter)
	m.store.Start(sel.Text, first, conversation.Context{
		Chapter:      ch.Text,
		Book:         m.doc.FullText(),
		ChapterTitle: ch.Title,
	}, imported)
	m.followupInFlight = false
	m.chatDirty = true
	m.layout.Open()
}

func (m *model) selectScope(scope conversation.Scope) {
	if !m.store.Active() {
		m.infoMessage = "Start a conversation first."
		return
	}
	if !m.store.SetScope(scope) {
		m.infoMessage = scope.Label() + " context is unavailable."
		return
	}
	m.chatDirty = true
}

func (m *model) clearConversation() {
	if !m.store.Active() {
		return
	}
	m.store.Clear()
	m.followupInFlight = false
	m.blurComposer()
	m.composer.SetValue("")
	m.chatDirty = true
}

func (m *model) saveThread() tea.Cmd {
	thread, ok := threads.FromConversation(m.doc.ID, m.doc.Title, m.store.Snapshot())
	if !ok {
		m.infoMessage = "Nothing to save yet."
		return nil
	}
	if m.cfg.Threads == nil {
		m.errorMessage = "Thread storage is not configured."
		return nil
	}
	return m.jobs.Start(jobKindSave, saveThreadJob(m.cfg.Threads, thread))
}

func (m *model) nudge(delta float64) {
	if !m.layout.Visible() {
		m.infoMessage = "Open a conversation to resize the panel."
		return
	}
	if err := m.layout.Nudge(context.Background(), delta); err != nil {
		m.errorMessage = "Failed to save panel width."
	}
}

func (m *model) focusComposer() tea.Cmd {
	if !m.store.Active() {
		return nil
	}
	m.focus = focusComposer
	m.refreshDocument()
	return m.composer.Focus()
}

func (m *model) blurComposer() {
	if m.focus != focusComposer {
		return
	}
	m.focus = focusDocument
	m.composer.Blur()
	m.refreshDocument()
}

// sendFollowup appends the question and issues the request. Only one
// follow-up may be in flight at a time.
func (m *model) sendFollowup() tea.Cmd {
	question := strings.TrimSpace(m.composer.Value())
	if question == "" || !m.store.Active() {
		return nil
	}
	if m.followupInFlight {
		m.infoMessage = "Waiting for the previous reply…"
		return nil
	}
	if m.cfg.Requester == nil {
		m.errorMessage = "No simplification backend configured."
		return nil
	}
	before := m.store.Snapshot()
	if _, ok := m.store.Append(conversation.RoleUser, question); !ok {
		return nil
	}
	in := simplify.FollowupInput{
		Question:     question,
		AnchorText:   before.AnchorText,
		History:      before.Turns,
		Scope:        before.Scope,
		ScopeContext: m.resolver.Resolve(before),
		ChapterTitle: before.ChapterTitle,
	}
	m.composer.SetValue("")
	m.followupInFlight = true
	m.chatDirty = true
	return tea.Batch(
		m.spinner.Tick,
		m.jobs.Start(jobKindFollowup, followupJob(m.cfg.Requester, in, m.store.Generation())),
	)
}

func (m *model) applyFollowupResult(msg followupResultMsg) {
	if msg.generation == m.store.Generation() {
		m.followupInFlight = false
	}
	if _, ok := m.store.AppendReply(msg.generation, msg.result.Text); ok {
		m.chatDirty = true
	}
}

func (m *model) changeChapter(delta int) tea.Cmd {
	next := m.chapter + delta
	if next < 0 || next >= len(m.doc.Chapters) {
		m.infoMessage = "No more chapters."
		return nil
	}
	return m.goToChapter(next)
}

func (m *model) goToChapter(idx int) tea.Cmd {
	m.hidePopup()
	m.loadChapter(idx, 0)
	return m.persistCmd()
}

func (m *model) position() document.Position {
	pos := document.Position{Chapter: m.chapter}
	if m.cursor >= 0 && m.cursor < len(m.lines) {
		pos.Line = m.lines[m.cursor].source
	}
	return pos
}

func (m *model) progress() float64 {
	if !m.locationsReady {
		m.locations = document.BuildLocations(m.doc, m.cfg.PageSize)
		m.locationsReady = true
	}
	pos := m.position()
	ch, _ := m.doc.Chapter(pos.Chapter)
	return m.locations.Progress(pos.Chapter, ch.LineOffset(pos.Line))
}

// pageStatus is the current page and page count, or zeros before the
// pagination index is ready.
func (m *model) pageStatus() (int, int) {
	if !m.locationsReady {
		return 0, 0
	}
	pos := m.position()
	ch, _ := m.doc.Chapter(pos.Chapter)
	return m.locations.PageAt(pos.Chapter, ch.LineOffset(pos.Line)), m.locations.Total()
}

func (m *model) persistCmd() tea.Cmd {
	if m.cfg.Library == nil || m.doc.ID == "" {
		return nil
	}
	return m.jobs.Start(jobKindProgress, progressJob(m.cfg.Library, m.doc.ID, m.position(), m.progress()))
}

// quit saves the reading position synchronously so it lands before the
// program exits.
func (m *model) quit() tea.Cmd {
	if m.cfg.Library != nil && m.doc.ID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), quitSaveTimeout)
		defer cancel()
		if err := saveProgress(ctx, m.cfg.Library, m.doc.ID, m.position(), m.progress()); err != nil {
			m.log.Warn("persist progress on quit", zap.Error(err))
		}
	}
	m.jobs.Stop()
	return tea.Quit
}
