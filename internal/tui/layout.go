package tui

import (
	"strings"
	"unicode"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/layout"
)

// documentMargin is the blank column on each side of the document text.
const documentMargin = 1

type pageLayout struct {
	windowWidth   int
	windowHeight  int
	documentWidth int
	panelWidth    int
	paneHeight    int
}

func newPageLayout() pageLayout {
	return pageLayout{
		windowWidth:   80,
		windowHeight:  24,
		documentWidth: 80,
		paneHeight:    24 - headerHeight - footerHeight,
	}
}

// Update recomputes the split for the given window. extraFooter is the height
// of anything stacked under the status line, such as the key legend.
func (l *pageLayout) Update(width, height, extraFooter int, coord *layout.Coordinator) {
	l.windowWidth = width
	l.windowHeight = height
	l.documentWidth, l.panelWidth = coord.Split(width)
	if l.panelWidth > 0 && l.documentWidth < minDocumentWidth && width > minDocumentWidth {
		l.documentWidth = minDocumentWidth
		l.panelWidth = width - minDocumentWidth
	}
	l.paneHeight = height - headerHeight - footerHeight - extraFooter
	if l.paneHeight < minPaneHeight {
		l.paneHeight = minPaneHeight
	}
}

// textWidth is the wrap width of the document pane.
func (l pageLayout) textWidth() int {
	w := l.documentWidth - 2*documentMargin
	if w < 1 {
		w = 1
	}
	return w
}

// dividerX is the screen column of the panel's left border.
func (l pageLayout) dividerX() int {
	return l.documentWidth
}

type contentBuilder struct {
	builder strings.Builder
	lines   int
}

func (b *contentBuilder) WriteString(s string) {
	b.builder.WriteString(s)
	b.lines += strings.Count(s, "\n")
}

func (b *contentBuilder) WriteRune(r rune) {
	b.builder.WriteRune(r)
	if r == '\n' {
		b.lines++
	}
}

func (b *contentBuilder) String() string {
	return b.builder.String()
}

// docLine is one wrapped display line and the source line it came from.
type docLine struct {
	text   string
	source int
}

func wrapChapter(ch document.Chapter, width int) []docLine {
	if width < 1 {
		width = 1
	}
	var out []docLine
	for i, src := range ch.Lines() {
		src = strings.TrimRightFunc(src, unicode.IsSpace)
		if strings.TrimSpace(src) == "" {
			out = append(out, docLine{source: i})
			continue
		}
		wrapped := wrap.String(wordwrap.String(src, width), width)
		for _, part := range strings.Split(wrapped, "\n") {
			out = append(out, docLine{text: part, source: i})
		}
	}
	if len(out) == 0 {
		out = append(out, docLine{})
	}
	return out
}

// lineForSource returns the first display line wrapped from source.
func lineForSource(lines []docLine, source int) int {
	for i, l := range lines {
		if l.source >= source {
			return i
		}
	}
	return len(lines) - 1
}

// span is a selection over display lines. endCol is exclusive; a negative
// endCol runs to the end of the line.
type span struct {
	startLine, startCol int
	endLine, endCol     int
}

func lineSpan(a, b int) span {
	if a > b {
		a, b = b, a
	}
	return span{startLine: a, endLine: b, endCol: -1}
}

// cellSpan orders two cell positions and widens both ends to word boundaries.
func cellSpan(lines []docLine, fromLine, fromCol, toLine, toCol int) span {
	if toLine < fromLine || (toLine == fromLine && toCol < fromCol) {
		fromLine, fromCol, toLine, toCol = toLine, toCol, fromLine, fromCol
	}
	s := span{startLine: fromLine, startCol: fromCol, endLine: toLine, endCol: toCol + 1}
	if fromLine >= 0 && fromLine < len(lines) {
		s.startCol, _ = wordBounds([]rune(lines[fromLine].text), fromCol)
	}
	if toLine >= 0 && toLine < len(lines) {
		_, s.endCol = wordBounds([]rune(lines[toLine].text), toCol)
	}
	return s
}

// columns returns the rune range of line covered by the span.
func (s span) columns(line int, length int) (int, int, bool) {
	if line < s.startLine || line > s.endLine {
		return 0, 0, false
	}
	from, to := 0, length
	if line == s.startLine {
		from = s.startCol
	}
	if line == s.endLine && s.endCol >= 0 {
		to = s.endCol
	}
	from = clampInt(from, 0, length)
	to = clampInt(to, from, length)
	return from, to, true
}

func (s span) text(lines []docLine) string {
	var parts []string
	for i := s.startLine; i <= s.endLine && i < len(lines); i++ {
		if i < 0 {
			continue
		}
		runes := []rune(lines[i].text)
		from, to, ok := s.columns(i, len(runes))
		if !ok || from == to {
			continue
		}
		parts = append(parts, string(runes[from:to]))
	}
	return strings.Join(parts, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' || r == '’'
}

// wordBounds returns the word around col. Outside a word the range is the
// single cell at col.
func wordBounds(runes []rune, col int) (int, int) {
	if len(runes) == 0 {
		return 0, 0
	}
	col = clampInt(col, 0, len(runes)-1)
	if !isWordRune(runes[col]) {
		return col, col + 1
	}
	start, end := col, col+1
	for start > 0 && isWordRune(runes[start-1]) {
		start--
	}
	for end < len(runes) && isWordRune(runes[end]) {
		end++
	}
	return start, end
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// renderDocument draws the wrapped lines with the cursor and selection
// highlights applied.
func renderDocument(lines []docLine, width, cursor int, showCursor bool, sel *span) string {
	margin := strings.Repeat(" ", documentMargin)
	out := make([]string, len(lines))
	for i, line := range lines {
		runes := []rune(line.text)
		if sel != nil {
			if from, to, ok := sel.columns(i, len(runes)); ok && from < to {
				out[i] = margin + string(runes[:from]) +
					selectionStyle.Render(string(runes[from:to])) +
					string(runes[to:])
				continue
			}
		}
		if showCursor && i == cursor {
			pad := width - len(runes)
			if pad < 0 {
				pad = 0
			}
			out[i] = margin + currentLineStyle.Render(line.text+strings.Repeat(" ", pad))
			continue
		}
		out[i] = margin + line.text
	}
	return strings.Join(out, "\n")
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
