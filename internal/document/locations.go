package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultPageSize is the number of characters counted as one page.
const DefaultPageSize = 1600

// Location marks the start of a page: a chapter and a rune offset within it.
type Location struct {
	Chapter int `json:"chapter"`
	Offset  int `json:"offset"`
}

// Locations is the pagination index of a document. Pages never span
// chapters, so short chapters count as a full page.
type Locations struct {
	PageSize int        `json:"pageSize"`
	Length   int        `json:"length"`
	Pages    []Location `json:"pages"`
}

// BuildLocations computes the index for doc.
func BuildLocations(doc *Document, pageSize int) Locations {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	locs := Locations{PageSize: pageSize}
	for i, ch := range doc.Chapters {
		n := utf8.RuneCountInString(ch.Text)
		locs.Length += n
		for off := 0; off < n || off == 0; off += pageSize {
			locs.Pages = append(locs.Pages, Location{Chapter: i, Offset: off})
		}
	}
	return locs
}

// Matches reports whether the index was built for a document of this shape.
func (l Locations) Matches(doc *Document, pageSize int) bool {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return l.PageSize == pageSize && l.Length == doc.Length() && len(l.Pages) > 0 &&
		l.Pages[len(l.Pages)-1].Chapter == len(doc.Chapters)-1
}

// Total is the number of pages.
func (l Locations) Total() int { return len(l.Pages) }

// PageAt returns the 1-based page containing the given position.
func (l Locations) PageAt(chapter, offset int) int {
	i := sort.Search(len(l.Pages), func(i int) bool {
		p := l.Pages[i]
		return p.Chapter > chapter || (p.Chapter == chapter && p.Offset > offset)
	})
	if i == 0 {
		return 1
	}
	return i
}

// Progress is the reading percentage at a position, 0 to 100.
func (l Locations) Progress(chapter, offset int) float64 {
	if len(l.Pages) <= 1 {
		if chapter > 0 || offset > 0 {
			return 100
		}
		return 0
	}
	return float64(l.PageAt(chapter, offset)-1) / float64(len(l.Pages)-1) * 100
}

// Encode serializes the index for the record store.
func (l Locations) Encode() ([]byte, error) {
	return json.Marshal(l)
}

// DecodeLocations parses an index produced by Encode.
func DecodeLocations(data []byte) (Locations, error) {
	var l Locations
	if err := json.Unmarshal(data, &l); err != nil {
		return Locations{}, fmt.Errorf("decode locations: %w", err)
	}
	if l.PageSize <= 0 {
		return Locations{}, errors.New("decode locations: missing page size")
	}
	return l, nil
}

// Position is a reading position: a chapter and a source line within it.
// Lines are counted before wrapping so positions survive terminal resizes.
type Position struct {
	Chapter int
	Line    int
}

// String encodes the position as the "chapter:line" token stored in the library.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Chapter, p.Line)
}

// ParsePosition decodes a token produced by Position.String.
func ParsePosition(token string) (Position, error) {
	var p Position
	if _, err := fmt.Sscanf(token, "%d:%d", &p.Chapter, &p.Line); err != nil {
		return Position{}, fmt.Errorf("parse position %q: %w", token, err)
	}
	if p.Chapter < 0 || p.Line < 0 {
		return Position{}, fmt.Errorf("parse position %q: negative value", token)
	}
	return p, nil
}

// Lines splits the chapter text into source lines.
func (c Chapter) Lines() []string {
	return strings.Split(c.Text, "\n")
}

// LineOffset is the rune offset at which source line starts.
func (c Chapter) LineOffset(line int) int {
	offset := 0
	for i, l := range c.Lines() {
		if i >= line {
			break
		}
		offset += utf8.RuneCountInString(l) + 1
	}
	return offset
}
