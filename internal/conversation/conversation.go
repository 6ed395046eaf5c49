package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Scope is the breadth of document context attached to follow-up requests.
type Scope string

const (
	ScopeHighlight Scope = "highlight"
	ScopeChapter   Scope = "chapter"
	ScopeBook      Scope = "book"
)

// Scopes lists every scope in display order.
var Scopes = []Scope{ScopeHighlight, ScopeChapter, ScopeBook}

// ParseScope converts user or config input into a Scope.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case ScopeHighlight, "":
		return ScopeHighlight, nil
	case ScopeChapter:
		return ScopeChapter, nil
	case ScopeBook:
		return ScopeBook, nil
	default:
		return "", fmt.Errorf("unknown scope %q", value)
	}
}

// Label returns the short label shown in the scope switcher.
func (s Scope) Label() string {
	switch s {
	case ScopeChapter:
		return "Chapter"
	case ScopeBook:
		return "Book"
	default:
		return "Highlight"
	}
}

// Turn is one message within a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Context carries the optional document bodies supplied by the document view
// when a conversation starts.
type Context struct {
	Chapter      string
	Book         string
	ChapterTitle string
}

// Conversation is the thread anchored to a text selection.
type Conversation struct {
	AnchorText     string
	ChapterContext string
	BookContext    string
	ChapterTitle   string
	Turns          []Turn
	Scope          Scope
}

// ScopeAvailable reports whether the conversation carries the context the
// scope needs. Highlight is always available.
func (c *Conversation) ScopeAvailable(scope Scope) bool {
	if c == nil {
		return false
	}
	switch scope {
	case ScopeHighlight:
		return true
	case ScopeChapter:
		return strings.TrimSpace(c.ChapterContext) != ""
	case ScopeBook:
		return strings.TrimSpace(c.BookContext) != ""
	default:
		return false
	}
}

// LastTurn returns the most recent turn.
func (c *Conversation) LastTurn() (Turn, bool) {
	if c == nil || len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

func (c *Conversation) clone() *Conversation {
	if c == nil {
		return nil
	}
	copy := *c
	copy.Turns = append([]Turn(nil), c.Turns...)
	return &copy
}
