// Package conversation holds the selection-anchored chat thread and the
// policy that decides how much document context a follow-up carries.
package conversation

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PanelCloser is implemented by the layout coordinator. Store.Clear calls
// Close so a cleared conversation never leaves an empty panel on screen.
type PanelCloser interface {
	Close()
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the turn id source.
func WithIDGenerator(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.newID = next
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Store owns at most one active Conversation. It is the single writer; readers
// take a Snapshot. All methods are meant to be called from the UI update loop.
type Store struct {
	conv       *Conversation
	panel      PanelCloser
	generation uint64
	lastStamp  time.Time

	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewStore builds a Store. panel may be nil when no layout is attached.
func NewStore(panel PanelCloser, opts ...Option) *Store {
	s := &Store{
		panel: panel,
		now:   time.Now,
		newID: uuid.NewString,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces any existing conversation. Non-empty imported turns are kept
// verbatim; otherwise a single assistant turn is built from firstResponse.
// Scope always resets to highlight.
func (s *Store) Start(anchorText, firstResponse string, ctx Context, imported []Turn) {
	conv := &Conversation{
		AnchorText:     anchorText,
		ChapterContext: ctx.Chapter,
		BookContext:    ctx.Book,
		ChapterTitle:   ctx.ChapterTitle,
		Scope:          ScopeHighlight,
	}
	s.conv = conv
	s.generation++
	s.lastStamp = time.Time{}
	if len(imported) > 0 {
		conv.Turns = append([]Turn(nil), imported...)
		s.lastStamp = conv.Turns[len(conv.Turns)-1].CreatedAt
	} else {
		conv.Turns = []Turn{s.newTurn(RoleAssistant, firstResponse)}
	}
	s.log.Debug("conversation started",
		zap.Int("anchorChars", len([]rune(anchorText))),
		zap.Int("turns", len(conv.Turns)),
		zap.Bool("imported", len(imported) > 0),
		zap.Uint64("generation", s.generation),
	)
}

// Append adds a turn to the active conversation. It reports false and leaves
// the store untouched when no conversation is active.
func (s *Store) Append(role Role, content string) (Turn, bool) {
	if s.conv == nil {
		s.log.Debug("append ignored: no active conversation", zap.String("role", string(role)))
		return Turn{}, false
	}
	turn := s.newTurn(role, content)
	s.conv.Turns = append(s.conv.Turns, turn)
	return turn, true
}

// AppendReply appends an assistant turn produced by a request issued during
// the given generation. Replies for a conversation that has since been
// replaced or cleared are dropped.
func (s *Store) AppendReply(generation uint64, content string) (Turn, bool) {
	if generation != s.generation {
		s.log.Debug("stale reply dropped",
			zap.Uint64("replyGeneration", generation),
			zap.Uint64("generation", s.generation),
		)
		return Turn{}, false
	}
	return s.Append(RoleAssistant, content)
}

// SetScope changes the scope of the active conversation. Scopes whose context
// was not supplied at Start are rejected.
func (s *Store) SetScope(scope Scope) bool {
	if s.conv == nil {
		return false
	}
	if !s.conv.ScopeAvailable(scope) {
		s.log.Debug("scope unavailable", zap.String("scope", string(scope)))
		return false
	}
	s.conv.Scope = scope
	return true
}

// Clear drops the conversation and closes the conversation panel.
func (s *Store) Clear() {
	s.conv = nil
	s.generation++
	s.lastStamp = time.Time{}
	if s.panel != nil {
		s.panel.Close()
	}
}

// Active reports whether a conversation exists.
func (s *Store) Active() bool {
	return s.conv != nil
}

// Generation identifies the current conversation instance.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Scope returns the active scope, or highlight when idle.
func (s *Store) Scope() Scope {
	if s.conv == nil {
		return ScopeHighlight
	}
	return s.conv.Scope
}

// Snapshot returns a copy of the active conversation, or nil.
func (s *Store) Snapshot() *Conversation {
	return s.conv.clone()
}

func (s *Store) newTurn(role Role, content string) Turn {
	stamp := s.now()
	if stamp.Before(s.lastStamp) {
		stamp = s.lastStamp
	}
	s.lastStamp = stamp
	return Turn{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		CreatedAt: stamp,
	}
}
