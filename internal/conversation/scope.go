package conversation

import (
	"strings"
)

// Character budgets for the context attached to follow-up requests. They bound
// request size and therefore latency and cost.
const (
	DefaultChapterBudget = 15_000
	DefaultBookBudget    = 30_000
)

// ExcerptPolicy cuts a context body down to budget characters.
type ExcerptPolicy interface {
	Excerpt(body, anchor string, budget int) string
}

// HeadPolicy keeps the first budget characters. It is the default.
type HeadPolicy struct{}

// Excerpt implements ExcerptPolicy.
func (HeadPolicy) Excerpt(body, _ string, budget int) string {
	return clipRunes(body, budget)
}

// WindowPolicy keeps a window of the body centred on the first occurrence of
// the anchor text, widened to paragraph boundaries while the budget allows.
// Bodies that do not contain the anchor fall back to HeadPolicy.
type WindowPolicy struct{}

// Excerpt implements ExcerptPolicy.
func (WindowPolicy) Excerpt(body, anchor string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(body)
	if len(runes) <= budget {
		return body
	}
	start := indexFold(runes, []rune(strings.TrimSpace(anchor)))
	if start < 0 {
		return clipRunes(body, budget)
	}
	anchorLen := len([]rune(strings.TrimSpace(anchor)))
	if anchorLen >= budget {
		return string(runes[start : start+budget])
	}
	slack := budget - anchorLen
	lo := start - slack/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + budget
	if hi > len(runes) {
		hi = len(runes)
		lo = hi - budget
	}
	if para := paragraphStart(runes, lo, start); para > lo {
		lo = para
	}
	return strings.TrimSpace(string(runes[lo:hi]))
}

// Resolver maps the scope of a conversation to the context string sent with a
// follow-up request.
type Resolver struct {
	ChapterBudget int
	BookBudget    int
	Policy        ExcerptPolicy
}

// NewResolver returns a Resolver with the default budgets and head truncation.
func NewResolver() *Resolver {
	return &Resolver{
		ChapterBudget: DefaultChapterBudget,
		BookBudget:    DefaultBookBudget,
		Policy:        HeadPolicy{},
	}
}

// PolicyByName returns the excerpt policy for a config value ("head" or
// "window"). Unknown names use HeadPolicy.
func PolicyByName(name string) ExcerptPolicy {
	if strings.EqualFold(strings.TrimSpace(name), "window") {
		return WindowPolicy{}
	}
	return HeadPolicy{}
}

// Resolve returns the context for the conversation's current scope. Highlight
// scope and unavailable scopes yield an empty string.
func (r *Resolver) Resolve(c *Conversation) string {
	if c == nil || !c.ScopeAvailable(c.Scope) {
		return ""
	}
	switch c.Scope {
	case ScopeChapter:
		return r.policy().Excerpt(c.ChapterContext, c.AnchorText, r.budget(r.ChapterBudget, DefaultChapterBudget))
	case ScopeBook:
		return r.policy().Excerpt(c.BookContext, c.AnchorText, r.budget(r.BookBudget, DefaultBookBudget))
	default:
		return ""
	}
}

func (r *Resolver) policy() ExcerptPolicy {
	if r.Policy == nil {
		return HeadPolicy{}
	}
	return r.Policy
}

func (r *Resolver) budget(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	lowerHay := []rune(strings.ToLower(string(haystack)))
	lowerNeedle := []rune(strings.ToLower(string(needle)))
	if len(lowerHay) != len(haystack) {
		// Case folding changed the rune count; exact match only.
		lowerHay, lowerNeedle = haystack, needle
	}
	for i := 0; i+len(lowerNeedle) <= len(lowerHay); i++ {
		match := true
		for j := range lowerNeedle {
			if lowerHay[i+j] != lowerNeedle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// paragraphStart returns the first index after a blank line between lo and
// limit, or -1.
func paragraphStart(runes []rune, lo, limit int) int {
	for i := lo; i+1 < limit; i++ {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	return -1
}
