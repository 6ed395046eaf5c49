package simplify

// Mode selects the kind of generation the backend performs.
type Mode string

const (
	ModeExplain  Mode = "explain"
	ModeELI5     Mode = "eli5"
	ModeFollowup Mode = "followup"
)

// Valid reports whether the backend understands the mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExplain, ModeELI5, ModeFollowup:
		return true
	default:
		return false
	}
}

// HistoryTurn is one replayed conversation turn in a follow-up request.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/simplify.
type Request struct {
	Text                string        `json:"text"`
	Mode                Mode          `json:"mode"`
	ConversationHistory []HistoryTurn `json:"conversationHistory,omitempty"`
	OriginalText        string        `json:"originalText,omitempty"`
	Scope               string        `json:"scope,omitempty"`
	ScopeContext        string        `json:"scopeContext,omitempty"`
	ChapterTitle        string        `json:"chapterTitle,omitempty"`
}

// Response is the body returned by POST /api/simplify. Exactly one of
// Simplified or Error is expected to be set.
type Response struct {
	Simplified string `json:"simplified,omitempty"`
	Error      string `json:"error,omitempty"`
	Details    string `json:"details,omitempty"`
}

// Fixed strings shown in place of generated text when a request fails.
const (
	FallbackSimplify  = "Failed to simplify text. Please try again."
	FallbackFollowup  = "Unable to respond"
	PlaceholderNoText = "Unable to simplify text"
)

// Source records where a result's text came from.
type Source string

const (
	SourceDictionary Source = "dictionary"
	SourceBackend    Source = "backend"
	SourceFallback   Source = "fallback"
)

// Result is what the reader shows for a request. Text is never empty.
type Result struct {
	Text   string
	Source Source
}

// Failed reports whether the text is a fallback string.
func (r Result) Failed() bool {
	return r.Source == SourceFallback
}
