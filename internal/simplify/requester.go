// Package simplify issues explain, eli5 and follow-up requests to the
// generation endpoint and converts every failure into a fixed display string.
package simplify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/conversation"
)

const defaultTimeout = 60 * time.Second

var errMalformed = errors.New("response has no simplified text")

// Config describes the collaborators a Requester talks to.
type Config struct {
	Endpoint           string
	DictionaryEndpoint string
	HTTPClient         *http.Client
	Timeout            time.Duration
	Logger             *zap.Logger
}

// Requester performs one request per call. It never retries and never
// returns an error to the caller.
type Requester struct {
	endpoint   string
	dictionary string
	client     *http.Client
	timeout    time.Duration
	log        *zap.Logger
}

// FollowupInput is everything a follow-up request replays to the backend.
type FollowupInput struct {
	Question     string
	AnchorText   string
	History      []conversation.Turn
	Scope        conversation.Scope
	ScopeContext string
	ChapterTitle string
}

// New builds a Requester. An empty DictionaryEndpoint disables the
// single-word shortcut.
func New(cfg Config) *Requester {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Requester{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		dictionary: strings.TrimSpace(cfg.DictionaryEndpoint),
		client:     client,
		timeout:    timeout,
		log:        logger.Named("simplify"),
	}
}

// Explain returns a dictionary definition for a single word when one is
// available and otherwise asks the backend to explain the text.
func (r *Requester) Explain(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if isSingleToken(text) {
		if def := r.definition(ctx, text); def != "" {
			return Result{Text: def, Source: SourceDictionary}
		}
	}
	return r.simplify(ctx, Request{Text: text, Mode: ModeExplain}, FallbackSimplify, PlaceholderNoText)
}

// ELI5 asks the backend for a child-level explanation. There is no
// dictionary shortcut.
func (r *Requester) ELI5(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	return r.simplify(ctx, Request{Text: text, Mode: ModeELI5}, FallbackSimplify, PlaceholderNoText)
}

// Followup replays the conversation history with the new question.
func (r *Requester) Followup(ctx context.Context, in FollowupInput) Result {
	history := make([]HistoryTurn, 0, len(in.History))
	for _, turn := range in.History {
		history = append(history, HistoryTurn{Role: string(turn.Role), Content: turn.Content})
	}
	req := Request{
		Text:                strings.TrimSpace(in.Question),
		Mode:                ModeFollowup,
		ConversationHistory: history,
		OriginalText:        in.AnchorText,
		Scope:               string(in.Scope),
		ScopeContext:        in.ScopeContext,
		ChapterTitle:        in.ChapterTitle,
	}
	if req.Scope == "" {
		req.Scope = string(conversation.ScopeHighlight)
	}
	return r.simplify(ctx, req, FallbackFollowup, FallbackFollowup)
}

func (r *Requester) definition(ctx context.Context, word string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	def, err := r.lookupDefinition(ctx, word)
	if err != nil {
		r.log.Debug("dictionary miss", zap.String("word", word), zap.Error(err))
		return ""
	}
	return def
}

func (r *Requester) simplify(ctx context.Context, req Request, onFailure, onMalformed string) Result {
	start := time.Now()
	text, err := r.post(ctx, req)
	fields := []zap.Field{
		zap.String("mode", string(req.Mode)),
		zap.Int("text_len", len(req.Text)),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch {
	case err == nil:
		r.log.Debug("simplify ok", fields...)
		return Result{Text: text, Source: SourceBackend}
	case errors.Is(err, errMalformed):
		r.log.Warn("simplify malformed response", fields...)
		return Result{Text: onMalformed, Source: SourceFallback}
	default:
		r.log.Warn("simplify failed", append(fields, zap.Error(err))...)
		return Result{Text: onFailure, Source: SourceFallback}
	}
}

func (r *Requester) post(ctx context.Context, payload Request) (string, error) {
	if r.endpoint == "" {
		return "", errors.New("no generation endpoint configured")
	}
	if payload.Text == "" {
		return "", errors.New("text cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generation endpoint: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	text := strings.TrimSpace(parsed.Simplified)
	if text == "" {
		return "", errMalformed
	}
	return text, nil
}

func isSingleToken(text string) bool {
	if text == "" {
		return false
	}
	return strings.IndexFunc(text, unicode.IsSpace) < 0
}
