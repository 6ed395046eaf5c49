package simplify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/lumen/internal/conversation"
)

const dictionaryHit = `[{"word":"perspicacious","meanings":[
 {"partOfSpeech":"adjective","definitions":[{"definition":"Having keen insight."},{"definition":"unused"}]},
 {"partOfSpeech":"noun","definitions":[{"definition":"A second sense."}]},
 {"partOfSpeech":"verb","definitions":[{"definition":"A third sense."}]}]}]`

type backendStub struct {
	calls atomic.Int32
	last  Request
}

func (b *backendStub) server(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&b.last))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dictionaryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExplainSingleWordUsesDictionaryOnly(t *testing.T) {
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{"simplified":"from backend"}`)
	dict := dictionaryServer(t, http.StatusOK, dictionaryHit)

	r := New(Config{Endpoint: gen.URL, DictionaryEndpoint: dict.URL})
	res := r.Explain(context.Background(), " perspicacious ")

	assert.Equal(t, SourceDictionary, res.Source)
	assert.Equal(t, "*adjective*: Having keen insight.\n\n*noun*: A second sense.", res.Text)
	assert.Zero(t, backend.calls.Load(), "backend must not be called on a dictionary hit")
}

func TestExplainSingleWordFallsThroughOnDictionaryMiss(t *testing.T) {
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{"simplified":"A rare word."}`)
	dict := dictionaryServer(t, http.StatusNotFound, `{"title":"No Definitions Found"}`)

	res := New(Config{Endpoint: gen.URL, DictionaryEndpoint: dict.URL}).Explain(context.Background(), "zzyzx")

	assert.Equal(t, Result{Text: "A rare word.", Source: SourceBackend}, res)
	assert.Equal(t, ModeExplain, backend.last.Mode)
	assert.Equal(t, "zzyzx", backend.last.Text)
}

func TestExplainMultiWordSkipsDictionary(t *testing.T) {
	var dictCalls atomic.Int32
	dict := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dictCalls.Add(1)
	}))
	t.Cleanup(dict.Close)
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{"simplified":"Plainly put."}`)

	res := New(Config{Endpoint: gen.URL, DictionaryEndpoint: dict.URL}).Explain(context.Background(), "keen insight")

	assert.Equal(t, SourceBackend, res.Source)
	assert.Zero(t, dictCalls.Load())
}

func TestELI5NeverUsesDictionary(t *testing.T) {
	var dictCalls atomic.Int32
	dict := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dictCalls.Add(1)
		_, _ = w.Write([]byte(dictionaryHit))
	}))
	t.Cleanup(dict.Close)
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{"simplified":"Very smart."}`)

	res := New(Config{Endpoint: gen.URL, DictionaryEndpoint: dict.URL}).ELI5(context.Background(), "perspicacious")

	assert.Equal(t, "Very smart.", res.Text)
	assert.Equal(t, ModeELI5, backend.last.Mode)
	assert.Zero(t, dictCalls.Load())
}

func TestFailuresBecomeFallbackStrings(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, want: FallbackSimplify},
		{name: "error payload", status: http.StatusOK, body: `{"error":"model offline","details":"x"}`, want: PlaceholderNoText},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: PlaceholderNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &backendStub{}
			gen := backend.server(t, tt.status, tt.body)
			res := New(Config{Endpoint: gen.URL}).ELI5(context.Background(), "some text")
			assert.Equal(t, Result{Text: tt.want, Source: SourceFallback}, res)
			assert.True(t, res.Failed())
		})
	}
}

func TestNetworkErrorYieldsFallback(t *testing.T) {
	gen := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := gen.URL
	gen.Close()

	r := New(Config{Endpoint: url})
	assert.Equal(t, FallbackSimplify, r.Explain(context.Background(), "two words").Text)
	assert.Equal(t, FallbackFollowup, r.Followup(context.Background(), FollowupInput{Question: "why?"}).Text)
}

func TestTimeoutYieldsFallback(t *testing.T) {
	release := make(chan struct{})
	gen := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(gen.Close)
	t.Cleanup(func() { close(release) })

	res := New(Config{Endpoint: gen.URL, Timeout: 20 * time.Millisecond}).ELI5(context.Background(), "slow text")
	assert.Equal(t, FallbackSimplify, res.Text)
}

func TestFollowupReplaysHistoryAndScope(t *testing.T) {
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{"simplified":"Because of the irony."}`)
	history := []conversation.Turn{
		{Role: conversation.RoleAssistant, Content: "It is ironic."},
		{Role: conversation.RoleUser, Content: "Why?"},
	}

	res := New(Config{Endpoint: gen.URL}).Followup(context.Background(), FollowupInput{
		Question:     "Explain more",
		AnchorText:   "It is a truth universally acknowledged",
		History:      history,
		Scope:        conversation.ScopeChapter,
		ScopeContext: "chapter body",
		ChapterTitle: "Chapter 1",
	})

	require.Equal(t, SourceBackend, res.Source)
	assert.Equal(t, ModeFollowup, backend.last.Mode)
	assert.Equal(t, "Explain more", backend.last.Text)
	assert.Equal(t, []HistoryTurn{{Role: "assistant", Content: "It is ironic."}, {Role: "user", Content: "Why?"}}, backend.last.ConversationHistory)
	assert.Equal(t, "chapter", backend.last.Scope)
	assert.Equal(t, "chapter body", backend.last.ScopeContext)
	assert.Equal(t, "Chapter 1", backend.last.ChapterTitle)
	assert.Equal(t, "It is a truth universally acknowledged", backend.last.OriginalText)
}

func TestFollowupMalformedYieldsUnableToRespond(t *testing.T) {
	backend := &backendStub{}
	gen := backend.server(t, http.StatusOK, `{}`)
	res := New(Config{Endpoint: gen.URL}).Followup(context.Background(), FollowupInput{Question: "and?"})
	assert.Equal(t, Result{Text: FallbackFollowup, Source: SourceFallback}, res)
	assert.Equal(t, "highlight", backend.last.Scope)
}

func TestMissingEndpointYieldsFallback(t *testing.T) {
	assert.Equal(t, FallbackSimplify, New(Config{}).ELI5(context.Background(), "text").Text)
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeExplain.Valid())
	assert.True(t, ModeFollowup.Valid())
	assert.False(t, Mode("summarize").Valid())
}
