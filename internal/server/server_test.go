package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/lumen/internal/llm"
	"github.com/csheth/lumen/internal/simplify"
)

type fakeClient struct {
	reply    string
	err      error
	system   string
	messages []llm.Message
}

func (f *fakeClient) Complete(_ context.Context, system string, messages []llm.Message) (string, error) {
	f.system = system
	f.messages = messages
	return f.reply, f.err
}

func (f *fakeClient) Name() string { return "fake" }

func post(t *testing.T, h http.Handler, body any) (*httptest.ResponseRecorder, simplify.Response) {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/simplify", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp simplify.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestSimplifyReturnsCompletion(t *testing.T) {
	client := &fakeClient{reply: "Having keen insight."}
	srv := New(Config{}, client, nil)

	rec, resp := post(t, srv.Handler(), simplify.Request{Text: "perspicacious", Mode: simplify.ModeExplain})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Having keen insight.", resp.Simplified)
	assert.Empty(t, resp.Error)
	require.Len(t, client.messages, 1)
	assert.Contains(t, client.messages[0].Content, "perspicacious")
}

func TestSimplifyFollowupReplaysHistory(t *testing.T) {
	client := &fakeClient{reply: "ok"}
	srv := New(Config{}, client, nil)

	_, resp := post(t, srv.Handler(), simplify.Request{
		Text:         "What does it mean?",
		Mode:         simplify.ModeFollowup,
		OriginalText: "anchor passage",
		ConversationHistory: []simplify.HistoryTurn{
			{Role: "assistant", Content: "first answer"},
		},
		Scope:        "book",
		ScopeContext: "whole book",
	})

	assert.Equal(t, "ok", resp.Simplified)
	assert.Contains(t, client.system, "anchor passage")
	assert.Contains(t, client.system, "whole book")
	require.Len(t, client.messages, 2)
	assert.Equal(t, "assistant", client.messages[0].Role)
}

func TestSimplifyRejectsBadRequests(t *testing.T) {
	srv := New(Config{}, &fakeClient{reply: "x"}, nil)
	tests := []struct {
		name string
		body any
	}{
		{name: "empty text", body: simplify.Request{Text: " ", Mode: simplify.ModeELI5}},
		{name: "unknown mode", body: simplify.Request{Text: "hi", Mode: "summarize"}},
		{name: "wrong shape", body: map[string]any{"text": 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := post(t, srv.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, resp.Simplified)
		})
	}
}

func TestSimplifyReportsBackendFailure(t *testing.T) {
	srv := New(Config{}, &fakeClient{err: errors.New("model offline")}, nil)
	rec, resp := post(t, srv.Handler(), simplify.Request{Text: "hi there", Mode: simplify.ModeELI5})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "generation failed", resp.Error)
	assert.Equal(t, "model offline", resp.Details)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	srv := New(Config{Rate: 0.001, Burst: 1}, &fakeClient{reply: "ok"}, nil)
	body := simplify.Request{Text: "hi there", Mode: simplify.ModeELI5}

	rec, _ := post(t, srv.Handler(), body)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, resp := post(t, srv.Handler(), body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", resp.Error)
}

func TestRequesterAgainstServer(t *testing.T) {
	srv := New(Config{}, &fakeClient{reply: "Plain words."}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	r := simplify.New(simplify.Config{Endpoint: ts.URL + "/api/simplify", Timeout: time.Second})
	res := r.ELI5(context.Background(), "Thermodynamics is hard.")
	assert.Equal(t, simplify.Result{Text: "Plain words.", Source: simplify.SourceBackend}, res)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0"}, &fakeClient{reply: "ok"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
