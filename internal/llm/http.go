package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes bounds how much of a provider reply is read.
const maxResponseBytes = 4 << 20

var (
	// ErrNoMessages is returned when Complete is called with an empty transcript.
	ErrNoMessages = errors.New("llm: no messages to complete")
	// ErrEmptyReply is returned when the provider answers with no text.
	ErrEmptyReply = errors.New("llm: model returned an empty reply")
)

// withSystem prepends the system prompt to the conversation.
func withSystem(system string, messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	out := make([]Message, 0, len(messages)+1)
	if system != "" {
		out = append(out, Message{Role: "system", Content: system})
	}
	return append(out, messages...), nil
}

// postJSON sends payload and decodes a 2xx reply into out. Error replies keep
// a short excerpt of the body so provider messages reach the log.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s read reply: %w", provider, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s API error: %s (%s)", provider, resp.Status, excerpt(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode reply: %w", provider, err)
	}
	return nil
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
