package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type ollamaClient struct {
	host   string
	model  string
	client *http.Client
}

func (c *ollamaClient) Name() string {
	return fmt.Sprintf("Ollama (%s)", c.model)
}

// Complete calls /api/chat without streaming; Ollama then answers with a
// single object holding the whole message.
func (c *ollamaClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	transcript, err := withSystem(system, messages)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"model":    c.model,
		"messages": transcript,
		"stream":   false,
	}
	var parsed struct {
		Message Message `json:"message"`
		Done    bool    `json:"done"`
	}
	if err := postJSON(ctx, c.client, "ollama", c.host+"/api/chat", nil, payload, &parsed); err != nil {
		return "", err
	}
	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama: %w", ErrEmptyReply)
	}
	return content, nil
}
