package llm

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultOllamaModel = "llama3.2:latest"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOpenAIBase  = "https://api.openai.com/v1"
)

// Scope context is already capped by the reader; these guards only protect
// the model from oversized direct calls to the server.
const (
	maxContextChars   = 60_000
	maxSelectionChars = 8_000
)

const defaultLLMHTTPTimeout = 2 * time.Minute

// Config describes how to build an LLM client.
type Config struct {
	Model      string
	Endpoint   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client completes a chat transcript.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
	Name() string
}

// NewFromEnv builds an OpenAI-compatible client when an API key is available
// and an Ollama client otherwise.
func NewFromEnv(cfg Config) (Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		model := firstNonEmpty(cfg.Model, os.Getenv("OPENAI_MODEL"), defaultOpenAIModel)
		base := firstNonEmpty(cfg.BaseURL, os.Getenv("OPENAI_BASE_URL"), defaultOpenAIBase)
		return &openAIClient{
			apiKey: apiKey,
			model:  model,
			base:   strings.TrimRight(base, "/"),
			client: pickHTTPClient(cfg.HTTPClient),
		}, nil
	}

	host := cfg.Endpoint
	if host == "" {
		if env := os.Getenv("OLLAMA_HOST"); env != "" {
			host = env
		} else {
			host = "http://localhost:11434"
		}
	}
	model := firstNonEmpty(cfg.Model, os.Getenv("OLLAMA_MODEL"), defaultOllamaModel)
	return &ollamaClient{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: pickHTTPClient(cfg.HTTPClient),
	}, nil
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// Local models can take a while on long scope contexts; callers cancel through ctx.
	return &http.Client{Timeout: defaultLLMHTTPTimeout}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
