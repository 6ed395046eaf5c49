package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/llm"
	"github.com/csheth/lumen/internal/server"
)

var (
	serveAddr   string
	llmModel    string
	llmEndpoint string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simplification endpoint backed by OpenAI or Ollama",
	Long: `serve exposes POST /api/simplify for the reader. It uses an OpenAI-compatible
API when OPENAI_API_KEY is set and a local Ollama otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&llmModel, "llm-model", "", "override the model name")
	serveCmd.Flags().StringVar(&llmEndpoint, "llm-endpoint", "", "custom Ollama host (eg. http://localhost:11434)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	model := cfg.Server.Model
	if llmModel != "" {
		model = llmModel
	}
	host := cfg.Server.LLMEndpoint
	if llmEndpoint != "" {
		host = llmEndpoint
	}

	client, err := llm.NewFromEnv(llm.Config{Model: model, Endpoint: host})
	if err != nil {
		return err
	}
	logger.Info("serving", zap.String("addr", addr), zap.String("llm", client.Name()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := server.New(server.Config{Addr: addr, Rate: cfg.Server.Rate, Burst: cfg.Server.Burst}, client, logger)
	return srv.Run(ctx)
}
