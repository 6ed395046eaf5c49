// Package server exposes the generation endpoint (POST /api/simplify) on top
// of an llm.Client so the reader can run against a self-hosted model.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/csheth/lumen/internal/llm"
	"github.com/csheth/lumen/internal/simplify"
)

const shutdownTimeout = 5 * time.Second

// Config controls the HTTP surface.
type Config struct {
	Addr  string
	Rate  float64
	Burst int
}

// Server answers simplification requests with a rate-limited LLM client.
type Server struct {
	engine  *gin.Engine
	client  llm.Client
	limiter *rate.Limiter
	log     *zap.Logger
	addr    string
}

// New wires the routes. A non-positive rate disables limiting.
func New(cfg Config, client llm.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		engine:  engine,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.Named("server"),
		addr:    cfg.Addr,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.client.Name()})
	})

	api := s.engine.Group("/api")
	api.Use(s.rateLimit)
	api.POST("/simplify", s.handleSimplify)
}

func (s *Server) rateLimit(c *gin.Context) {
	if !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, simplify.Response{Error: "rate limit exceeded"})
		return
	}
	c.Next()
}

func (s *Server) handleSimplify(c *gin.Context) {
	var req simplify.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, simplify.Response{Error: "invalid request", Details: err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, simplify.Response{Error: "text is required"})
		return
	}
	if !req.Mode.Valid() {
		c.JSON(http.StatusBadRequest, simplify.Response{Error: "unsupported mode", Details: string(req.Mode)})
		return
	}

	system, messages, err := llm.BuildMessages(toTask(req))
	if err != nil {
		c.JSON(http.StatusBadRequest, simplify.Response{Error: "invalid request", Details: err.Error()})
		return
	}

	start := time.Now()
	text, err := s.client.Complete(c.Request.Context(), system, messages)
	if err != nil {
		s.log.Warn("completion failed",
			zap.String("mode", string(req.Mode)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, simplify.Response{Error: "generation failed", Details: err.Error()})
		return
	}
	s.log.Info("completion",
		zap.String("mode", string(req.Mode)),
		zap.String("scope", req.Scope),
		zap.Int("history", len(req.ConversationHistory)),
		zap.Duration("elapsed", time.Since(start)))
	c.JSON(http.StatusOK, simplify.Response{Simplified: text})
}

func toTask(req simplify.Request) llm.Task {
	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, turn := range req.ConversationHistory {
		history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return llm.Task{
		Mode:         string(req.Mode),
		Text:         req.Text,
		OriginalText: req.OriginalText,
		History:      history,
		Scope:        req.Scope,
		ScopeContext: req.ScopeContext,
		ChapterTitle: req.ChapterTitle,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("model", s.client.Name()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errChan
		return nil
	}
}
