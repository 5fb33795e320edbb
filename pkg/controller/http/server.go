package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/metrics"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Server exposes the chat API over HTTP
type Server struct {
	chat      *chat.UseCase
	retriever interfaces.Retriever
	metrics   *metrics.Metrics
	engine    *gin.Engine

	shutdownTimeout time.Duration
}

// Option is a functional option for Server
type Option func(*Server)

// WithMetrics records request metrics and serves them at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRetriever enables GET /api/v1/search
func WithRetriever(r interfaces.Retriever) Option {
	return func(s *Server) {
		s.retriever = r
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// New builds the gin engine and registers all routes
func New(uc *chat.UseCase, opts ...Option) *Server {
	s := &Server{
		chat:            uc,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.observe())

	engine.GET("/health", s.health)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := engine.Group("/api/v1")
	{
		chatGroup := v1.Group("/chat")
		chatGroup.POST("/", s.postChat)
		chatGroup.POST("/session", s.createSession)
		chatGroup.GET("/session/:session_id", s.getSession)
		chatGroup.GET("/session/:session_id/messages", s.listMessages)
		chatGroup.POST("/session/:session_id/close", s.closeSession)
		chatGroup.POST("/voice-command", s.voiceCommand)
		chatGroup.GET("/sessions", s.listSessions)

		if s.retriever != nil {
			v1.GET("/search", s.search)
		}
	}

	s.engine = engine
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "http server failed", goerr.V("addr", addr))
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown http server")
	}
	logging.From(ctx).Info("http server stopped")
	return <-errCh
}
