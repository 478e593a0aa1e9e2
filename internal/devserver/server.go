// Package devserver is a local implementation of the chat service: REST
// endpoints, per-conversation push streams and a background assistant.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/config"
	"github.com/xonecas/parley/internal/constants"
	"github.com/xonecas/parley/internal/provider"
	"github.com/xonecas/parley/internal/store"
)

// DefaultUserEmail owns every conversation of the development server.
const DefaultUserEmail = "local@parley.dev"

// Server wires the store, broker and responder behind a gin router.
type Server struct {
	cfg       config.ServerConfig
	store     *store.Store
	broker    *Broker
	responder *Responder
	metrics   *Metrics
	user      *chat.User
	router    *gin.Engine
	keepAlive time.Duration
}

// New creates a server on st answering with p. Messages left processing by a
// previous run are moved to timeout, since no reply can arrive for them.
func New(cfg config.ServerConfig, st *store.Store, p provider.Provider) (*Server, error) {
	user, err := st.EnsureUser(DefaultUserEmail, chat.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("ensure default user: %w", err)
	}

	expired, err := st.ExpireProcessing(chat.StateTimeout)
	if err != nil {
		return nil, fmt.Errorf("expire processing messages: %w", err)
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Expired messages left processing")
	}

	keepAlive := cfg.KeepAlive.Duration
	if keepAlive <= 0 {
		keepAlive = constants.StreamKeepAliveInterval
	}

	metrics := NewMetrics()
	broker := NewBroker()
	s := &Server{
		cfg:       cfg,
		store:     st,
		broker:    broker,
		responder: NewResponder(st, broker, p, metrics, cfg.ResponseTimeout.Duration, cfg.PlaceholderReply),
		metrics:   metrics,
		user:      user,
		keepAlive: keepAlive,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), s.metrics.middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/api/v1", auth(s.cfg.APIToken))
	v1.POST("/user/verify", s.verifyUser)
	v1.GET("/chat/", s.listConversations)
	v1.POST("/chat/", s.createConversation)
	v1.GET("/message/chat/:id", s.listMessages)
	v1.POST("/message/", s.createMessage)
	v1.GET("/message/sse/:id", s.streamMessages)
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// User returns the account that owns the server's conversations.
func (s *Server) User() *chat.User {
	return s.user
}

// Serve answers requests on l until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", l.Addr().String()).Msg("Serving")
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

// ListenAndServe listens on the configured address and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, l)
}

// Close settles the replies in flight and ends all push streams.
func (s *Server) Close() error {
	s.responder.Stop()
	return s.broker.Close()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	}
}

// auth requires "Authorization: Bearer <token>" when token is set.
func auth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid or missing token"})
			return
		}
		c.Next()
	}
}
