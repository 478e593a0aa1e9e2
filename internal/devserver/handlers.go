package devserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/store"
)

const detailChatNotFound = "Chat not found"

func (s *Server) verifyUser(c *gin.Context) {
	c.JSON(http.StatusOK, s.user)
}

func (s *Server) listConversations(c *gin.Context) {
	convs, err := s.store.ListConversations(s.user.ID)
	if err != nil {
		s.internalError(c, "list conversations", err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) createConversation(c *gin.Context) {
	var req chat.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	conv, err := s.store.CreateConversation(s.user.ID, req.Name)
	if err != nil {
		s.internalError(c, "create conversation", err)
		return
	}
	log.Info().Str("conversation_id", conv.ID.String()).Str("name", conv.Name).Msg("Conversation created")
	c.JSON(http.StatusCreated, conv)
}

// conversation resolves the :id parameter, answering 404 when it does not exist.
func (s *Server) conversation(c *gin.Context, id chat.ID) (*chat.Conversation, bool) {
	conv, err := s.store.GetConversation(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": detailChatNotFound})
		return nil, false
	}
	if err != nil {
		s.internalError(c, "get conversation", err)
		return nil, false
	}
	return conv, true
}

func (s *Server) listMessages(c *gin.Context) {
	conv, ok := s.conversation(c, chat.ID(c.Param("id")))
	if !ok {
		return
	}
	msgs, err := s.store.ListMessages(conv.ID)
	if err != nil {
		s.internalError(c, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) createMessage(c *gin.Context) {
	var req chat.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Message content is empty"})
		return
	}
	conv, ok := s.conversation(c, req.ConversationID)
	if !ok {
		return
	}

	accepted, err := s.responder.Submit(conv.ID, content)
	if errors.Is(err, ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Server is shutting down"})
		return
	}
	if err != nil {
		s.internalError(c, "create message", err)
		return
	}

	c.JSON(http.StatusCreated, accepted.Records)
	c.Writer.Flush()
	s.responder.Start(accepted)
}

// streamMessages pushes every update of a conversation as a "data:" frame and
// writes a comment line when the stream has been idle for the keep-alive interval.
func (s *Server) streamMessages(c *gin.Context) {
	conv, ok := s.conversation(c, chat.ID(c.Param("id")))
	if !ok {
		return
	}

	ctx := c.Request.Context()
	updates, err := s.broker.Subscribe(ctx, conv.ID)
	if err != nil {
		s.internalError(c, "subscribe", err)
		return
	}

	s.metrics.streams.Inc()
	defer s.metrics.streams.Dec()
	logger := log.With().Str("conversation_id", conv.ID.String()).Logger()
	logger.Debug().Msg("Push stream opened")
	defer logger.Debug().Msg("Push stream closed")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-updates:
			if !ok {
				return false
			}
			msg.Ack()
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg.Payload); err != nil {
				return false
			}
			ticker.Reset(s.keepAlive)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	log.Error().Err(err).Str("op", op).Str("path", c.Request.URL.Path).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}
