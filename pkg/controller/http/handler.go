package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Context   string `json:"context"`
}

type createSessionRequest struct {
	InitialQuery string `json:"initial_query"`
	UserID       string `json:"user_id"`
}

type voiceCommandRequest struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	VoiceInput string `json:"voice_input"`
	Context    string `json:"context"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type searchResponse struct {
	Query   string                   `json:"query"`
	Results []*model.RetrievalResult `json:"results"`
}

// bindJSON decodes the body into v. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return goerr.Wrap(model.ErrValidation, "malformed request body", goerr.V("cause", err.Error()))
	}
	return nil
}

// queryLimit parses the optional limit query parameter
func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, goerr.Wrap(model.ErrValidation, "limit must be a non-negative integer", goerr.V("limit", raw))
	}
	return n, nil
}

// respondError maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, model.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrSessionClosed):
		c.JSON(http.StatusConflict, errorResponse{Error: "session is closed"})
	default:
		logging.From(c.Request.Context()).Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) postChat(c *gin.Context) {
	var req chatRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	resp, err := s.chat.Chat(c.Request.Context(), chat.ChatInput{
		SessionID: model.SessionID(req.SessionID),
		UserID:    model.UserID(req.UserID),
		Message:   req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	session, err := s.chat.CreateSession(c.Request.Context(), req.InitialQuery, model.UserID(req.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) getSession(c *gin.Context) {
	session, err := s.chat.GetSession(c.Request.Context(), model.SessionID(c.Param("session_id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) listMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := model.SessionID(c.Param("session_id"))

	// an unknown session is 404, not an empty list
	if _, err := s.chat.GetSession(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	msgs, err := s.chat.ListMessages(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.chat.CloseSession(c.Request.Context(), model.SessionID(c.Param("session_id"))); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Session closed successfully"})
}

func (s *Server) voiceCommand(c *gin.Context) {
	var req voiceCommandRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	resp, err := s.chat.VoiceCommand(c.Request.Context(), chat.VoiceInput{
		SessionID: model.SessionID(req.SessionID),
		UserID:    model.UserID(req.UserID),
		Input:     req.VoiceInput,
		Context:   req.Context,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listSessions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, goerr.Wrap(model.ErrValidation, "user_id is required"))
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	sessions, err := s.chat.ListSessions(c.Request.Context(), model.UserID(userID), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondError(c, goerr.Wrap(model.ErrValidation, "q is required"))
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	results, err := s.retriever.Retrieve(c.Request.Context(), query, limit)
	if err != nil {
		if errors.Is(err, model.ErrServiceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "retrieval service unavailable"})
			return
		}
		if errors.Is(err, model.ErrEncodingFailure) {
			respondError(c, goerr.Wrap(model.ErrValidation, "query cannot be encoded"))
			return
		}
		respondError(c, err)
		return
	}
	if results == nil {
		results = []*model.RetrievalResult{}
	}
	c.JSON(http.StatusOK, searchResponse{Query: query, Results: results})
}
