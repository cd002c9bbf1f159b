package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/charla-ai/charla/pkg/model"
)

// The read API is a thin projection over the store; none of it touches the
// chat core.

type personaResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Biography  string   `json:"biography"`
	KeyTraits  []string `json:"key_traits"`
	SpeechTics []string `json:"speech_tics"`
}

type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationResponse struct {
	ID        string            `json:"id"`
	PersonaID string            `json:"persona_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []messageResponse `json:"messages,omitempty"`
}

type createConversationRequest struct {
	ID        string `json:"id"`
	PersonaID string `json:"persona_id"`
}

func (s *Server) registerReadAPI() {
	g := s.echo.Group("/api")
	g.GET("/personas", s.listPersonas)
	g.GET("/conversations", s.listConversations)
	g.POST("/conversations", s.createConversation)
	g.GET("/conversations/:id", s.getConversation)
	g.GET("/conversations/:id/messages", s.listMessages)
	g.DELETE("/conversations/:id", s.deleteConversation)
}

func (s *Server) listPersonas(c *echo.Context) error {
	personas, err := s.store.ListPersonas(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]personaResponse, 0, len(personas))
	for _, p := range personas {
		resp = append(resp, toPersonaResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listConversations(c *echo.Context) error {
	convs, err := s.store.ListConversations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, conversationResponse{
			ID:        conv.ID,
			PersonaID: conv.PersonaID,
			CreatedAt: conv.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) createConversation(c *echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		req = createConversationRequest{}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, err := uuid.Parse(req.ID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a UUID")
	}
	conv, err := s.store.GetOrCreateConversation(c.Request().Context(), req.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, conversationResponse{
		ID:        conv.ID,
		PersonaID: conv.PersonaID,
		CreatedAt: conv.CreatedAt,
	})
}

func (s *Server) getConversation(c *echo.Context) error {
	id := c.Param("id")
	conv, err := s.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	msgs, err := s.store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := conversationResponse{
		ID:        conv.ID,
		PersonaID: conv.PersonaID,
		CreatedAt: conv.CreatedAt,
		Messages:  toMessageResponses(msgs),
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listMessages(c *echo.Context) error {
	id := c.Param("id")
	conv, err := s.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	msgs, err := s.store.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toMessageResponses(msgs))
}

func (s *Server) deleteConversation(c *echo.Context) error {
	id := c.Param("id")
	conv, err := s.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err := s.store.DeleteConversation(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func toPersonaResponse(p model.Persona) personaResponse {
	return personaResponse{
		ID:         p.ID,
		Name:       p.Name,
		Role:       p.Role,
		Biography:  p.Biography,
		KeyTraits:  p.KeyTraits,
		SpeechTics: p.SpeechTics,
	}
}

func toMessageResponses(msgs []model.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return out
}
