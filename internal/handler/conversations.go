package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dating-advisor-api/internal/chat"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
)

// ConversationHandler serves the conversation CRUD surface.
type ConversationHandler struct {
	Convs    *repository.ConversationRepo
	Msgs     *repository.MessageRepo
	Sessions *chat.Registry
}

func NewConversationHandler(convs *repository.ConversationRepo, msgs *repository.MessageRepo, sessions *chat.Registry) *ConversationHandler {
	return &ConversationHandler{Convs: convs, Msgs: msgs, Sessions: sessions}
}

// ownershipError maps repository sentinels to HTTP responses.
func ownershipError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
}

// List handles GET /v1/conversations: summaries with preview and
// message count, most recently active first.
func (h *ConversationHandler) List(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Convs.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list conversations failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": items})
}

// Create handles POST /v1/conversations: an explicitly created empty
// conversation with the default title. Most conversations are created
// lazily by the chat endpoint instead.
func (h *ConversationHandler) Create(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	conv := model.Conversation{
		ID:     uuid.NewString(),
		UserID: uid,
		Title:  model.DefaultConversationTitle,
	}
	if err := h.Convs.Create(ctx, &conv); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create conversation failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"conversation": conv})
}

// Messages handles GET /v1/conversations/:id/messages, oldest first.
func (h *ConversationHandler) Messages(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Convs.GetForUser(ctx, id, uid); err != nil {
		return ownershipError(c, err)
	}
	msgs, err := h.Msgs.ListByConversation(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list messages failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// Delete handles DELETE /v1/conversations/:id: removes the
// conversation with its messages and evicts any live session.
func (h *ConversationHandler) Delete(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Convs.GetForUser(ctx, id, uid); err != nil {
		return ownershipError(c, err)
	}
	if err := h.Convs.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete conversation failed"})
	}
	if h.Sessions != nil {
		h.Sessions.Evict(id)
	}
	return c.NoContent(http.StatusNoContent)
}
