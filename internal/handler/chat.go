package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dating-advisor-api/internal/chat"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
)

// ChatHandler serves the advisor chat endpoint on top of the live
// session registry.
type ChatHandler struct {
	Sessions *chat.Registry
}

func NewChatHandler(sessions *chat.Registry) *ChatHandler {
	return &ChatHandler{Sessions: sessions}
}

type chatReq struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type tokenData struct {
	FreePrompt    bool  `json:"freePrompt"`
	RemainingFree int   `json:"remainingFree"`
	Balance       int64 `json:"tokenBalance"`
}

type chatResp struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversationId"`
	TokenData      tokenData `json:"tokenData"`
}

// Send handles POST /api/chat: gate on the ledger, persist the user
// message, obtain the assistant reply and return it with the updated
// token counters. An empty conversationId starts a new conversation;
// its id comes back in the response.
func (h *ChatHandler) Send(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req chatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Message is required"})
	}

	ctx := c.Request().Context()

	sess, err := h.Sessions.Session(ctx, uid, req.ConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load conversation failed"})
	}

	res, err := sess.Send(ctx, req.Message)
	if err != nil {
		var ae *chat.AssistantError
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Message is required"})
		case errors.Is(err, chat.ErrInsufficientTokens):
			return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "Insufficient tokens"})
		case errors.As(err, &ae):
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "OpenAI error: " + ae.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "chat failed"})
		}
	}

	return c.JSON(http.StatusOK, chatResp{
		Response:       res.Reply.Content,
		ConversationID: sess.ConversationID(),
		TokenData: tokenData{
			FreePrompt:    res.Debit.FreePrompt,
			RemainingFree: res.Debit.RemainingFree,
			Balance:       res.Debit.Balance,
		},
	})
}
