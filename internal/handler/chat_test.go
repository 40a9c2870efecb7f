package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dating-advisor-api/internal/assistant"
	"github.com/iliyamo/dating-advisor-api/internal/chat"
	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
)

// ----- in-memory stores backing the ledger and the chat session -----

type memLedgerStore struct {
	balance model.TokenBalance
}

func (m *memLedgerStore) GetOrCreate(context.Context, uint64) (model.TokenBalance, error) {
	return m.balance, nil
}

func (m *memLedgerStore) UseFreePrompt(_ context.Context, _ uint64, limit int) (int, bool, error) {
	if m.balance.FreePromptsUsed >= limit {
		return m.balance.FreePromptsUsed, false, nil
	}
	m.balance.FreePromptsUsed++
	return m.balance.FreePromptsUsed, true, nil
}

func (m *memLedgerStore) DebitTokens(_ context.Context, _ uint64, cost int64) (int64, bool, error) {
	if m.balance.Balance < cost {
		return m.balance.Balance, false, nil
	}
	m.balance.Balance -= cost
	m.balance.TotalUsed += cost
	return m.balance.Balance, true, nil
}

func (m *memLedgerStore) CreditTokens(_ context.Context, _ uint64, amount int64) (int64, error) {
	m.balance.Balance += amount
	m.balance.TotalPurchased += amount
	return m.balance.Balance, nil
}

type nopTxLog struct{}

func (nopTxLog) Record(context.Context, model.TokenTransaction) error { return nil }

type memConvStore struct {
	convs map[string]model.Conversation
}

func (m *memConvStore) Create(_ context.Context, conv *model.Conversation) error {
	m.convs[conv.ID] = *conv
	return nil
}

func (m *memConvStore) Get(_ context.Context, id string) (model.Conversation, error) {
	conv, ok := m.convs[id]
	if !ok {
		return model.Conversation{}, repository.ErrNotFound
	}
	return conv, nil
}

func (m *memConvStore) Touch(context.Context, string) error                        { return nil }
func (m *memConvStore) SetTitleFromFirstMessage(context.Context, string, string) error { return nil }

type memMsgStore struct {
	stored []model.Message
}

func (m *memMsgStore) Append(_ context.Context, msg model.Message) error {
	m.stored = append(m.stored, msg)
	return nil
}

func (m *memMsgStore) ListByConversation(_ context.Context, id string) ([]model.Message, error) {
	var out []model.Message
	for _, msg := range m.stored {
		if msg.ConversationID == id {
			out = append(out, msg)
		}
	}
	return out, nil
}

type stubReplier struct {
	reply string
	err   error
}

func (s *stubReplier) GenerateReply(context.Context, string, []assistant.Turn) (string, error) {
	return s.reply, s.err
}

func newChatHandler(store *memLedgerStore, replier chat.Replier) (*ChatHandler, *memMsgStore) {
	svc := ledger.New(store, nopTxLog{})
	msgs := &memMsgStore{}
	registry := chat.NewRegistry(svc, &memConvStore{convs: map[string]model.Conversation{}}, msgs, replier, nil)
	return NewChatHandler(registry), msgs
}

func doChat(h *ChatHandler, body string, authed bool) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if authed {
		c.Set("user_id", float64(42)) // as the JWT middleware stores it
	}
	return rec, h.Send(c)
}

func TestChatSendHappyPath(t *testing.T) {
	h, msgs := newChatHandler(&memLedgerStore{}, &stubReplier{reply: "Be yourself."})

	rec, err := doChat(h, `{"message":"any advice?"}`, true)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversationId"`
		TokenData      struct {
			FreePrompt    bool `json:"freePrompt"`
			RemainingFree int  `json:"remainingFree"`
		} `json:"tokenData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Be yourself.", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)
	assert.True(t, resp.TokenData.FreePrompt)
	assert.Equal(t, ledger.FreePromptLimit-1, resp.TokenData.RemainingFree)

	require.Len(t, msgs.stored, 2)
	assert.Equal(t, model.SenderUser, msgs.stored[0].Sender)
	assert.Equal(t, model.SenderAI, msgs.stored[1].Sender)

	// The second message continues the same conversation.
	rec, err = doChat(h, `{"message":"more?","conversationId":"`+resp.ConversationID+`"}`, true)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, msgs.stored, 4)
	for _, m := range msgs.stored {
		assert.Equal(t, resp.ConversationID, m.ConversationID)
	}
}

func TestChatSendRequiresMessage(t *testing.T) {
	h, _ := newChatHandler(&memLedgerStore{}, &stubReplier{reply: "x"})

	rec, err := doChat(h, `{"message":""}`, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Message is required")
}

func TestChatSendRequiresAuth(t *testing.T) {
	h, _ := newChatHandler(&memLedgerStore{}, &stubReplier{reply: "x"})

	rec, err := doChat(h, `{"message":"hi"}`, false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatSendInsufficientTokens(t *testing.T) {
	store := &memLedgerStore{}
	store.balance.FreePromptsUsed = ledger.FreePromptLimit
	h, msgs := newChatHandler(store, &stubReplier{reply: "x"})

	rec, err := doChat(h, `{"message":"hi"}`, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Insufficient tokens")
	assert.Empty(t, msgs.stored)
}

func TestChatSendVendorFailure(t *testing.T) {
	h, msgs := newChatHandler(&memLedgerStore{}, &stubReplier{err: errors.New("assistant response timed out")})

	rec, err := doChat(h, `{"message":"hi"}`, true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "OpenAI error")

	// The user message survived even though the reply never came.
	require.Len(t, msgs.stored, 1)
	assert.Equal(t, model.SenderUser, msgs.stored[0].Sender)
	assert.WithinDuration(t, time.Now().UTC(), msgs.stored[0].Timestamp, 5*time.Second)
}
