// Package chat holds the per-conversation session controller: it
// coordinates eligibility checks, optimistic local state, message
// persistence, the assistant call and reconciliation of realtime
// insert notifications.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dating-advisor-api/internal/assistant"
	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
	"github.com/iliyamo/dating-advisor-api/internal/utils"
)

// WelcomeMessage opens every fresh session.  It is synthesized
// locally and never written to storage.
const WelcomeMessage = "Hey hey! Robbie Brito here. How can I help you with your relationship journey today?"

// welcomeID marks the synthetic opening message.
const welcomeID = "welcome"

// Sentinel errors surfaced to the transport layer.
var (
	ErrEmptyMessage       = errors.New("message is required")
	ErrInsufficientTokens = errors.New("insufficient tokens")
)

// AssistantError wraps a vendor-side failure so callers can map it
// to an upstream error status while the session has already staged
// the inline fallback message.
type AssistantError struct{ Err error }

func (e *AssistantError) Error() string { return e.Err.Error() }
func (e *AssistantError) Unwrap() error { return e.Err }

// Ledger is the slice of the token ledger the session needs.
type Ledger interface {
	CanSend(ctx context.Context, userID uint64) (ledger.Eligibility, error)
	DebitForMessage(ctx context.Context, userID uint64) (ledger.DebitResult, error)
}

// ConversationStore persists conversation rows.
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, id string) (model.Conversation, error)
	Touch(ctx context.Context, id string) error
	SetTitleFromFirstMessage(ctx context.Context, id, content string) error
}

// MessageStore persists message rows.
type MessageStore interface {
	Append(ctx context.Context, msg model.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Replier produces assistant text for a user message plus history.
type Replier interface {
	GenerateReply(ctx context.Context, userMessage string, history []assistant.Turn) (string, error)
}

// Publisher pushes change notifications for persisted messages.  A
// nil Publisher disables notifications.
type Publisher interface {
	PublishMessageCreated(ctx context.Context, msg model.Message) error
}

// Session is the stateful controller for one open conversation.  A
// send is a multi-step flow (optimistic append, persistence, debit,
// assistant call, reply persistence); the session serializes those
// steps under one lock and reconciles duplicate deliveries from the
// notification channel by message id.
type Session struct {
	ledger Ledger
	convs  ConversationStore
	msgs   MessageStore
	ai     Replier
	pub    Publisher

	mu             sync.Mutex
	userID         uint64
	conversationID string
	title          string
	persisted      bool
	blocked        bool
	freeRemaining  int
	balance        int64
	messages       []model.Message
	lastActive     time.Time
}

// NewSession builds an unloaded session for a user.
func NewSession(l Ledger, convs ConversationStore, msgs MessageStore, ai Replier, pub Publisher, userID uint64) *Session {
	return &Session{ledger: l, convs: convs, msgs: msgs, ai: ai, pub: pub, userID: userID}
}

// Load resolves the session's conversation.  An empty id synthesizes
// a new conversation staged locally only; nothing is written until
// the first user message.  A known id loads the stored messages; an
// unknown id is treated as a staged new conversation so a client can
// hand out ids before persistence.
func (s *Session) Load(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	s.conversationID = conversationID
	s.title = model.DefaultConversationTitle
	s.persisted = false
	s.messages = nil

	conv, err := s.convs.Get(ctx, conversationID)
	switch {
	case err == nil:
		if conv.UserID != s.userID {
			return repository.ErrForbidden
		}
		s.title = conv.Title
		s.persisted = true
		stored, err := s.msgs.ListByConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		s.messages = stored
	case errors.Is(err, repository.ErrNotFound):
		// Not persisted yet; keep the staged state.
	default:
		return err
	}

	if len(s.messages) == 0 {
		s.messages = []model.Message{{
			ID:             welcomeID,
			ConversationID: conversationID,
			Content:        WelcomeMessage,
			Sender:         model.SenderAI,
			Timestamp:      time.Now().UTC(),
		}}
	}

	elig, err := s.ledger.CanSend(ctx, s.userID)
	if err != nil {
		return err
	}
	s.blocked = !elig.Allowed
	s.freeRemaining = elig.RemainingFree
	s.balance = elig.Balance
	return nil
}

// SendResult reports the outcome of a completed send.
type SendResult struct {
	Reply model.Message
	Debit ledger.DebitResult
}

// Send runs the full message flow: eligibility gate, optimistic
// local append with a decremented displayed counter, lazy
// conversation creation, user-message persistence, ledger debit,
// assistant call and reply persistence.  Failures after the
// optimistic step restore the displayed counter and stage an inline
// assistant-authored error message instead of leaving the session
// wedged; funds exhaustion flips the session into the blocked state.
//
// The vendor call runs between two locked phases so realtime inserts
// and loads are not stalled behind a poll that can take tens of
// seconds. Each phase releases the lock by defer, so a panicking
// Replier cannot leave it held or unbalanced.
func (s *Session) Send(ctx context.Context, text string) (SendResult, error) {
	text, conversationID, history, debit, err := s.prepare(ctx, text)
	if err != nil {
		return SendResult{Debit: debit}, err
	}

	replyText, aiErr := s.ai.GenerateReply(ctx, text, history)

	return s.resolve(ctx, conversationID, replyText, debit, aiErr)
}

// prepare is the locked front half of a send: the eligibility gate,
// optimistic append, lazy conversation creation, user-message
// persistence and the ledger debit.
func (s *Session) prepare(ctx context.Context, text string) (string, string, []assistant.Turn, ledger.DebitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	var none ledger.DebitResult

	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", nil, none, ErrEmptyMessage
	}

	elig, err := s.ledger.CanSend(ctx, s.userID)
	if err != nil {
		return "", "", nil, none, err
	}
	if !elig.Allowed {
		s.blocked = true
		return "", "", nil, none, ErrInsufficientTokens
	}

	conversationID := s.conversationID
	history := s.historyLocked()
	firstUserMessage := !s.hasUserMessageLocked()

	userMsg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        text,
		Sender:         model.SenderUser,
		Timestamp:      time.Now().UTC(),
	}
	s.appendLocked(userMsg)

	// Show one less credit immediately; restored on failure.
	decremented := false
	if s.freeRemaining > 0 {
		s.freeRemaining--
		decremented = true
	}

	restore := func() {
		if decremented {
			s.freeRemaining++
		}
	}

	if !s.persisted {
		conv := model.Conversation{ID: conversationID, UserID: s.userID, Title: model.DefaultConversationTitle}
		if err := s.convs.Create(ctx, &conv); err != nil {
			restore()
			s.stageErrorLocked(conversationID)
			return "", "", nil, none, fmt.Errorf("create conversation: %w", err)
		}
		s.persisted = true
	}

	if err := s.msgs.Append(ctx, userMsg); err != nil {
		restore()
		s.stageErrorLocked(conversationID)
		return "", "", nil, none, fmt.Errorf("persist message: %w", err)
	}
	s.publish(ctx, userMsg)

	if firstUserMessage {
		if err := s.convs.SetTitleFromFirstMessage(ctx, conversationID, text); err != nil {
			// Title loss is cosmetic; the send continues.
		} else {
			s.title = utils.TruncateEllipsis(text, 30)
		}
	}
	if err := s.convs.Touch(ctx, conversationID); err != nil {
		restore()
		s.stageErrorLocked(conversationID)
		return "", "", nil, none, fmt.Errorf("touch conversation: %w", err)
	}

	debit, err := s.ledger.DebitForMessage(ctx, s.userID)
	if err != nil {
		restore()
		s.stageErrorLocked(conversationID)
		return "", "", nil, none, fmt.Errorf("debit ledger: %w", err)
	}
	if !debit.Allowed {
		restore()
		s.blocked = true
		return "", "", nil, debit, ErrInsufficientTokens
	}
	s.freeRemaining = debit.RemainingFree
	s.balance = debit.Balance

	return text, conversationID, history, debit, nil
}

// resolve is the locked back half of a send: stale-reply detection,
// error staging and reply persistence.
func (s *Session) resolve(ctx context.Context, conversationID, replyText string, debit ledger.DebitResult, aiErr error) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	if aiErr != nil {
		// The user message stays persisted; only the reply is lost.
		if s.conversationID == conversationID {
			s.stageErrorLocked(conversationID)
		}
		return SendResult{Debit: debit}, &AssistantError{Err: aiErr}
	}

	if s.conversationID != conversationID {
		// The session moved to another conversation while the vendor
		// call was in flight; drop the late reply instead of leaking
		// it across conversations.
		return SendResult{Debit: debit}, nil
	}

	reply := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        replyText,
		Sender:         model.SenderAI,
		Timestamp:      time.Now().UTC(),
	}
	s.appendLocked(reply)
	if err := s.msgs.Append(ctx, reply); err != nil {
		return SendResult{Reply: reply, Debit: debit}, fmt.Errorf("persist reply: %w", err)
	}
	s.publish(ctx, reply)
	_ = s.convs.Touch(ctx, conversationID)

	return SendResult{Reply: reply, Debit: debit}, nil
}

// ApplyInsert reconciles a realtime insert notification.  Delivery
// is at-least-once and the same row also arrives via the direct
// persistence path, so the append is keyed by message id and
// silently drops duplicates and rows for other conversations.
func (s *Session) ApplyInsert(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	if msg.ConversationID != s.conversationID {
		return
	}
	s.appendLocked(msg)
}

// Unblock clears the blocked state after a purchase restored the
// balance.
func (s *Session) Unblock(elig ledger.Eligibility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = !elig.Allowed
	s.freeRemaining = elig.RemainingFree
	s.balance = elig.Balance
}

// ConversationID returns the active conversation id.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Title returns the current conversation title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Blocked reports whether sends are currently rejected for lack of
// funds.
func (s *Session) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// FreeRemaining returns the displayed free-prompt counter.
func (s *Session) FreeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeRemaining
}

// Messages returns a copy of the local message list.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UserID returns the owning user id.
func (s *Session) UserID() uint64 { return s.userID }

// LastActive reports when the session last handled a load, send or
// realtime insert.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// appendLocked adds a message unless its id is already present.
func (s *Session) appendLocked(msg model.Message) {
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return
		}
	}
	s.messages = append(s.messages, msg)
}

// stageErrorLocked places the fallback sentence into the local
// transcript as an assistant message.  It is never persisted.
func (s *Session) stageErrorLocked(conversationID string) {
	s.appendLocked(model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        assistant.FallbackReply,
		Sender:         model.SenderAI,
		Timestamp:      time.Now().UTC(),
	})
}

// historyLocked converts the non-welcome local messages to turns for
// the assistant.
func (s *Session) historyLocked() []assistant.Turn {
	out := make([]assistant.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ID == welcomeID {
			continue
		}
		role := "assistant"
		if m.Sender == model.SenderUser {
			role = "user"
		}
		out = append(out, assistant.Turn{Role: role, Content: m.Content})
	}
	return out
}

// hasUserMessageLocked reports whether any user-authored message is
// present locally.
func (s *Session) hasUserMessageLocked() bool {
	for _, m := range s.messages {
		if m.Sender == model.SenderUser {
			return true
		}
	}
	return false
}

// publish emits a change notification; failures are non-fatal
// because the direct persistence path already carried the row.
func (s *Session) publish(ctx context.Context, msg model.Message) {
	if s.pub == nil {
		return
	}
	_ = s.pub.PublishMessageCreated(ctx, msg)
}
