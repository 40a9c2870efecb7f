// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names used by the publisher and the consumers.
const (
	MessageCreatedQueue = "chat.message.created"
	TokensUpdatedQueue  = "tokens.updated"
)

// MessageCreatedEvent is published after a chat message row is stored.
// Live sessions consume it to reconcile their local transcript; delivery
// is at-least-once, so consumers deduplicate by message id.
type MessageCreatedEvent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

// TokensUpdatedEvent is published after a ledger mutation. It carries the
// resulting counters so downstream consumers can audit or refresh displays
// without querying the primary database.
type TokensUpdatedEvent struct {
	UserID          uint64 `json:"user_id"`
	Amount          int64  `json:"amount"`
	Type            string `json:"type"`
	Balance         int64  `json:"balance"`
	FreePromptsUsed int    `json:"free_prompts_used"`
	OccurredAt      string `json:"occurred_at"`
}
