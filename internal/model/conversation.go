package model

import "time"

// DefaultConversationTitle is the sentinel title given to a
// conversation before its first user message arrives.  The title is
// replaced exactly once, by the truncated content of that first
// message; later messages never change it.
const DefaultConversationTitle = "New Conversation"

// Conversation represents a row in the `chat_conversations` table.
// Ids are externally generated (UUID strings) so clients can stage a
// conversation locally before anything is persisted.
//
// Fields:
//  ID        – externally generated unique identifier.
//  UserID    – owning user.
//  Title     – display title; starts as DefaultConversationTitle.
//  CreatedAt – creation timestamp.
//  UpdatedAt – refreshed on every new message.
type Conversation struct {
	ID        string    `json:"id"`         // chat_conversations.id
	UserID    uint64    `json:"user_id"`    // chat_conversations.user_id
	Title     string    `json:"title"`      // chat_conversations.title
	CreatedAt time.Time `json:"created_at"` // chat_conversations.created_at
	UpdatedAt time.Time `json:"updated_at"` // chat_conversations.updated_at
}

// ConversationSummary is the listing view of a conversation returned
// by GET /v1/conversations.  Preview is derived from the most recent
// user-authored message (truncated to 60 characters) and
// MessageCount is the true number of stored messages.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
