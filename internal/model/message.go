package model

import "time"

// Message senders stored in chat_messages.sender.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message represents a row in the `chat_messages` table.  Messages
// are immutable once written and are ordered by Timestamp ascending
// within a conversation.  A synthetic "welcome" message may be shown
// at the start of a fresh session but is never persisted.
//
// Fields:
//  ID             – externally generated unique identifier; also the
//                   de-duplication key for realtime reconciliation.
//  ConversationID – owning conversation.
//  Content        – message text.
//  Sender         – "user" or "ai".
//  Timestamp      – creation time used for ordering.
type Message struct {
	ID             string    `json:"id"`              // chat_messages.id
	ConversationID string    `json:"conversation_id"` // chat_messages.conversation_id
	Content        string    `json:"content"`         // chat_messages.content
	Sender         string    `json:"sender"`          // chat_messages.sender
	Timestamp      time.Time `json:"timestamp"`       // chat_messages.timestamp
}
