package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/dating-advisor-api/internal/model"
)

// MessageRepo owns the `chat_messages` table.  Messages are
// immutable once written; they are only removed when their whole
// conversation is deleted.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo returns a new MessageRepo bound to the given database.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Append inserts a message row.  The id is supplied by the caller
// (a UUID) so that the optimistic local copy and the persisted row
// share the de-duplication key used by realtime reconciliation.
func (r *MessageRepo) Append(ctx context.Context, msg model.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, conversation_id, content, sender, timestamp) VALUES (?,?,?,?,?)",
		msg.ID, msg.ConversationID, msg.Content, msg.Sender, ts)
	return err
}

// ListByConversation returns all messages for a conversation
// ordered by timestamp ascending.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, conversation_id, content, sender, timestamp FROM chat_messages WHERE conversation_id=? ORDER BY timestamp ASC, id ASC",
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.Sender, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
