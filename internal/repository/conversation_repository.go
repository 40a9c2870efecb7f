package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/utils"
)

// ConversationRepo provides CRUD operations for chat conversations
// and their messages.  Conversation ids are UUID strings supplied by
// the caller so a client can stage a conversation locally before the
// first write happens.  All timestamp fields are stored in UTC.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo returns a new ConversationRepo bound to the given database.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

// titleMax is the rune budget for a title derived from the first
// user message; longer content is cut and suffixed with "...".
const titleMax = 30

// previewMax bounds the preview text shown in conversation listings.
const previewMax = 60

// Create inserts a conversation row with the sentinel title and
// populates the generated timestamps on the provided record.
func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.Title == "" {
		conv.Title = model.DefaultConversationTitle
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_conversations (id, user_id, title) VALUES (?,?,?)",
		conv.ID, conv.UserID, conv.Title)
	if err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM chat_conversations WHERE id=?",
		conv.ID).Scan(&conv.CreatedAt, &conv.UpdatedAt)
}

// Get returns a conversation by id.  ErrNotFound is returned when no
// row exists.
func (r *ConversationRepo) Get(ctx context.Context, id string) (model.Conversation, error) {
	var c model.Conversation
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM chat_conversations WHERE id=? LIMIT 1",
		id).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Conversation{}, ErrNotFound
	}
	return c, err
}

// GetForUser returns a conversation by id after checking ownership.
// ErrForbidden is returned when the row belongs to another user.
func (r *ConversationRepo) GetForUser(ctx context.Context, id string, userID uint64) (model.Conversation, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if c.UserID != userID {
		return model.Conversation{}, ErrForbidden
	}
	return c, nil
}

// Touch refreshes a conversation's updated_at; called on every new
// message so listings sort by recency.
func (r *ConversationRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE chat_conversations SET updated_at=NOW() WHERE id=?", id)
	return err
}

// SetTitleFromFirstMessage replaces the sentinel title with the
// truncated content of the first user message.  The WHERE clause
// keeps this a one-shot update: once the title has been replaced,
// later messages never change it.
func (r *ConversationRepo) SetTitleFromFirstMessage(ctx context.Context, id, content string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE chat_conversations SET title=?, updated_at=NOW() WHERE id=? AND title=?",
		utils.TruncateEllipsis(content, titleMax), id, model.DefaultConversationTitle)
	return err
}

// ListByUser returns conversation summaries ordered by updated_at
// descending.  Preview is the most recent user-authored message and
// message_count is a true COUNT(*) over stored messages.
func (r *ConversationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.ConversationSummary, error) {
	const q = `SELECT c.id, c.title, c.created_at, c.updated_at,
	(SELECT m.content FROM chat_messages m WHERE m.conversation_id=c.id AND m.sender='user' ORDER BY m.timestamp DESC, m.id DESC LIMIT 1),
	(SELECT COUNT(*) FROM chat_messages m WHERE m.conversation_id=c.id)
	FROM chat_conversations c WHERE c.user_id=? ORDER BY c.updated_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ConversationSummary{}
	for rows.Next() {
		var (
			s       model.ConversationSummary
			preview sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &preview, &s.MessageCount); err != nil {
			return nil, err
		}
		if preview.Valid {
			s.Preview = utils.TruncateEllipsis(preview.String, previewMax)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a conversation and all of its messages.  Messages
// are deleted first so an interrupted delete can never leave rows
// pointing at a missing conversation; both statements run in one
// transaction.
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE conversation_id=?", id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_conversations WHERE id=?", id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
