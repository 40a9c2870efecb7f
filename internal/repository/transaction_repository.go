package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/dating-advisor-api/internal/model"
)

// TransactionRepo owns the append-only `token_transactions` table.
// One row is written per ledger mutation; rows are never updated or
// deleted, so the table doubles as an audit trail that reconciles
// to the current balance.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Record appends a transaction row.
func (r *TransactionRepo) Record(ctx context.Context, tx model.TokenTransaction) error {
	var meta interface{}
	if tx.Metadata != nil {
		meta = *tx.Metadata
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO token_transactions (user_id, amount, transaction_type, description, metadata) VALUES (?,?,?,?,?)",
		tx.UserID, tx.Amount, tx.Type, tx.Description, meta)
	return err
}

// ListRecent returns the newest transactions for a user, newest
// first, bounded by limit.
func (r *TransactionRepo) ListRecent(ctx context.Context, userID uint64, limit int) ([]model.TokenTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, amount, transaction_type, description, metadata, created_at FROM token_transactions WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TokenTransaction
	for rows.Next() {
		var (
			tx   model.TokenTransaction
			meta sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Description, &meta, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			m := meta.String
			tx.Metadata = &m
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
