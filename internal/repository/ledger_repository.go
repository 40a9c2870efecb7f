package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/dating-advisor-api/internal/model"
)

// LedgerRepo owns the `tokens` table: one row per user holding the
// spendable balance, lifetime counters and the free-prompt counter.
// All mutations are expressed as single conditional UPDATE
// statements so that two concurrent sends from the same user (e.g.
// two open tabs) cannot both spend the last token; the row-level
// atomicity of the UPDATE is the only lock required.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a new LedgerRepo bound to the given database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const ledgerColumns = "id, user_id, balance, total_purchased, total_used, free_prompts_used, created_at, updated_at"

func (r *LedgerRepo) scanRow(row *sql.Row) (model.TokenBalance, error) {
	var t model.TokenBalance
	err := row.Scan(&t.ID, &t.UserID, &t.Balance, &t.TotalPurchased, &t.TotalUsed,
		&t.FreePromptsUsed, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetOrCreate returns the ledger row for a user, inserting a zeroed
// one if none exists yet.  Rows are created lazily on the first
// balance read or send attempt and never deleted.
func (r *LedgerRepo) GetOrCreate(ctx context.Context, userID uint64) (model.TokenBalance, error) {
	t, err := r.scanRow(r.db.QueryRowContext(ctx,
		"SELECT "+ledgerColumns+" FROM tokens WHERE user_id=? LIMIT 1", userID))
	if err == nil {
		return t, nil
	}
	if err != sql.ErrNoRows {
		return model.TokenBalance{}, err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO tokens (user_id, balance, total_purchased, total_used, free_prompts_used) VALUES (?,0,0,0,0)",
		userID)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "1062") {
		// 1062 = duplicate key: another request created the row first.
		return model.TokenBalance{}, err
	}
	return r.scanRow(r.db.QueryRowContext(ctx,
		"SELECT "+ledgerColumns+" FROM tokens WHERE user_id=? LIMIT 1", userID))
}

// UseFreePrompt consumes one free prompt if any remain below the
// limit.  The check and increment happen in a single UPDATE, so the
// counter can never pass the limit even under concurrent sends.  It
// returns the new free_prompts_used count and whether a prompt was
// consumed.
func (r *LedgerRepo) UseFreePrompt(ctx context.Context, userID uint64, limit int) (int, bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tokens SET free_prompts_used=free_prompts_used+1, updated_at=NOW() WHERE user_id=? AND free_prompts_used<?",
		userID, limit)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	var used int
	err = r.db.QueryRowContext(ctx,
		"SELECT free_prompts_used FROM tokens WHERE user_id=? LIMIT 1", userID).Scan(&used)
	if err != nil {
		return 0, false, err
	}
	return used, true, nil
}

// DebitTokens deducts cost tokens if the balance covers it.  The
// balance check and decrement are one conditional UPDATE
// (balance = balance - cost WHERE balance >= cost), which closes the
// read-then-write lost-update window.  It returns the remaining
// balance and whether the debit happened.
func (r *LedgerRepo) DebitTokens(ctx context.Context, userID uint64, cost int64) (int64, bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE tokens SET balance=balance-?, total_used=total_used+?, updated_at=NOW() WHERE user_id=? AND balance>=?",
		cost, cost, userID, cost)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	var balance int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT balance FROM tokens WHERE user_id=? LIMIT 1", userID).Scan(&balance); err != nil {
		return 0, false, err
	}
	return balance, n > 0, nil
}

// CreditTokens adds purchased tokens to the balance and lifetime
// purchase counter.  It returns the new balance.
func (r *LedgerRepo) CreditTokens(ctx context.Context, userID uint64, amount int64) (int64, error) {
	_, err := r.db.ExecContext(ctx,
		"UPDATE tokens SET balance=balance+?, total_purchased=total_purchased+?, updated_at=NOW() WHERE user_id=?",
		amount, amount, userID)
	if err != nil {
		return 0, err
	}
	var balance int64
	err = r.db.QueryRowContext(ctx,
		"SELECT balance FROM tokens WHERE user_id=? LIMIT 1", userID).Scan(&balance)
	return balance, err
}
