package model

import "time"

// TokenBalance represents a row in the `tokens` table: the
// authoritative per-user record of purchasable message credits.
// Exactly one row exists per user; it is created lazily on the
// first balance read or send attempt and is never deleted.
//
// Invariant: Balance == TotalPurchased - TotalUsed after every
// committed ledger mutation.  FreePromptsUsed never exceeds the
// configured free-prompt limit.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – owner of the ledger entry (unique).
//  Balance         – current spendable token balance (>= 0).
//  TotalPurchased  – lifetime tokens purchased (monotonic).
//  TotalUsed       – lifetime tokens consumed (monotonic).
//  FreePromptsUsed – no-cost prompts consumed so far (0..limit).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – timestamp of the last ledger mutation.
type TokenBalance struct {
	ID              uint64    `json:"id"`                // tokens.id
	UserID          uint64    `json:"user_id"`           // tokens.user_id
	Balance         int64     `json:"balance"`           // tokens.balance
	TotalPurchased  int64     `json:"total_purchased"`   // tokens.total_purchased
	TotalUsed       int64     `json:"total_used"`        // tokens.total_used
	FreePromptsUsed int       `json:"free_prompts_used"` // tokens.free_prompts_used
	CreatedAt       time.Time `json:"created_at"`        // tokens.created_at
	UpdatedAt       time.Time `json:"updated_at"`        // tokens.updated_at
}

// Transaction types recorded in token_transactions.transaction_type.
const (
	TxPurchase = "purchase"
	TxUsage    = "usage"
	TxRefund   = "refund"
	TxBonus    = "bonus"
)

// TokenTransaction is an append-only entry in the
// `token_transactions` table.  One row is written per ledger
// mutation; rows are immutable and never deleted.  The sum of all
// amounts for a user reconciles to that user's current balance.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – user the transaction belongs to.
//  Amount      – signed token amount (negative for usage, positive
//                for purchase/bonus/refund; zero for free prompts).
//  Type        – one of purchase | usage | refund | bonus.
//  Description – human readable summary of the mutation.
//  Metadata    – optional JSON payload (e.g. amount_cents).
//  CreatedAt   – creation timestamp.
type TokenTransaction struct {
	ID          uint64    `json:"id"`                 // token_transactions.id
	UserID      uint64    `json:"user_id"`            // token_transactions.user_id
	Amount      int64     `json:"amount"`             // token_transactions.amount
	Type        string    `json:"transaction_type"`   // token_transactions.transaction_type
	Description string    `json:"description"`        // token_transactions.description
	Metadata    *string   `json:"metadata,omitempty"` // token_transactions.metadata (nullable JSON)
	CreatedAt   time.Time `json:"created_at"`         // token_transactions.created_at
}
