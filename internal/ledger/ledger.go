// Package ledger implements the token metering rules on top of the
// tokens and token_transactions tables: a small number of free
// prompts per user, then one token per message, topped up by
// purchases at a fixed tokens-per-dollar rate.
package ledger

import (
	"context"
	"fmt"

	"github.com/iliyamo/dating-advisor-api/internal/model"
)

// Contract constants shared with clients.
const (
	FreePromptLimit = 3  // no-cost messages granted per user
	TokensPerPrompt = 1  // tokens consumed per message after free prompts
	TokensPerDollar = 10 // tokens granted per dollar of purchase
)

// Store is the persistence surface the service needs.  The
// production implementation is repository.LedgerRepo; tests supply
// an in-memory fake.  UseFreePrompt and DebitTokens must perform
// their check-and-mutate as one atomic step.
type Store interface {
	GetOrCreate(ctx context.Context, userID uint64) (model.TokenBalance, error)
	UseFreePrompt(ctx context.Context, userID uint64, limit int) (used int, ok bool, err error)
	DebitTokens(ctx context.Context, userID uint64, cost int64) (balance int64, ok bool, err error)
	CreditTokens(ctx context.Context, userID uint64, amount int64) (balance int64, err error)
}

// TransactionLog records one append-only entry per ledger mutation.
type TransactionLog interface {
	Record(ctx context.Context, tx model.TokenTransaction) error
}

// Service exposes the ledger operations: read, debit and credit.
type Service struct {
	store Store
	log   TransactionLog
}

// New builds a ledger Service from its storage dependencies.
func New(store Store, log TransactionLog) *Service {
	return &Service{store: store, log: log}
}

// Eligibility reports whether a user may send a message right now
// and which resource the next send would consume.  It is a pure
// read; no counters move.
type Eligibility struct {
	Allowed       bool  `json:"allowed"`
	FreePrompt    bool  `json:"freePrompt"`
	RemainingFree int   `json:"remainingFree"`
	Balance       int64 `json:"balance"`
}

// DebitResult is the outcome of DebitForMessage.  A send that cannot
// be funded is reported with Allowed=false rather than an error so
// callers can render a purchase prompt.
type DebitResult struct {
	Allowed       bool
	FreePrompt    bool
	RemainingFree int
	Balance       int64
}

// PurchaseResult is the outcome of CreditFromPurchase.
type PurchaseResult struct {
	TokensAdded int64
	NewBalance  int64
}

// GetBalance returns the user's ledger entry, creating a zeroed one
// on first contact.
func (s *Service) GetBalance(ctx context.Context, userID uint64) (model.TokenBalance, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// CanSend reports send eligibility: allowed iff free prompts remain
// or the balance covers one message.
func (s *Service) CanSend(ctx context.Context, userID uint64) (Eligibility, error) {
	t, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	if t.FreePromptsUsed < FreePromptLimit {
		return Eligibility{
			Allowed:       true,
			FreePrompt:    true,
			RemainingFree: FreePromptLimit - t.FreePromptsUsed,
			Balance:       t.Balance,
		}, nil
	}
	if t.Balance >= TokensPerPrompt {
		return Eligibility{Allowed: true, Balance: t.Balance}, nil
	}
	return Eligibility{Allowed: false, Balance: t.Balance}, nil
}

// DebitForMessage charges one message: a free prompt while any
// remain, otherwise one token.  Free prompts record a zero-amount
// usage transaction so the transaction sum still reconciles to the
// balance.  When neither resource is available no counter moves and
// no transaction is written.
func (s *Service) DebitForMessage(ctx context.Context, userID uint64) (DebitResult, error) {
	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return DebitResult{}, err
	}

	used, ok, err := s.store.UseFreePrompt(ctx, userID, FreePromptLimit)
	if err != nil {
		return DebitResult{}, err
	}
	if ok {
		err := s.log.Record(ctx, model.TokenTransaction{
			UserID:      userID,
			Amount:      0,
			Type:        model.TxUsage,
			Description: fmt.Sprintf("Free prompt used (%d/%d)", used, FreePromptLimit),
		})
		if err != nil {
			return DebitResult{}, err
		}
		return DebitResult{Allowed: true, FreePrompt: true, RemainingFree: FreePromptLimit - used}, nil
	}

	balance, ok, err := s.store.DebitTokens(ctx, userID, TokensPerPrompt)
	if err != nil {
		return DebitResult{}, err
	}
	if !ok {
		return DebitResult{Allowed: false, Balance: balance}, nil
	}
	err = s.log.Record(ctx, model.TokenTransaction{
		UserID:      userID,
		Amount:      -TokensPerPrompt,
		Type:        model.TxUsage,
		Description: "Token used for AI message",
	})
	if err != nil {
		return DebitResult{}, err
	}
	return DebitResult{Allowed: true, Balance: balance}, nil
}

// CreditFromPurchase converts a paid amount in cents to tokens at
// TokensPerDollar, flooring at non-round amounts, and credits the
// balance.
func (s *Service) CreditFromPurchase(ctx context.Context, userID uint64, amountCents int64) (PurchaseResult, error) {
	if _, err := s.store.GetOrCreate(ctx, userID); err != nil {
		return PurchaseResult{}, err
	}
	tokens := amountCents * TokensPerDollar / 100
	balance, err := s.store.CreditTokens(ctx, userID, tokens)
	if err != nil {
		return PurchaseResult{}, err
	}
	meta := fmt.Sprintf(`{"amount_cents":%d}`, amountCents)
	err = s.log.Record(ctx, model.TokenTransaction{
		UserID:      userID,
		Amount:      tokens,
		Type:        model.TxPurchase,
		Description: fmt.Sprintf("Purchased %d tokens ($%.2f)", tokens, float64(amountCents)/100),
		Metadata:    &meta,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{TokensAdded: tokens, NewBalance: balance}, nil
}
