package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dating-advisor-api/internal/chat"
	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/queue"
	queue_publisher "github.com/iliyamo/dating-advisor-api/internal/service"
)

// transactionHistoryLimit bounds the recent-transactions endpoint.
const transactionHistoryLimit = 5

// TokenHandler exposes the token ledger: balance reads, transaction
// history, direct debit/credit and the counters push that unblocks
// live sessions after a purchase.
type TokenHandler struct {
	Ledger   *ledger.Service
	Txs      TransactionLister
	Pub      *queue_publisher.Publisher
	Sessions *chat.Registry
}

// TransactionLister reads recent ledger transactions.
type TransactionLister interface {
	ListRecent(ctx context.Context, userID uint64, limit int) ([]model.TokenTransaction, error)
}

func NewTokenHandler(l *ledger.Service, txs TransactionLister, pub *queue_publisher.Publisher, sessions *chat.Registry) *TokenHandler {
	return &TokenHandler{Ledger: l, Txs: txs, Pub: pub, Sessions: sessions}
}

type debitReq struct {
	UserID uint64 `json:"user_id"`
}

type purchaseReq struct {
	UserID      uint64 `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
}

// errUserMismatch rejects a ledger mutation aimed at another user.
var errUserMismatch = errors.New("user_id does not match the authenticated user")

// targetUser resolves the user a ledger operation applies to. An
// explicit user_id is accepted only when it names the authenticated
// caller; these endpoints never touch another user's ledger.
func targetUser(c echo.Context, explicit uint64) (uint64, error) {
	uid, err := userIDFrom(c)
	if err != nil {
		return 0, err
	}
	if explicit != 0 && explicit != uid {
		return 0, errUserMismatch
	}
	return uid, nil
}

// Balance handles GET /v1/tokens/balance.
func (h *TokenHandler) Balance(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Ledger.GetBalance(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balance failed"})
	}
	elig, err := h.Ledger.CanSend(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balance failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": t, "eligibility": elig})
}

// Transactions handles GET /v1/tokens/transactions: the five most
// recent ledger entries, newest first.
func (h *TokenHandler) Transactions(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	txs, err := h.Txs.ListRecent(ctx, uid, transactionHistoryLimit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load transactions failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

// Debit handles POST /v1/tokens/debit: charge one message's worth of
// tokens. A send that cannot be funded comes back as 402 with
// success=false so callers can render a purchase prompt.
func (h *TokenHandler) Debit(c echo.Context) error {
	var req debitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	uid, err := targetUser(c, req.UserID)
	if err != nil {
		if errors.Is(err, errUserMismatch) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": errUserMismatch.Error()})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Ledger.DebitForMessage(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "debit failed"})
	}
	if !res.Allowed {
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"success": false,
			"error":   "Insufficient tokens",
			"balance": res.Balance,
		})
	}

	h.publishUpdate(ctx, uid, debitAmount(res), model.TxUsage)

	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"freePrompt":    res.FreePrompt,
		"remainingFree": res.RemainingFree,
		"tokenBalance":  res.Balance,
	})
}

// Purchase handles POST /v1/tokens/purchase: credit a paid amount in
// cents at the fixed tokens-per-dollar rate. Live sessions of the
// user are unblocked with the fresh counters.
func (h *TokenHandler) Purchase(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be positive"})
	}
	uid, err := targetUser(c, req.UserID)
	if err != nil {
		if errors.Is(err, errUserMismatch) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": errUserMismatch.Error()})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Ledger.CreditFromPurchase(ctx, uid, req.AmountCents)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "purchase failed"})
	}

	h.publishUpdate(ctx, uid, res.TokensAdded, model.TxPurchase)
	if h.Sessions != nil {
		h.Sessions.DispatchTokens(ctx, uid)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"tokens_added": res.TokensAdded,
		"new_balance":  res.NewBalance,
	})
}

// publishUpdate emits a tokens.updated event with the counters as
// they stand after the mutation. Failures are non-fatal.
func (h *TokenHandler) publishUpdate(ctx context.Context, uid uint64, amount int64, txType string) {
	if h.Pub == nil {
		return
	}
	t, err := h.Ledger.GetBalance(ctx, uid)
	if err != nil {
		return
	}
	_ = h.Pub.PublishTokensUpdated(ctx, queue.TokensUpdatedEvent{
		UserID:          uid,
		Amount:          amount,
		Type:            txType,
		Balance:         t.Balance,
		FreePromptsUsed: t.FreePromptsUsed,
	})
}

func debitAmount(res ledger.DebitResult) int64 {
	if res.FreePrompt {
		return 0
	}
	return -ledger.TokensPerPrompt
}
