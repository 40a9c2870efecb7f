package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/model"
)

type stubTxLister struct {
	txs []model.TokenTransaction
}

func (s *stubTxLister) ListRecent(_ context.Context, _ uint64, limit int) ([]model.TokenTransaction, error) {
	if len(s.txs) > limit {
		return s.txs[:limit], nil
	}
	return s.txs, nil
}

func newTokenHandler(store *memLedgerStore, txs *stubTxLister) *TokenHandler {
	return NewTokenHandler(ledger.New(store, nopTxLog{}), txs, nil, nil)
}

func doTokenReq(h echo.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", float64(42))
	_ = h(c)
	return rec
}

func TestTokenBalance(t *testing.T) {
	store := &memLedgerStore{}
	store.balance.Balance = 12
	h := newTokenHandler(store, &stubTxLister{})

	rec := doTokenReq(h.Balance, http.MethodGet, "/v1/tokens/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tokens      model.TokenBalance `json:"tokens"`
		Eligibility ledger.Eligibility `json:"eligibility"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 12, resp.Tokens.Balance)
	assert.True(t, resp.Eligibility.Allowed)
}

func TestTokenDebitContract(t *testing.T) {
	store := &memLedgerStore{}
	h := newTokenHandler(store, &stubTxLister{})

	// Free prompts first.
	rec := doTokenReq(h.Debit, http.MethodPost, "/v1/tokens/debit", `{"user_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"freePrompt":true`)
	assert.Contains(t, rec.Body.String(), `"remainingFree"`)
	assert.Contains(t, rec.Body.String(), `"tokenBalance"`)

	// Exhaust everything, then expect the 402 contract body.
	store.balance.FreePromptsUsed = ledger.FreePromptLimit
	store.balance.Balance = 0
	rec = doTokenReq(h.Debit, http.MethodPost, "/v1/tokens/debit", `{"user_id":42}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "Insufficient tokens")
}

func TestTokenPurchase(t *testing.T) {
	store := &memLedgerStore{}
	h := newTokenHandler(store, &stubTxLister{})

	rec := doTokenReq(h.Purchase, http.MethodPost, "/v1/tokens/purchase", `{"user_id":42,"amount_cents":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success     bool  `json:"success"`
		TokensAdded int64 `json:"tokens_added"`
		NewBalance  int64 `json:"new_balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.EqualValues(t, 100, resp.TokensAdded)
	assert.EqualValues(t, 100, resp.NewBalance)

	rec = doTokenReq(h.Purchase, http.MethodPost, "/v1/tokens/purchase", `{"user_id":42,"amount_cents":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenMutationsRejectOtherUsers(t *testing.T) {
	store := &memLedgerStore{}
	h := newTokenHandler(store, &stubTxLister{})

	// The requests run as user 42; naming anyone else must fail
	// without touching the ledger.
	rec := doTokenReq(h.Purchase, http.MethodPost, "/v1/tokens/purchase", `{"user_id":7,"amount_cents":1000}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, store.balance.Balance)
	assert.Zero(t, store.balance.TotalPurchased)

	rec = doTokenReq(h.Debit, http.MethodPost, "/v1/tokens/debit", `{"user_id":7}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, store.balance.FreePromptsUsed)
}

func TestTokenTransactionsLimited(t *testing.T) {
	txs := &stubTxLister{}
	for i := 0; i < 8; i++ {
		txs.txs = append(txs.txs, model.TokenTransaction{UserID: 42, Type: model.TxUsage})
	}
	h := newTokenHandler(&memLedgerStore{}, txs)

	rec := doTokenReq(h.Transactions, http.MethodGet, "/v1/tokens/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []model.TokenTransaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Transactions, transactionHistoryLimit)
}
