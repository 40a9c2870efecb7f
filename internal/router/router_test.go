package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dating-advisor-api/internal/handler"
	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/utils"
)

type stubLedgerStore struct{ balance model.TokenBalance }

func (s *stubLedgerStore) GetOrCreate(context.Context, uint64) (model.TokenBalance, error) {
	return s.balance, nil
}

func (s *stubLedgerStore) UseFreePrompt(_ context.Context, _ uint64, _ int) (int, bool, error) {
	return 1, true, nil
}

func (s *stubLedgerStore) DebitTokens(_ context.Context, _ uint64, _ int64) (int64, bool, error) {
	return 0, true, nil
}

func (s *stubLedgerStore) CreditTokens(_ context.Context, _ uint64, _ int64) (int64, error) {
	return 0, nil
}

type nopTxLog struct{}

func (nopTxLog) Record(context.Context, model.TokenTransaction) error { return nil }

// The cache and rate-limit keys come from the context identity, so
// the extra middleware must run after JWTAuth has stored it.
func TestAPIMiddlewareSeesIdentity(t *testing.T) {
	const secret = "router-test-secret"
	e := echo.New()

	var seen []any
	record := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			seen = append(seen, c.Get("user_id"))
			return next(c)
		}
	}

	tokens := handler.NewTokenHandler(ledger.New(&stubLedgerStore{}, nopTxLog{}), nil, nil, nil)
	RegisterAPI(e, secret,
		handler.NewChatHandler(nil),
		tokens,
		handler.NewConversationHandler(nil, nil, nil),
		handler.NewCheckoutHandler(nil),
		record,
	)

	for _, uid := range []uint64{1, 2} {
		tok, err := utils.NewAccessToken(secret, uid, 5)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/v1/tokens/balance", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	require.NotNil(t, seen[1])
	assert.NotEqual(t, seen[0], seen[1], "each user carries their own identity")

	// Without a token the extra middleware never runs.
	req := httptest.NewRequest(http.MethodGet, "/v1/tokens/balance", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, seen, 2)
}
