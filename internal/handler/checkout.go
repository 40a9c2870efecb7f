package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	"github.com/iliyamo/dating-advisor-api/internal/payment"
)

// CheckoutHandler opens payment-provider checkout sessions.
type CheckoutHandler struct {
	Checkout *payment.Checkout
}

func NewCheckoutHandler(co *payment.Checkout) *CheckoutHandler {
	return &CheckoutHandler{Checkout: co}
}

type checkoutReq struct {
	AmountCents int64  `json:"amount_cents"`
	PriceID     string `json:"price_id"`
}

// Create handles POST /v1/checkout. With amount_cents it opens a
// one-time token purchase; with price_id a recurring subscription.
func (h *CheckoutHandler) Create(c echo.Context) error {
	uid, err := userIDFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if !h.Checkout.Configured() {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payments are not configured"})
	}

	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	var sess payment.Session
	switch {
	case req.PriceID != "":
		sess, err = h.Checkout.CreateSubscription(uid, req.PriceID)
	case req.AmountCents > 0:
		tokens := req.AmountCents * ledger.TokensPerDollar / 100
		sess, err = h.Checkout.CreateTokenPurchase(uid, req.AmountCents, tokens)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents or price_id required"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create checkout failed"})
	}
	return c.JSON(http.StatusOK, sess)
}
