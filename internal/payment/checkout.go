// Package payment creates Stripe Checkout sessions for token top-ups
// and recurring subscriptions. Fulfilment happens out of band: the
// payment provider redirects back with a session id and the credit is
// applied through the ledger's purchase endpoint.
package payment

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Checkout wraps the Stripe API client.
type Checkout struct {
	api       *client.API
	returnURL string
}

// NewCheckout builds a Checkout over the given secret key. returnURL
// is the site base the provider redirects back to. An empty key
// leaves the service unconfigured; calls then fail fast.
func NewCheckout(secretKey, returnURL string) *Checkout {
	c := &Checkout{returnURL: returnURL}
	if secretKey != "" {
		c.api = &client.API{}
		c.api.Init(secretKey, nil)
	}
	return c
}

// Configured reports whether a secret key was supplied.
func (c *Checkout) Configured() bool { return c.api != nil }

// Session is the subset of a created checkout session callers need.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// CreateTokenPurchase opens a one-time payment session for a token
// pack priced in cents. The user id rides along as metadata so the
// fulfilment step can credit the right ledger.
func (c *Checkout) CreateTokenPurchase(userID uint64, amountCents int64, tokens int64) (Session, error) {
	if !c.Configured() {
		return Session{}, errors.New("payment provider is not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(amountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("AI Dating Advisor Tokens"),
					Description: stripe.String(fmt.Sprintf("%d tokens for your AI Dating Advisor", tokens)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(c.returnURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.returnURL + "?canceled=true"),
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", userID),
			"purpose": "token_purchase",
		},
	}
	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

// CreateSubscription opens a recurring-billing session for an
// existing Stripe price id.
func (c *Checkout) CreateSubscription(userID uint64, priceID string) (Session, error) {
	if !c.Configured() {
		return Session{}, errors.New("payment provider is not configured")
	}
	if priceID == "" {
		return Session{}, errors.New("price id is required")
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(c.returnURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.returnURL + "?canceled=true"),
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", userID),
			"purpose": "subscription",
		},
	}
	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}
