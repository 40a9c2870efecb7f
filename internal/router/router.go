// Package router wires the HTTP routes onto the Echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/dating-advisor-api/internal/handler"
	"github.com/iliyamo/dating-advisor-api/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the auth surface. Unauthenticated operations
// live under /v1/auth; /v1/me and /v1/logout require a valid access
// token. The extra middleware (rate limiting, response caching) keys
// on the authenticated identity, so it runs after JWTAuth; on the
// public group it falls back to per-IP keys.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.Use(mw...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout accepts a refresh_token body without a JWT so a client
	// with an expired access token can still end its session.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(mw...)
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
}

// RegisterAPI registers the advisor API: the chat endpoint plus the
// token-ledger, conversation and checkout surfaces. All routes
// require a valid access token. The extra middleware runs after
// JWTAuth so its keys carry the user id.
func RegisterAPI(
	e *echo.Echo,
	jwtSecret string,
	chat *handler.ChatHandler,
	tokens *handler.TokenHandler,
	convs *handler.ConversationHandler,
	checkout *handler.CheckoutHandler,
	mw ...echo.MiddlewareFunc,
) {
	// The chat endpoint is called directly from browsers; answer
	// preflights permissively.
	api := e.Group("/api")
	api.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	api.Use(middleware.JWTAuth(jwtSecret))
	api.Use(mw...)
	api.POST("/chat", chat.Send)

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))
	v1.Use(mw...)

	v1.GET("/tokens/balance", tokens.Balance)
	v1.GET("/tokens/transactions", tokens.Transactions)
	v1.POST("/tokens/debit", tokens.Debit)
	v1.POST("/tokens/purchase", tokens.Purchase)

	v1.GET("/conversations", convs.List)
	v1.POST("/conversations", convs.Create)
	v1.GET("/conversations/:id/messages", convs.Messages)
	v1.DELETE("/conversations/:id", convs.Delete)

	v1.POST("/checkout", checkout.Create)
}
