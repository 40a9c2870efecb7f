package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dating-advisor-api/internal/assistant"
	"github.com/iliyamo/dating-advisor-api/internal/chat"
	"github.com/iliyamo/dating-advisor-api/internal/config"
	"github.com/iliyamo/dating-advisor-api/internal/database"
	"github.com/iliyamo/dating-advisor-api/internal/handler"
	"github.com/iliyamo/dating-advisor-api/internal/ledger"
	appmw "github.com/iliyamo/dating-advisor-api/internal/middleware"
	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/payment"
	"github.com/iliyamo/dating-advisor-api/internal/queue"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
	"github.com/iliyamo/dating-advisor-api/internal/router"
	queue_publisher "github.com/iliyamo/dating-advisor-api/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Repositories over the shared pool.
	users := repository.NewUserRepo(db)
	refresh := repository.NewRefreshTokenRepo(db)
	ledgerRepo := repository.NewLedgerRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	convRepo := repository.NewConversationRepo(db)
	msgRepo := repository.NewMessageRepo(db)

	ledgerSvc := ledger.New(ledgerRepo, txRepo)

	// Vendor assistant; the chat endpoint degrades to an upstream
	// error when the credentials are absent.
	aiClient := assistant.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, 90*time.Second)
	orchestrator := assistant.NewOrchestrator(aiClient, cfg.OpenAIAssistantID)
	if !orchestrator.Configured() {
		log.Printf("assistant credentials missing; chat replies will fail")
	}

	pub := queue_publisher.New()
	sessions := chat.NewRegistry(ledgerSvc, convRepo, msgRepo, orchestrator, pub)

	checkout := payment.NewCheckout(cfg.StripeSecretKey, cfg.CheckoutReturn)

	// Background consumers: realtime fan-out into live sessions and
	// the token audit log. Both run reconnect loops forever.
	go func() {
		if err := queue.StartMessageConsumer(func(ev queue.MessageCreatedEvent) {
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err != nil {
				ts = time.Now().UTC()
			}
			sessions.Dispatch(modelMessage(ev, ts))
		}); err != nil {
			log.Printf("message consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := queue.StartTokenAuditConsumer(); err != nil {
			log.Printf("token audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	// Redis-backed response cache and rate limiting; both disable
	// themselves when Redis is unreachable. Their keys carry the
	// authenticated user id, so they register on the route groups
	// behind JWTAuth, never globally.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; cache and rate limiting disabled")
	}
	rateLimit := appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	respCache := appmw.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, refresh), cfg.JWTSecret, rateLimit, respCache)
	router.RegisterAPI(e, cfg.JWTSecret,
		handler.NewChatHandler(sessions),
		handler.NewTokenHandler(ledgerSvc, txRepo, pub, sessions),
		handler.NewConversationHandler(convRepo, msgRepo, sessions),
		handler.NewCheckoutHandler(checkout),
		rateLimit, respCache,
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// modelMessage converts a broker event back into the stored message
// shape for session reconciliation.
func modelMessage(ev queue.MessageCreatedEvent, ts time.Time) model.Message {
	return model.Message{
		ID:             ev.MessageID,
		ConversationID: ev.ConversationID,
		Content:        ev.Content,
		Sender:         ev.Sender,
		Timestamp:      ts,
	}
}
