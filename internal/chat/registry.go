package chat

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/dating-advisor-api/internal/model"
	"github.com/iliyamo/dating-advisor-api/internal/repository"
)

// Bounds on the live-session map.  An evicted session loses only its
// in-memory transcript; the next use rebuilds it from storage.
const (
	defaultMaxSessions = 512
	defaultIdleTTL     = 30 * time.Minute
)

// Registry owns the live sessions, keyed by conversation id, and
// fans realtime notifications out to them.  Sessions are created on
// first use and evicted on conversation delete, on idle timeout or
// when the map hits its cap.
type Registry struct {
	ledger Ledger
	convs  ConversationStore
	msgs   MessageStore
	ai     Replier
	pub    Publisher

	maxSessions int
	idleTTL     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a Registry over the shared session dependencies.
func NewRegistry(l Ledger, convs ConversationStore, msgs MessageStore, ai Replier, pub Publisher) *Registry {
	return &Registry{
		ledger:      l,
		convs:       convs,
		msgs:        msgs,
		ai:          ai,
		pub:         pub,
		maxSessions: defaultMaxSessions,
		idleTTL:     defaultIdleTTL,
		sessions:    make(map[string]*Session),
	}
}

// Session returns the live session for a conversation, loading a new
// one when none exists.  A session owned by a different user is
// rejected before any state leaks.
func (r *Registry) Session(ctx context.Context, userID uint64, conversationID string) (*Session, error) {
	if conversationID != "" {
		r.mu.RLock()
		s, ok := r.sessions[conversationID]
		r.mu.RUnlock()
		if ok {
			if s.UserID() != userID {
				return nil, repository.ErrForbidden
			}
			return s, nil
		}
	}

	s := NewSession(r.ledger, r.convs, r.msgs, r.ai, r.pub, userID)
	if err := s.Load(ctx, conversationID); err != nil {
		return nil, err
	}

	key := s.ConversationID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[key]; ok {
		if existing.UserID() != userID {
			return nil, repository.ErrForbidden
		}
		return existing, nil
	}
	r.pruneLocked(time.Now())
	r.sessions[key] = s
	return s, nil
}

// pruneLocked keeps the session map bounded.  Once the cap is
// reached, idle sessions are dropped first; if none is idle, the
// least recently active one makes room.
func (r *Registry) pruneLocked(now time.Time) {
	if len(r.sessions) < r.maxSessions {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for key, s := range r.sessions {
		at := s.LastActive()
		if now.Sub(at) > r.idleTTL {
			delete(r.sessions, key)
			continue
		}
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = key, at
		}
	}
	if len(r.sessions) >= r.maxSessions && oldestKey != "" {
		delete(r.sessions, oldestKey)
	}
}

// Dispatch routes a realtime insert notification to the session for
// its conversation, if one is live.  Unknown conversations are
// dropped; the row is already in storage and will be loaded on the
// next Session call.
func (r *Registry) Dispatch(msg model.Message) {
	r.mu.RLock()
	s, ok := r.sessions[msg.ConversationID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	s.ApplyInsert(msg)
}

// DispatchTokens refreshes the displayed counters of every session
// owned by the user, lifting the blocked state after a purchase.
func (r *Registry) DispatchTokens(ctx context.Context, userID uint64) {
	elig, err := r.ledger.CanSend(ctx, userID)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.UserID() == userID {
			s.Unblock(elig)
		}
	}
}

// Evict removes a conversation's session, e.g. after deletion.
func (r *Registry) Evict(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, conversationID)
}
