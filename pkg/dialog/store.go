// Package dialog implements the request handler state (C13): a per-chat
// dialog context plus the handle_message glue that sequences C3 (intent),
// C2 (items) and C12 (the pipeline) for one inbound message.
//
// Grounded on pkg/session.Manager's map+sync.RWMutex in-memory store for
// the single-process tier, and pkg/runbook.Cache's lazy-expiry TTL pattern
// for expiring entries without a background goroutine; the Redis
// cross-process tier reuses pkg/cache as spec §9 requires.
package dialog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/cache"
	"github.com/wholesale-bot/resolver/pkg/clarify"
	"github.com/wholesale-bot/resolver/pkg/orderparser"
)

// DefaultTTL is the 600s lifetime spec §9 names for dialog context and
// clarification callback caches.
const DefaultTTL = 600 * time.Second

// Context is the per-chat-id dialog state carried between turns.
type Context struct {
	ChatID        string              `json:"chat_id"`
	OrgID         *int64              `json:"org_id,omitempty"`
	Topic         string              `json:"topic,omitempty"`
	LastState     string              `json:"last_state,omitempty"`
	LastItems     []*orderparser.Item `json:"last_items,omitempty"`
	ClarifyOffset int                 `json:"clarify_offset"`
}

type contextEntry struct {
	value     Context
	updatedAt time.Time
}

type clarificationEntry struct {
	value     clarify.Clarification
	updatedAt time.Time
}

// Store is the two-tier DialogContext backing store: an in-memory
// sync.RWMutex map (single-process, always current) in front of an
// optional Redis tier (pkg/cache) for cross-process reads — a cache miss
// or a disabled Redis client both degrade to "no prior context", never an
// error.
type Store struct {
	mu            sync.RWMutex
	entries       map[string]*contextEntry
	clarifyMu     sync.RWMutex
	clarifyCaches map[string]*clarificationEntry
	ttl           time.Duration
	redis         *cache.Cache
}

// NewStore builds a Store with the given TTL and optional Redis tier. A
// nil redis cache is valid — every Get/Save falls back to the in-memory
// tier alone.
func NewStore(ttl time.Duration, redis *cache.Cache) *Store {
	return &Store{
		entries:       make(map[string]*contextEntry),
		clarifyCaches: make(map[string]*clarificationEntry),
		ttl:           ttl,
		redis:         redis,
	}
}

func contextKey(chatID string) string { return "dialog_context:" + chatID }

// Get returns the current context for chatID, or a fresh zero-value
// Context when nothing is cached or the cached entry has expired.
func (s *Store) Get(ctx context.Context, chatID string) Context {
	s.mu.RLock()
	entry, ok := s.entries[chatID]
	s.mu.RUnlock()

	if ok && time.Since(entry.updatedAt) <= s.ttl {
		return entry.value
	}
	if ok {
		s.mu.Lock()
		if current, ok := s.entries[chatID]; ok && time.Since(current.updatedAt) > s.ttl {
			delete(s.entries, chatID)
		}
		s.mu.Unlock()
	}

	if s.redis != nil {
		if raw, hit := s.redis.Get(ctx, contextKey(chatID)); hit {
			var decoded Context
			if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
				s.mu.Lock()
				s.entries[chatID] = &contextEntry{value: decoded, updatedAt: time.Now()}
				s.mu.Unlock()
				return decoded
			}
			logrus.Warn("dialog context cache hit but payload did not decode, treating as miss")
		}
	}

	return Context{ChatID: chatID}
}

// Save writes dc to the in-memory tier and, when a Redis cache is
// configured, the cross-process tier under a 600s TTL.
func (s *Store) Save(ctx context.Context, dc Context) {
	s.mu.Lock()
	s.entries[dc.ChatID] = &contextEntry{value: dc, updatedAt: time.Now()}
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	encoded, err := json.Marshal(dc)
	if err != nil {
		logrus.WithError(err).Warn("dialog context encode failed, redis tier skipped")
		return
	}
	s.redis.Set(ctx, contextKey(dc.ChatID), string(encoded), s.ttl)
}

func clarificationKey(chatID, msgID string) string {
	return "candidates:" + chatID + ":" + msgID
}

// SaveClarification caches a rendered clarification payload under
// candidates:<chat_id>:<msg_id>, per spec §9, so a later callback (the
// user tapping one of its options) can be resolved back to the original
// candidate list without resending it. Kept in-memory for single-process
// deployments and mirrored to Redis when configured, so a callback landing
// on a different process still resolves.
func (s *Store) SaveClarification(ctx context.Context, chatID, msgID string, payload clarify.Clarification) {
	key := clarificationKey(chatID, msgID)
	s.clarifyMu.Lock()
	s.clarifyCaches[key] = &clarificationEntry{value: payload, updatedAt: time.Now()}
	s.clarifyMu.Unlock()

	if s.redis == nil {
		return
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Warn("clarification payload encode failed, redis tier skipped")
		return
	}
	s.redis.Set(ctx, key, string(encoded), s.ttl)
}

// GetClarification returns the clarification cached for (chatID, msgID):
// the in-memory tier first, then Redis on a miss (or when the in-memory
// entry has expired).
func (s *Store) GetClarification(ctx context.Context, chatID, msgID string) (clarify.Clarification, bool) {
	key := clarificationKey(chatID, msgID)

	s.clarifyMu.RLock()
	entry, ok := s.clarifyCaches[key]
	s.clarifyMu.RUnlock()
	if ok && time.Since(entry.updatedAt) <= s.ttl {
		return entry.value, true
	}

	if s.redis == nil {
		return clarify.Clarification{}, false
	}
	raw, hit := s.redis.Get(ctx, key)
	if !hit {
		return clarify.Clarification{}, false
	}
	var decoded clarify.Clarification
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logrus.WithError(err).Warn("clarification cache hit but payload did not decode")
		return clarify.Clarification{}, false
	}
	s.clarifyMu.Lock()
	s.clarifyCaches[key] = &clarificationEntry{value: decoded, updatedAt: time.Now()}
	s.clarifyMu.Unlock()
	return decoded, true
}
