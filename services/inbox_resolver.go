package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"
)

// =====================================================================================
// PHONE NUMBER ID / SESSION → INBOX CACHE
// =====================================================================================
// Every provider webhook needs the owning inbox before it can be published.
// At webhook volume that lookup dominates database load, so resolution goes
// through a multi-layer cache (memory, then Redis, then Postgres) with
// negative caching for unknown identifiers.
// =====================================================================================

type cachedInbox struct {
	Inbox     *models.Inbox // nil means "looked up, not found"
	ExpiresAt time.Time
}

var (
	inboxMemoryCacheTTL   = 30 * time.Minute
	inboxRedisCacheTTL    = 4 * time.Hour
	inboxNegativeCacheTTL = 10 * time.Minute
)

// InboxResolver resolves inboxes by provider identifiers with caching.
// A nil inbox with a nil error means the identifier is unknown.
type InboxResolver struct {
	store *Store

	memory sync.Map // cache key -> *cachedInbox

	statsMu sync.RWMutex
	hits    int64
	misses  int64
}

func NewInboxResolver(store *Store) *InboxResolver {
	return &InboxResolver{store: store}
}

// ByPhoneNumberID resolves a Meta inbox by phone_number_id.
func (r *InboxResolver) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Inbox, error) {
	if phoneNumberID == "" {
		return nil, fmt.Errorf("phone number id is empty")
	}
	return r.resolve(ctx, "phone:"+utils.NormalizeMSISDN(phoneNumberID), func(ctx context.Context) (*models.Inbox, error) {
		return r.store.GetInboxByPhoneNumberID(ctx, phoneNumberID)
	})
}

// BySession resolves a WAHA inbox by session name.
func (r *InboxResolver) BySession(ctx context.Context, session string) (*models.Inbox, error) {
	if session == "" {
		return nil, fmt.Errorf("session is empty")
	}
	return r.resolve(ctx, "session:"+session, func(ctx context.Context) (*models.Inbox, error) {
		return r.store.GetInboxBySession(ctx, session)
	})
}

// ByVerifyToken resolves an inbox by verify token. Uncached: handshakes are
// rare and tokens should not sit in Redis.
func (r *InboxResolver) ByVerifyToken(ctx context.Context, token string) (*models.Inbox, error) {
	return r.store.GetInboxByVerifyToken(ctx, token)
}

// Creds loads decrypted credentials for an inbox. Uncached for the same
// reason as verify tokens.
func (r *InboxResolver) Creds(ctx context.Context, inboxID string) (*models.InboxCreds, error) {
	return r.store.GetInboxCreds(ctx, inboxID)
}

func (r *InboxResolver) resolve(ctx context.Context, cacheKey string, lookup func(context.Context) (*models.Inbox, error)) (*models.Inbox, error) {
	// Layer 1: in-memory
	if cached, ok := r.memory.Load(cacheKey); ok {
		entry := cached.(*cachedInbox)
		if time.Now().Before(entry.ExpiresAt) {
			r.recordHit()
			return entry.Inbox, nil
		}
		r.memory.Delete(cacheKey)
	}

	// Layer 2: Redis
	if inbox, ok := r.fromRedis(ctx, cacheKey); ok {
		r.updateMemory(cacheKey, inbox)
		r.recordHit()
		return inbox, nil
	}

	// Layer 3: Postgres
	r.recordMiss()
	inbox, err := lookup(ctx)
	if err != nil {
		return nil, err
	}

	// Cache the result in both layers, including "not found".
	r.updateMemory(cacheKey, inbox)
	r.updateRedis(cacheKey, inbox)

	if inbox == nil {
		log.Printf("[INBOX_CACHE] Cached negative result for %s", cacheKey)
	}
	return inbox, nil
}

// fromRedis returns (inbox, true) on a cache hit. A cached negative result
// hits with a nil inbox.
func (r *InboxResolver) fromRedis(ctx context.Context, cacheKey string) (*models.Inbox, bool) {
	client := utils.GetRedisClient()
	if client == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	data, err := client.Get(ctx, "inbox:lookup:"+cacheKey).Result()
	if err != nil {
		return nil, false
	}
	if data == "NOT_FOUND" {
		return nil, true
	}

	var inbox models.Inbox
	if err := json.Unmarshal([]byte(data), &inbox); err != nil {
		return nil, false
	}
	return &inbox, true
}

func (r *InboxResolver) updateMemory(cacheKey string, inbox *models.Inbox) {
	ttl := inboxMemoryCacheTTL
	if inbox == nil {
		ttl = inboxNegativeCacheTTL
	}
	r.memory.Store(cacheKey, &cachedInbox{Inbox: inbox, ExpiresAt: time.Now().Add(ttl)})
}

// updateRedis writes through to Redis without blocking the webhook path.
func (r *InboxResolver) updateRedis(cacheKey string, inbox *models.Inbox) {
	go func() {
		client := utils.GetRedisClient()
		if client == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		var data string
		ttl := inboxRedisCacheTTL
		if inbox == nil {
			data = "NOT_FOUND"
			ttl = inboxNegativeCacheTTL
		} else {
			encoded, err := json.Marshal(inbox)
			if err != nil {
				return
			}
			data = string(encoded)
		}

		// Write failures only cost a future cache miss.
		client.Set(ctx, "inbox:lookup:"+cacheKey, data, ttl)
	}()
}

// Invalidate drops cached entries after an inbox changes.
func (r *InboxResolver) Invalidate(phoneNumberID, session string) {
	keys := make([]string, 0, 2)
	if phoneNumberID != "" {
		keys = append(keys, "phone:"+utils.NormalizeMSISDN(phoneNumberID))
	}
	if session != "" {
		keys = append(keys, "session:"+session)
	}

	for _, key := range keys {
		r.memory.Delete(key)
	}

	go func() {
		client := utils.GetRedisClient()
		if client == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		for _, key := range keys {
			client.Del(ctx, "inbox:lookup:"+key)
		}
	}()

	log.Printf("[INBOX_CACHE] Invalidated %d cache keys", len(keys))
}

func (r *InboxResolver) recordHit() {
	r.statsMu.Lock()
	r.hits++
	r.statsMu.Unlock()
}

func (r *InboxResolver) recordMiss() {
	r.statsMu.Lock()
	r.misses++
	r.statsMu.Unlock()
}

// Stats returns cache hit rate statistics for monitoring.
func (r *InboxResolver) Stats() (hits, misses int64, hitRate float64) {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()

	hits = r.hits
	misses = r.misses
	total := hits + misses
	if total == 0 {
		return hits, misses, 0.0
	}
	return hits, misses, float64(hits) / float64(total) * 100.0
}
