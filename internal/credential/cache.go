package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCache keeps the credential in process memory.
// Expired credentials read as absent.
type MemoryCache struct {
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time

	mu   sync.RWMutex
	cred Credential
}

func (m *MemoryCache) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryCache) Get(_ context.Context) (Credential, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.cred.Valid(m.now()) {
		return Credential{}, false, nil
	}
	return m.cred, true, nil
}

func (m *MemoryCache) Set(_ context.Context, c Credential) error {
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()
	return nil
}

// SetFor stores value with an expiry ttl from now.
func (m *MemoryCache) SetFor(value string, ttl time.Duration) {
	_ = m.Set(context.Background(), Credential{Value: value, ExpiresAt: m.now().Add(ttl)})
}

// DefaultRedisKey is where RedisCache stores the credential unless configured otherwise.
const DefaultRedisKey = "lunarcollector:credential"

// RedisCache shares one credential between processes through a Redis key.
// The key's TTL follows the credential's expiry.
type RedisCache struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

func NewRedisCache(client redis.UniversalClient, key string) *RedisCache {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCache{client: client, key: key, now: time.Now}
}

func (r *RedisCache) Get(ctx context.Context) (Credential, bool, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("get credential from redis: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return Credential{}, false, fmt.Errorf("decode cached credential: %w", err)
	}
	if !c.Valid(r.now()) {
		return Credential{}, false, nil
	}
	return c, true, nil
}

func (r *RedisCache) Set(ctx context.Context, c Credential) error {
	ttl := c.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("credential already expired at %s", c.ExpiresAt.Format(time.RFC3339))
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := r.client.Set(ctx, r.key, b, ttl).Err(); err != nil {
		return fmt.Errorf("set credential in redis: %w", err)
	}
	return nil
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
