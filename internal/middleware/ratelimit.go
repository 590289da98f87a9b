package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterStore counts hits per key within a fixed window. The in-process store
// only fits single-instance deployments; the Redis store is shared by all replicas.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type visitor struct {
	count   int64
	resetAt time.Time
}

type MemoryCounterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

func NewMemoryCounterStore(cleanupEvery time.Duration) *MemoryCounterStore {
	s := &MemoryCounterStore{
		visitors: make(map[string]*visitor),
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()

	return s
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, ok := s.visitors[key]
	if !ok || !now.Before(v.resetAt) {
		v = &visitor{resetAt: now.Add(window)}
		s.visitors[key] = v
	}
	v.count++
	return v.count, nil
}

func (s *MemoryCounterStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, v := range s.visitors {
		if !now.Before(v.resetAt) {
			delete(s.visitors, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryCounterStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

type RedisCounterStore struct {
	redis  *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{redis: client, prefix: "ratelimit:"}
}

// Incr bumps the counter. The key is created with its TTL in the same
// transaction, so a counter can never outlive its window.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.prefix + key
	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val(), nil
}

type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
	logger *zap.Logger
}

func NewRateLimiter(store CounterStore, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{store: store, limit: limit, window: window, logger: logger}
}

// clientKey prefers the authenticated user and falls back to the client address.
func clientKey(r *http.Request) string {
	if id := GetUserID(r.Context()); id != uuid.Nil {
		return "user:" + id.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := rl.store.Incr(r.Context(), clientKey(r), rl.window)
		if err != nil {
			// Fail open: a counter outage must not take the API down.
			rl.logger.Warn("rate limiter unavailable", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
