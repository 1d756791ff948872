package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
)

// ConversationLocker serializes pipeline runs per conversation so two
// webhook deliveries for the same thread never interleave state writes.
type ConversationLocker interface {
	// Acquire takes the conversation lock, blocking up to wait. The
	// returned release func is safe to call once; it only deletes the
	// lock if this holder still owns it.
	Acquire(ctx context.Context, conversationID uuid.UUID, ttl, wait time.Duration) (release func(), err error)
	Close() error
}

// ErrLockNotAcquired is returned when the lock stays held past the wait
// deadline.
var ErrLockNotAcquired = fmt.Errorf("conversation lock not acquired")

type conversationLocker struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewConversationLocker(log *logger.Logger) (ConversationLocker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &conversationLocker{
		log: log.With("service", "ConversationLocker"),
		rdb: rdb,
	}, nil
}

// releaseScript deletes the key only when the stored token matches, so a
// lock that expired and was re-acquired by someone else is never removed.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func lockKey(conversationID uuid.UUID) string {
	return "lock:conversation:" + conversationID.String()
}

func (l *conversationLocker) Acquire(ctx context.Context, conversationID uuid.UUID, ttl, wait time.Duration) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("conversation locker not initialized")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	key := lockKey(conversationID)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			break
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Warn("lock release failed", "key", key, "error", err.Error())
		}
	}
	return release, nil
}

func (l *conversationLocker) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
