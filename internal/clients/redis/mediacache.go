package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// MediaCache stores fetched media bytes keyed by source URL, so the same
// story frame or customer photo is downloaded from the CDN at most once
// per TTL window.
type MediaCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, data []byte) error
	Close() error
}

type mediaCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewMediaCache(log *logger.Logger) (MediaCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttlSec := utils.GetEnvAsInt("MEDIA_CACHE_TTL_SECONDS", 3600, log)

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

	return &mediaCache{
		log: log.With("service", "MediaCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSec) * time.Second,
	}, nil
}

func mediaKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "media:" + hex.EncodeToString(sum[:16])
}

func (c *mediaCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, fmt.Errorf("media cache not initialized")
	}
	data, err := c.rdb.Get(ctx, mediaKey(url)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *mediaCache) Set(ctx context.Context, url string, data []byte) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("media cache not initialized")
	}
	return c.rdb.Set(ctx, mediaKey(url), data, c.ttl).Err()
}

func (c *mediaCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
