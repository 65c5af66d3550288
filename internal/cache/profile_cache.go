// Package cache 评测平台用户资料缓存（校验 handle 时减少外部请求）
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultTTL    = 10 * time.Minute
	defaultPrefix = "progress_sync:cf_profile:"
)

// New 配置了 redis 地址时使用 redis，否则使用进程内缓存。
// 返回的 close 函数在退出时调用。
func New(cfg *config.RedisConfig, logger *logrus.Logger) (interfaces.ProfileCache, func() error, error) {
	ttl := cfg.ProfileTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		logger.Info("未配置Redis，使用进程内资料缓存")
		return NewMemoryProfileCache(ttl), func() error { return nil }, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.WithField("addr", cfg.Addr).Info("Redis资料缓存已连接")
	return NewRedisProfileCache(rdb, cfg.KeyPrefix, ttl), rdb.Close, nil
}

// RedisProfileCache 以 JSON 存储资料，key 为前缀 + 小写 handle
type RedisProfileCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProfileCache 创建 redis 缓存
func NewRedisProfileCache(rdb *goredis.Client, prefix string, ttl time.Duration) *RedisProfileCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProfileCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisProfileCache) key(handle string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(handle))
}

// Get 未命中返回 (nil, false, nil)
func (c *RedisProfileCache) Get(ctx context.Context, handle string) (*model.CFUser, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(handle)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var user model.CFUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, false, fmt.Errorf("解析缓存资料失败: %w", err)
	}
	return &user, true, nil
}

// Set 写入并设置过期时间
func (c *RedisProfileCache) Set(ctx context.Context, handle string, user *model.CFUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(handle), raw, c.ttl).Err()
}

type memoryEntry struct {
	user      model.CFUser
	expiresAt time.Time
}

// MemoryProfileCache 进程内 TTL 缓存
type MemoryProfileCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryProfileCache 创建进程内缓存
func NewMemoryProfileCache(ttl time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryProfileCache) Get(_ context.Context, handle string) (*model.CFUser, bool, error) {
	key := strings.ToLower(strings.TrimSpace(handle))
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	user := e.user
	return &user, true, nil
}

func (c *MemoryProfileCache) Set(_ context.Context, handle string, user *model.CFUser) error {
	key := strings.ToLower(strings.TrimSpace(handle))
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// 顺带清理过期项，避免无限增长
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{user: *user, expiresAt: now.Add(c.ttl)}
	return nil
}
