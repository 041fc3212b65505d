package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// New creates the cache named by cfg.Type: an in-process LRU ("memory") or
// Redis, optionally fronted by a local LRU.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func assessmentKey(accountID string) string {
	return "assessment:" + accountID
}

// getAssessment decodes the assessment stored under the account's key.
// A miss returns nil, nil.
func getAssessment(ctx context.Context, c domain.Cache, accountID string) (*domain.RiskAssessment, error) {
	data, err := c.Get(ctx, assessmentKey(accountID))
	if err != nil || data == nil {
		return nil, err
	}

	var a domain.RiskAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode cached assessment: %w", err)
	}
	return &a, nil
}

func setAssessment(ctx context.Context, c domain.Cache, a *domain.RiskAssessment, ttl time.Duration) error {
	if a == nil || a.AccountID == "" {
		return fmt.Errorf("assessment without account id")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}
	return c.Set(ctx, assessmentKey(a.AccountID), data, ttl)
}

// TwoPhaseCache serves reads from a short-lived local LRU (L1) and falls
// back to Redis (L2), which every replica shares. L1 entries live at most
// l1TTL so a rescore on another replica is picked up quickly.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetAssessment implements domain.Cache.
func (c *TwoPhaseCache) GetAssessment(ctx context.Context, accountID string) (*domain.RiskAssessment, error) {
	return getAssessment(ctx, c, accountID)
}

// SetAssessment implements domain.Cache.
func (c *TwoPhaseCache) SetAssessment(ctx context.Context, a *domain.RiskAssessment, ttl time.Duration) error {
	return setAssessment(ctx, c, a, ttl)
}

// InvalidateAssessments drops the accounts from both levels. Other replicas'
// L1 copies age out within l1TTL.
func (c *TwoPhaseCache) InvalidateAssessments(ctx context.Context, accountIDs []string) error {
	if err := c.local.InvalidateAssessments(ctx, accountIDs); err != nil {
		return err
	}
	return c.remote.InvalidateAssessments(ctx, accountIDs)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
