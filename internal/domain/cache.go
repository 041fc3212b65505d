package domain

import (
	"context"
	"time"
)

// Cache holds recent assessments so explanations and reports are derived
// from the same component outputs as the score they describe.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// GetAssessment returns nil, nil if the account has no cached assessment.
	GetAssessment(ctx context.Context, accountID string) (*RiskAssessment, error)
	SetAssessment(ctx context.Context, assessment *RiskAssessment, ttl time.Duration) error

	// InvalidateAssessments drops cached assessments for accounts whose
	// transactions just changed.
	InvalidateAssessments(ctx context.Context, accountIDs []string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// In-process LRU, also the L1 of the two-phase cache.
	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// EnableTwoPhase fronts Redis with the local LRU.
	EnableTwoPhase bool
}
