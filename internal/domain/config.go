package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring
	Detection DetectionConfig `json:"detection"`
	Fusion    FusionConfig    `json:"fusion"`
	Explain   ExplainConfig   `json:"explain"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DetectionConfig carries every detector threshold and computation cap.
type DetectionConfig struct {
	// Topology
	HubThreshold          int     `json:"hubThreshold"`
	HubLeafShare          float64 `json:"hubLeafShare"`
	HubLeafMaxOutDegree   int     `json:"hubLeafMaxOutDegree"`
	FunnelThreshold       int     `json:"funnelThreshold"`
	FunnelMaxOutDegree    int     `json:"funnelMaxOutDegree"`
	BetweennessThreshold  float64 `json:"betweennessThreshold"`
	BetweennessExactLimit int     `json:"betweennessExactLimit"`
	BetweennessPivots     int     `json:"betweennessPivots"`
	PageRankDamping       float64 `json:"pagerankDamping"`
	PageRankMaxIterations int     `json:"pagerankMaxIterations"`

	// Layering
	MinHops              int           `json:"minHops"`
	PathWindow           time.Duration `json:"pathWindow"`
	PathSampleCap        int           `json:"pathSampleCap"`
	ChainSampleCap       int           `json:"chainSampleCap"`
	MaxPathCutoff        int           `json:"maxPathCutoff"`
	PathDeadline         time.Duration `json:"pathDeadline"`
	MaxChains            int           `json:"maxChains"`
	MaxCycles            int           `json:"maxCycles"`
	CycleBudget          int           `json:"cycleBudget"`
	StructuringCenter    float64       `json:"structuringCenter"`
	StructuringTolerance float64       `json:"structuringTolerance"`
	StructuringMinCount  int           `json:"structuringMinCount"`
	StructuringWindow    time.Duration `json:"structuringWindow"`

	// Behavior
	DormantGap           time.Duration `json:"dormantGap"`
	DormantFollowUps     int           `json:"dormantFollowUps"`
	SmallAmount          float64       `json:"smallAmount"`
	LargeAmount          float64       `json:"largeAmount"`
	SmallInboundCount    int           `json:"smallInboundCount"`
	PatternWindow        time.Duration `json:"patternWindow"`
	HighThroughputVolume float64       `json:"highThroughputVolume"`
	RapidWindow          time.Duration `json:"rapidWindow"`
	VelocityThreshold    float64       `json:"velocityThreshold"`
	NewAccountDays       float64       `json:"newAccountDays"`

	// SampleSeed seeds the node sampler so runs are reproducible.
	SampleSeed int64 `json:"sampleSeed"`
}

// FusionConfig holds the channel weights and batch settings.
type FusionConfig struct {
	BehavioralWeight float64       `json:"behavioralWeight"`
	NetworkWeight    float64       `json:"networkWeight"`
	LayeringWeight   float64       `json:"layeringWeight"`
	VelocityWeight   float64       `json:"velocityWeight"`
	VelocityWindow   int           `json:"velocityWindow"`
	BatchWorkers     int           `json:"batchWorkers"`
	AssessmentTTL    time.Duration `json:"assessmentTtl"`
}

// ExplainConfig controls explainer selection.
type ExplainConfig struct {
	ModelPath      string `json:"modelPath"`
	TrainOnStartup bool   `json:"trainOnStartup"`
	TopReasons     int    `json:"topReasons"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDetectionConfig returns the detector defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		HubThreshold:          10,
		HubLeafShare:          0.7,
		HubLeafMaxOutDegree:   2,
		FunnelThreshold:       5,
		FunnelMaxOutDegree:    2,
		BetweennessThreshold:  0.1,
		BetweennessExactLimit: 1000,
		BetweennessPivots:     100,
		PageRankDamping:       0.85,
		PageRankMaxIterations: 100,

		MinHops:              3,
		PathWindow:           24 * time.Hour,
		PathSampleCap:        30,
		ChainSampleCap:       50,
		MaxPathCutoff:        6,
		PathDeadline:         2 * time.Second,
		MaxChains:            100,
		MaxCycles:            50,
		CycleBudget:          10000,
		StructuringCenter:    49000,
		StructuringTolerance: 2000,
		StructuringMinCount:  3,
		StructuringWindow:    72 * time.Hour,

		DormantGap:           60 * 24 * time.Hour,
		DormantFollowUps:     5,
		SmallAmount:          10000,
		LargeAmount:          50000,
		SmallInboundCount:    5,
		PatternWindow:        24 * time.Hour,
		HighThroughputVolume: 50000,
		RapidWindow:          time.Hour,
		VelocityThreshold:    5,
		NewAccountDays:       30,

		SampleSeed: 42,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DefaultDetectionConfig(),
		Fusion: FusionConfig{
			BehavioralWeight: 0.4,
			NetworkWeight:    0.3,
			LayeringWeight:   0.2,
			VelocityWeight:   0.1,
			VelocityWindow:   100,
			BatchWorkers:     8,
			AssessmentTTL:    10 * time.Minute,
		},
		Explain: ExplainConfig{
			TopReasons: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueue:         "harrier-rescorers",
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadFromEnv builds a configuration from HARRIER_* environment variables
// on top of the tier defaults.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("HARRIER_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	cfg.Server.Host = valueOrDefault("HARRIER_HOST", cfg.Server.Host)
	cfg.Logging.Level = valueOrDefault("HARRIER_LOG_LEVEL", cfg.Logging.Level)

	cfg.Repository.Driver = valueOrDefault("HARRIER_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = valueOrDefault("HARRIER_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = valueOrDefault("HARRIER_PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresUser = valueOrDefault("HARRIER_PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = valueOrDefault("HARRIER_PG_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = valueOrDefault("HARRIER_PG_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = valueOrDefault("HARRIER_PG_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = valueOrDefault("HARRIER_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = valueOrDefault("HARRIER_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = valueOrDefault("HARRIER_REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.EventBus.Type = valueOrDefault("HARRIER_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = valueOrDefault("HARRIER_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = valueOrDefault("HARRIER_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueue = valueOrDefault("HARRIER_NATS_QUEUE", cfg.EventBus.NATSQueue)

	cfg.Explain.ModelPath = valueOrDefault("HARRIER_MODEL_PATH", cfg.Explain.ModelPath)
	cfg.Explain.TrainOnStartup = parseBoolWithDefault("HARRIER_MODEL_TRAIN", cfg.Explain.TrainOnStartup)
	cfg.Tracing.Enabled = parseBoolWithDefault("HARRIER_TRACING", cfg.Tracing.Enabled)

	var err error
	if cfg.Server.Port, err = parseInt("HARRIER_PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	if cfg.Repository.PostgresPort, err = parseInt("HARRIER_PG_PORT", cfg.Repository.PostgresPort); err != nil {
		return nil, err
	}
	if cfg.Detection.PathSampleCap, err = parseInt("HARRIER_SAMPLE_CAP", cfg.Detection.PathSampleCap); err != nil {
		return nil, err
	}
	if cfg.Fusion.BatchWorkers, err = parseInt("HARRIER_BATCH_WORKERS", cfg.Fusion.BatchWorkers); err != nil {
		return nil, err
	}
	if v := os.Getenv("HARRIER_SAMPLE_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid HARRIER_SAMPLE_SEED: %w", err)
		}
		cfg.Detection.SampleSeed = seed
	}
	if cfg.Detection.PathDeadline, err = parseDuration("HARRIER_PATH_DEADLINE", cfg.Detection.PathDeadline); err != nil {
		return nil, err
	}
	if cfg.Fusion.AssessmentTTL, err = parseDuration("HARRIER_ASSESSMENT_TTL", cfg.Fusion.AssessmentTTL); err != nil {
		return nil, err
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
