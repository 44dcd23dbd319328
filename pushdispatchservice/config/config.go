package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// defaultMaxMentionGroupSize is the largest mentioned-group size that still
// reactivates a long-term-idle user when no explicit value is configured.
const defaultMaxMentionGroupSize = 12

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// BouncerConfig selects the relay delivery backend. When disabled, the
// service talks to APNs and FCM directly.
type BouncerConfig struct {
	Enabled bool
	URL     string
}

type APNSConfig struct {
	KeyID           string
	TeamID          string
	BundleID        string
	P8KeyContent    string
	PushesPerSecond float64
}

type EngineConfig struct {
	MaxMentionGroupSize int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	// DigestTopicID is where per-conversation email digests are handed off.
	DigestTopicID string
	// UserActivityURL is the base URL of the reactivation service.
	UserActivityURL string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Bouncer    BouncerConfig
	APNS       APNSConfig
	Engine     EngineConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("DIGEST_TOPIC_ID"); val != "" {
		cfg.DigestTopicID = val
	}
	if val := os.Getenv("USER_ACTIVITY_URL"); val != "" {
		cfg.UserActivityURL = val
	}

	// Bouncer overrides: setting a URL flips the backend to relay mode.
	if val := os.Getenv("BOUNCER_URL"); val != "" {
		cfg.Bouncer.URL = val
		cfg.Bouncer.Enabled = true
	}

	// Redis overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}

	// APNs credential overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		cfg.APNS.P8KeyContent = val
	}

	if val := os.Getenv("MAX_MENTION_GROUP_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.Engine.MaxMentionGroupSize = n
		}
	}

	// Final validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.Bouncer.Enabled && cfg.Bouncer.URL == "" {
		return nil, fmt.Errorf("bouncer is enabled but has no URL (set via YAML or BOUNCER_URL env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Engine.MaxMentionGroupSize <= 0 {
		cfg.Engine.MaxMentionGroupSize = defaultMaxMentionGroupSize
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
