package config

import (
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlBouncerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type YamlAPNSConfig struct {
	KeyID           string  `yaml:"key_id"`
	TeamID          string  `yaml:"team_id"`
	BundleID        string  `yaml:"bundle_id"`
	P8KeyContent    string  `yaml:"p8_key"`
	PushesPerSecond float64 `yaml:"pushes_per_second"`
}

type YamlEngineConfig struct {
	MaxMentionGroupSize int `yaml:"max_mention_group_size"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string            `yaml:"project_id"`
	ListenAddr             string            `yaml:"listen_addr"`
	TopicID                string            `yaml:"topic_id"`
	SubscriptionID         string            `yaml:"subscription_id"`
	SubscriptionDLQTopicID string            `yaml:"subscription_dlq_topic_id"`
	DigestTopicID          string            `yaml:"digest_topic_id"`
	UserActivityURL        string            `yaml:"user_activity_url"`
	CorsConfig             YamlCorsConfig    `yaml:"cors"`
	RedisConfig            YamlRedisConfig   `yaml:"redis"`
	BouncerConfig          YamlBouncerConfig `yaml:"bouncer"`
	APNSConfig             YamlAPNSConfig    `yaml:"apns"`
	EngineConfig           YamlEngineConfig  `yaml:"engine"`
	NumPipelineWorkers     int               `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:       baseCfg.ProjectID,
		ListenAddr:      baseCfg.ListenAddr,
		TopicID:         baseCfg.TopicID,
		SubscriptionID:  baseCfg.SubscriptionID,
		DigestTopicID:   baseCfg.DigestTopicID,
		UserActivityURL: baseCfg.UserActivityURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Bouncer: BouncerConfig{
			Enabled: baseCfg.BouncerConfig.Enabled,
			URL:     baseCfg.BouncerConfig.URL,
		},
		APNS: APNSConfig{
			KeyID:           baseCfg.APNSConfig.KeyID,
			TeamID:          baseCfg.APNSConfig.TeamID,
			BundleID:        baseCfg.APNSConfig.BundleID,
			P8KeyContent:    baseCfg.APNSConfig.P8KeyContent,
			PushesPerSecond: baseCfg.APNSConfig.PushesPerSecond,
		},
		Engine: EngineConfig{
			MaxMentionGroupSize: baseCfg.EngineConfig.MaxMentionGroupSize,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
