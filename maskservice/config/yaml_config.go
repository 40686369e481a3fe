// --- File: maskservice/config/yaml_config.go ---
package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/soraiyu/KyuubiMask/internal/strategy"
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
	CacheTTL string `yaml:"cache_ttl"`
}

type YamlMaskingConfig struct {
	SelfSource     string `yaml:"self_source"`
	RegistryMode   string `yaml:"registry_mode"`
	GraceDelayMs   int    `yaml:"grace_delay_ms"`
	GuardLease     string `yaml:"guard_lease"`
	Locale         string `yaml:"locale"`
	AppCatalogFile string `yaml:"app_catalog_file"`
	DebugLog       bool   `yaml:"debug_log"`
}

type YamlPreferencesConfig struct {
	Backend         string `yaml:"backend"`
	File            string `yaml:"file"`
	RefreshInterval string `yaml:"refresh_interval"`
}

type YamlSinkConfig struct {
	Type        string `yaml:"type"`
	DeviceToken string `yaml:"device_token"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                `yaml:"project_id"`
	ListenAddr             string                `yaml:"listen_addr"`
	ProfileID              string                `yaml:"profile_id"`
	TopicID                string                `yaml:"topic_id"`
	SubscriptionID         string                `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig        `yaml:"cors"`
	RedisConfig            YamlRedisConfig       `yaml:"redis"`
	Masking                YamlMaskingConfig     `yaml:"masking"`
	Preferences            YamlPreferencesConfig `yaml:"preferences"`
	Sink                   YamlSinkConfig        `yaml:"sink"`
	NumPipelineWorkers     int                   `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// Unparseable durations and modes fall back to defaults with a warning;
// UpdateConfigWithEnvOverrides does the final validation.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	mode, err := strategy.ParseMode(baseCfg.Masking.RegistryMode)
	if err != nil {
		logger.Warn("Invalid registry_mode in YAML, using catch_all", "value", baseCfg.Masking.RegistryMode)
		mode = strategy.ModeCatchAll
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		ProfileID:      baseCfg.ProfileID,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			CacheTTL: parseDuration(baseCfg.RedisConfig.CacheTTL, "redis.cache_ttl", logger),
		},
		Masking: MaskingConfig{
			SelfSource:     baseCfg.Masking.SelfSource,
			RegistryMode:   mode,
			GraceDelay:     time.Duration(baseCfg.Masking.GraceDelayMs) * time.Millisecond,
			GuardLease:     parseDuration(baseCfg.Masking.GuardLease, "masking.guard_lease", logger),
			Locale:         baseCfg.Masking.Locale,
			AppCatalogFile: baseCfg.Masking.AppCatalogFile,
			DebugLog:       baseCfg.Masking.DebugLog,
		},
		Preferences: PreferencesConfig{
			Backend:         PreferencesBackend(baseCfg.Preferences.Backend),
			File:            baseCfg.Preferences.File,
			RefreshInterval: parseDuration(baseCfg.Preferences.RefreshInterval, "preferences.refresh_interval", logger),
		},
		Sink: SinkConfig{
			Type:        SinkType(baseCfg.Sink.Type),
			DeviceToken: baseCfg.Sink.DeviceToken,
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
		"registry_mode", cfg.Masking.RegistryMode.String(),
	)

	return cfg, nil
}

func parseDuration(raw, key string, logger *slog.Logger) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Invalid duration in YAML, using default", "key", key, "value", raw)
		return 0
	}
	return d
}
