// --- File: maskservice/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/soraiyu/KyuubiMask/internal/engine"
	"github.com/soraiyu/KyuubiMask/internal/guard"
	"github.com/soraiyu/KyuubiMask/internal/strategy"
)

const (
	DefaultSelfSource      = "com.rtneg.kyuubimask"
	DefaultProfileID       = "default"
	DefaultPreferencesFile = "kyuubimask-preferences.yaml"
	DefaultCacheTTL        = 10 * time.Minute
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// CacheTTL applies to cached preferences.
	CacheTTL time.Duration
}

type MaskingConfig struct {
	// SelfSource is never masked.
	SelfSource     string
	RegistryMode   strategy.Mode
	GraceDelay     time.Duration
	GuardLease     time.Duration
	Locale         string
	AppCatalogFile string
	DebugLog       bool
}

type PreferencesBackend string

const (
	BackendFile      PreferencesBackend = "file"
	BackendFirestore PreferencesBackend = "firestore"
)

type PreferencesConfig struct {
	Backend PreferencesBackend
	File    string
	// RefreshInterval reloads the snapshot from the store; zero disables it.
	RefreshInterval time.Duration
}

type SinkType string

const (
	SinkFCM SinkType = "fcm"
	SinkLog SinkType = "log"
)

type SinkConfig struct {
	Type        SinkType
	DeviceToken string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	ProfileID              string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig  middleware.CorsConfig
	Redis       RedisConfig
	Masking     MaskingConfig
	Preferences PreferencesConfig
	Sink        SinkConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
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
	if val := os.Getenv("PROFILE_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROFILE_ID", "source", "env")
		cfg.ProfileID = val
	}

	// Redis Overrides
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
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Masking Overrides
	if val := os.Getenv("SELF_SOURCE"); val != "" {
		logger.Debug("Overriding config value", "key", "SELF_SOURCE", "source", "env")
		cfg.Masking.SelfSource = val
	}
	if val := os.Getenv("REGISTRY_MODE"); val != "" {
		mode, err := strategy.ParseMode(val)
		if err != nil {
			return nil, fmt.Errorf("invalid REGISTRY_MODE: %w", err)
		}
		logger.Debug("Overriding config value", "key", "REGISTRY_MODE", "source", "env")
		cfg.Masking.RegistryMode = mode
	}
	if val := os.Getenv("GRACE_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			logger.Debug("Overriding config value", "key", "GRACE_DELAY_MS", "source", "env")
			cfg.Masking.GraceDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("LOCALE"); val != "" {
		cfg.Masking.Locale = val
	}
	if val := os.Getenv("DEBUG_LOG"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Masking.DebugLog = enabled
	}

	// Preferences Overrides
	if val := os.Getenv("PREFERENCES_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "PREFERENCES_BACKEND", "source", "env")
		cfg.Preferences.Backend = PreferencesBackend(strings.ToLower(val))
	}
	if val := os.Getenv("PREFERENCES_FILE"); val != "" {
		cfg.Preferences.File = val
	}

	// Sink Overrides
	if val := os.Getenv("SINK"); val != "" {
		logger.Debug("Overriding config value", "key", "SINK", "source", "env")
		cfg.Sink.Type = SinkType(strings.ToLower(val))
	}
	if val := os.Getenv("DEVICE_TOKEN"); val != "" {
		logger.Debug("Overriding config value", "key", "DEVICE_TOKEN", "source", "env")
		cfg.Sink.DeviceToken = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}

	switch cfg.Sink.Type {
	case "":
		cfg.Sink.Type = SinkLog
	case SinkLog:
	case SinkFCM:
		if cfg.Sink.DeviceToken == "" {
			return nil, fmt.Errorf("device_token is required for the fcm sink (set via YAML or DEVICE_TOKEN env var)")
		}
	default:
		return nil, fmt.Errorf("unknown sink %q (want fcm or log)", cfg.Sink.Type)
	}

	switch cfg.Preferences.Backend {
	case "":
		cfg.Preferences.Backend = BackendFile
	case BackendFile, BackendFirestore:
	default:
		return nil, fmt.Errorf("unknown preferences backend %q (want file or firestore)", cfg.Preferences.Backend)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.ProfileID == "" {
		cfg.ProfileID = DefaultProfileID
	}
	if cfg.Masking.SelfSource == "" {
		cfg.Masking.SelfSource = DefaultSelfSource
	}
	if cfg.Masking.GraceDelay <= 0 {
		cfg.Masking.GraceDelay = engine.DefaultGraceDelay
	}
	if cfg.Masking.GuardLease <= 0 {
		cfg.Masking.GuardLease = guard.DefaultLease
	}
	if cfg.Preferences.File == "" {
		cfg.Preferences.File = DefaultPreferencesFile
	}
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = DefaultCacheTTL
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
