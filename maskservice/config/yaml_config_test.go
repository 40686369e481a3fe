// --- File: maskservice/config/yaml_config_test.go ---
package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/soraiyu/KyuubiMask/internal/strategy"
	"github.com/soraiyu/KyuubiMask/maskservice/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		raw := `
project_id: yaml-project
listen_addr: ":9000"
profile_id: pixel-8
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
redis:
  addr: localhost:6379
  enabled: true
  cache_ttl: 2m
masking:
  self_source: com.example.self
  registry_mode: allow_list
  grace_delay_ms: 800
  guard_lease: 5s
  locale: ja
  debug_log: true
preferences:
  backend: firestore
  refresh_interval: 30s
sink:
  type: fcm
  device_token: yaml-token
`
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(raw), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "pixel-8", cfg.ProfileID)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)

		assert.Equal(t, "com.example.self", cfg.Masking.SelfSource)
		assert.Equal(t, strategy.ModeAllowList, cfg.Masking.RegistryMode)
		assert.Equal(t, 800*time.Millisecond, cfg.Masking.GraceDelay)
		assert.Equal(t, 5*time.Second, cfg.Masking.GuardLease)
		assert.Equal(t, "ja", cfg.Masking.Locale)
		assert.True(t, cfg.Masking.DebugLog)

		assert.Equal(t, config.BackendFirestore, cfg.Preferences.Backend)
		assert.Equal(t, 30*time.Second, cfg.Preferences.RefreshInterval)
		assert.Equal(t, config.SinkFCM, cfg.Sink.Type)
		assert.Equal(t, "yaml-token", cfg.Sink.DeviceToken)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Equal(t, strategy.ModeCatchAll, cfg.Masking.RegistryMode)
		assert.Zero(t, cfg.Masking.GraceDelay)
	})

	t.Run("Success - Bad values fall back", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID: "p",
			Masking:   config.YamlMaskingConfig{RegistryMode: "nonsense", GuardLease: "forever"},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, strategy.ModeCatchAll, cfg.Masking.RegistryMode)
		assert.Zero(t, cfg.Masking.GuardLease)
	})
}
