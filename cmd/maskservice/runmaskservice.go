// --- File: cmd/maskservice/runmaskservice.go ---
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/soraiyu/KyuubiMask/internal/applookup"
	"github.com/soraiyu/KyuubiMask/internal/debuglog"
	"github.com/soraiyu/KyuubiMask/internal/engine"
	"github.com/soraiyu/KyuubiMask/internal/guard"
	"github.com/soraiyu/KyuubiMask/internal/platform/fcm"
	"github.com/soraiyu/KyuubiMask/internal/platform/logsink"
	"github.com/soraiyu/KyuubiMask/internal/preferences"
	"github.com/soraiyu/KyuubiMask/internal/storage/cache"
	fsStore "github.com/soraiyu/KyuubiMask/internal/storage/firestore"
	"github.com/soraiyu/KyuubiMask/internal/strategy"
	"github.com/soraiyu/KyuubiMask/maskservice"
	"github.com/soraiyu/KyuubiMask/maskservice/config"
	"github.com/soraiyu/KyuubiMask/pkg/mask"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

// sink is what the engine needs from a delivery backend.
type sink interface {
	mask.Sink
	mask.PermissionGate
}

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "kyuubimask", "instance_id", uuid.NewString())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis client...", "addr", cfg.Redis.Addr)
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// --- Preferences ---
	store, closeStore, err := newPreferencesStore(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("Preferences store failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	prefs := preferences.NewProvider(store, logger)
	if err := prefs.Load(ctx); err != nil {
		logger.Error("Failed to load preferences", "err", err)
		os.Exit(1)
	}
	prefs.StartRefresh(ctx, cfg.Preferences.RefreshInterval)
	defer prefs.Stop()

	// --- Guard ---
	var lockClient guard.LockClient
	if redisClient != nil {
		lockClient = redisClient
	}
	inFlight, stopGuard := newInFlightGuard(ctx, cfg, lockClient, logger)
	defer stopGuard()

	// --- App Catalog ---
	catalog, err := applookup.LoadCatalog(cfg.Masking.AppCatalogFile)
	if err != nil {
		logger.Error("Failed to load app catalog", "err", err, "path", cfg.Masking.AppCatalogFile)
		os.Exit(1)
	}

	// --- Sink ---
	out, err := newSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("Sink initialization failed", "err", err)
		os.Exit(1)
	}

	// --- Engine ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var debugLog *debuglog.Log
	if cfg.Masking.DebugLog {
		debugLog = debuglog.New(debuglog.DefaultCapacity)
	}

	maskEngine, err := engine.New(engine.Deps{
		SelfSource:  cfg.Masking.SelfSource,
		Registry:    strategy.NewDefaultRegistry(cfg.Masking.RegistryMode),
		Guard:       inFlight,
		Config:      prefs,
		Apps:        catalog,
		Sink:        out,
		Permissions: out,
		Metrics:     engine.NewMetrics(reg),
		DebugLog:    debugLog,
		GraceDelay:  cfg.Masking.GraceDelay,
		Placeholder: strategy.Placeholder(cfg.Masking.Locale),
	}, logger)
	if err != nil {
		logger.Error("Engine creation failed", "err", err)
		os.Exit(1)
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT discovery failed", "err", err, "identity_url", identityURL)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := maskservice.New(
		cfg,
		consumer,
		maskEngine,
		prefs,
		debugLog,
		reg,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "listen_addr", cfg.ListenAddr, "profile_id", cfg.ProfileID)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
	}
}

// newPreferencesStore builds the configured backend. The Firestore store is
// wrapped in the Redis read-aside cache when Redis is enabled.
func newPreferencesStore(ctx context.Context, cfg *config.Config, redisClient *cache.RedisClient, logger *slog.Logger) (preferences.Store, func(), error) {
	switch cfg.Preferences.Backend {
	case config.BackendFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		closeFn := func() { _ = fsClient.Close() }

		var store preferences.Store = fsStore.NewPreferencesStore(fsClient, cfg.ProfileID)
		logger.Info("Preferences store initialized", "type", "firestore", "profile_id", cfg.ProfileID)
		if redisClient != nil {
			store = cache.NewCachedPreferencesStore(store, redisClient, cfg.ProfileID, cfg.Redis.CacheTTL)
			logger.Info("Preferences store upgraded", "type", "redis_cached_firestore")
		}
		return store, closeFn, nil

	default:
		logger.Info("Preferences store initialized", "type", "file", "path", cfg.Preferences.File)
		return preferences.NewFileStore(cfg.Preferences.File), func() {}, nil
	}
}

// newInFlightGuard shares the in-flight set through Redis when a lock client
// is available, and keeps it in memory otherwise.
func newInFlightGuard(ctx context.Context, cfg *config.Config, lockClient guard.LockClient, logger *slog.Logger) (guard.Guard, func()) {
	if lockClient != nil {
		logger.Info("In-flight guard initialized", "type", "redis")
		return guard.NewRedisGuard(lockClient, cfg.ProfileID, cfg.Masking.GuardLease), func() {}
	}

	memGuard := guard.NewMemoryGuardWithConfig(cfg.Masking.GuardLease, cfg.Masking.GuardLease)
	memGuard.StartCleanup(ctx)
	logger.Info("In-flight guard initialized", "type", "memory")
	return memGuard, memGuard.Stop
}

func newSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink, error) {
	if cfg.Sink.Type != config.SinkFCM {
		logger.Info("Sink initialized", "type", "log")
		return logsink.New(logger), nil
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	logger.Info("Sink initialized", "type", "fcm")
	return fcm.NewSink(fcmMessaging, cfg.Sink.DeviceToken, logger), nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		// Removed events must not overtake the posted event they follow.
		EnableMessageOrdering: true,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
