// --- File: maskservice/service.go ---
package maskservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/soraiyu/KyuubiMask/internal/api"
	"github.com/soraiyu/KyuubiMask/internal/debuglog"
	"github.com/soraiyu/KyuubiMask/internal/pipeline"
	"github.com/soraiyu/KyuubiMask/maskservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.Envelope]
	logger          *slog.Logger
}

// New assembles the service: the event pipeline feeding the masking engine,
// the preferences API and the metrics endpoint. debugLog may be nil, in which
// case the debug routes are not registered.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	handler pipeline.EventHandler,
	prefs api.PreferencesService,
	debugLog *debuglog.Log,
	gatherer prometheus.Gatherer,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(handler, logger.With("component", "EventProcessor"))

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService[pipeline.Envelope](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.EventTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	var debug api.DebugLog
	if debugLog != nil {
		debug = debugLog
	}
	prefsAPI := api.NewPreferencesAPI(prefs, debug, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(fn)))
	}

	// OPTIONS
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	handle("GET /api/v1/preferences", prefsAPI.GetPreferences)
	handle("PUT /api/v1/preferences", prefsAPI.PutPreferences)
	handle("GET /api/v1/preferences/vibration-patterns", prefsAPI.VibrationPatterns)
	handle("PUT /api/v1/preferences/apps/{source}", prefsAPI.AddMaskedApp)
	handle("DELETE /api/v1/preferences/apps/{source}", prefsAPI.RemoveMaskedApp)
	handle("POST /api/v1/toggle", prefsAPI.Toggle)

	if debug != nil {
		handle("GET /api/v1/debug/log", prefsAPI.GetDebugLog)
		handle("DELETE /api/v1/debug/log", prefsAPI.ClearDebugLog)
	}

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
