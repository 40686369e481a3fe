package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/soraiyu/KyuubiMask/internal/engine"
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// EventHandler is the subset of *engine.Engine the processor drives.
type EventHandler interface {
	OnPosted(ctx context.Context, ev mask.NotificationEvent) (engine.Decision, error)
	OnRemoved(ctx context.Context, ev mask.NotificationEvent)
}

// NewProcessor routes envelopes to the engine. The only error it returns is a
// failed cancel, which is retryable: the original is still visible.
func NewProcessor(
	handler EventHandler,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[Envelope] {

	return func(ctx context.Context, original messagepipeline.Message, env *Envelope) error {
		procLogger := logger.With(
			"source", env.Event.Source,
			"pubsub_msg_id", original.ID,
		)

		switch env.Kind {
		case KindRemoved:
			handler.OnRemoved(ctx, env.Event)
			return nil

		default:
			decision, err := handler.OnPosted(ctx, env.Event)
			if err != nil {
				procLogger.Error("Masking failed", "err", err)
				return err // Retryable
			}
			procLogger.Debug("Event processed",
				"outcome", string(decision.Outcome),
				"reason", string(decision.Reason),
				"posted", decision.Posted,
			)
			return nil
		}
	}
}
