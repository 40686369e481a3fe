// Package engine contains the masking engine: it receives posted and removed
// events, decides whether to mask, and drives the sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soraiyu/KyuubiMask/internal/debuglog"
	"github.com/soraiyu/KyuubiMask/internal/guard"
	"github.com/soraiyu/KyuubiMask/internal/identity"
	"github.com/soraiyu/KyuubiMask/internal/strategy"
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// DefaultGraceDelay is how long an identity stays in flight after emit, so
// the platform's re-delivery of the cancelled original is ignored.
const DefaultGraceDelay = 500 * time.Millisecond

// Deps is everything the engine talks to. It is built once at startup.
type Deps struct {
	// SelfSource is this process's own source identifier.
	SelfSource  string
	Registry    *strategy.Registry
	Guard       guard.Guard
	Config      mask.ConfigProvider
	Apps        mask.AppLookup
	Sink        mask.Sink
	Permissions mask.PermissionGate

	// Optional.
	Metrics     *Metrics
	DebugLog    *debuglog.Log
	GraceDelay  time.Duration
	Placeholder string
}

// Engine is safe for concurrent use.
type Engine struct {
	deps   Deps
	logger *slog.Logger
}

// New validates deps and returns an engine.
func New(deps Deps, logger *slog.Logger) (*Engine, error) {
	switch {
	case deps.SelfSource == "":
		return nil, errors.New("engine: self source is required")
	case deps.Registry == nil:
		return nil, errors.New("engine: registry is required")
	case deps.Guard == nil:
		return nil, errors.New("engine: guard is required")
	case deps.Config == nil:
		return nil, errors.New("engine: config provider is required")
	case deps.Apps == nil:
		return nil, errors.New("engine: app lookup is required")
	case deps.Sink == nil:
		return nil, errors.New("engine: sink is required")
	case deps.Permissions == nil:
		return nil, errors.New("engine: permission gate is required")
	}
	if deps.GraceDelay <= 0 {
		deps.GraceDelay = DefaultGraceDelay
	}
	if deps.Placeholder == "" {
		deps.Placeholder = strategy.Placeholder("")
	}

	return &Engine{
		deps:   deps,
		logger: logger.With("component", "MaskingEngine"),
	}, nil
}

// OnPosted runs one posted event through the masking state machine.
//
// The only error returned is ErrCancelFailed. Every other failure degrades to
// "do not mask this one" or, once the original is hidden, to "hidden without
// replacement".
func (e *Engine) OnPosted(ctx context.Context, ev mask.NotificationEvent) (Decision, error) {
	d, err := e.onPosted(ctx, ev)
	e.deps.Metrics.observe(d)
	return d, err
}

func (e *Engine) onPosted(ctx context.Context, ev mask.NotificationEvent) (Decision, error) {
	// 1. Our own notifications never loop back in.
	if ev.Source == e.deps.SelfSource {
		return passed(0, ReasonSelf), nil
	}

	// 2. Replacements re-delivered as updates.
	if ev.IsMarked() {
		return passed(0, ReasonAlreadyMasked), nil
	}

	id := identity.Derive(ev.Source, ev.NativeID, ev.Tag)
	logger := e.logger.With("source", ev.Source, "identity", id.String())

	// 3. Atomic check-and-insert, before anything visible happens.
	acquired, err := e.deps.Guard.Acquire(ctx, id)
	if err != nil {
		// The window is a coarse de-duplication aid; masking without it is
		// preferable to leaving the original visible.
		logger.Warn("In-flight guard unavailable, continuing without it", "err", err)
		acquired = true
	} else if !acquired {
		logger.Debug("Event already in flight")
		return passed(id, ReasonInFlight), nil
	}

	// 4. User configuration.
	if !e.deps.Config.IsMaskingEnabled() {
		e.release(ctx, logger, id)
		return passed(id, ReasonMaskingDisabled), nil
	}
	if !e.deps.Config.IsSourceEnabled(ev.Source) {
		e.release(ctx, logger, id)
		return passed(id, ReasonSourceDisabled), nil
	}

	// 5. Strategy.
	s, ok := e.deps.Registry.Resolve(ev.Source)
	if !ok {
		e.release(ctx, logger, id)
		logger.Debug("No strategy for source")
		return passed(id, ReasonNoStrategy), nil
	}

	// 6. Rewrite.
	appName, err := e.deps.Apps.DisplayNameFor(ev.Source)
	if err != nil || appName == "" {
		logger.Debug("App name lookup failed, using fallback label", "err", err)
		appName = mask.FallbackAppName
	}
	res := s.Apply(strategy.NewInput(ev, id), appName, e.settings(ev.Source))
	if res.Kind != strategy.KindMasked {
		e.release(ctx, logger, id)
		logger.Debug("Strategy declined", "strategy", s.Name, "result", res.Kind.String())
		return passed(id, ReasonSuppressed), nil
	}

	// 7. Emit: cancel first, and only then post.
	if err := e.deps.Sink.Cancel(ctx, ev.NativeKey()); err != nil {
		e.release(ctx, logger, id)
		logger.Error("Failed to cancel original notification", "err", err)
		e.deps.DebugLog.Add("ERROR cancel", ev.Source)
		return passed(id, ReasonCancelFailed), fmt.Errorf("%w: %s: %w", ErrCancelFailed, id, err)
	}
	e.deps.DebugLog.Add("Cancelled", ev.Source)

	d := Decision{Outcome: Masked, Identity: id}
	switch {
	case !e.deps.Permissions.CanPostNotifications():
		// Intentional: the original stays hidden and nothing replaces it.
		d.Reason = ReasonPermissionDenied
		logger.Warn("Post permission not granted, masked notification not posted")
		e.deps.DebugLog.Add("ERROR post permission", ev.Source)
	default:
		if err := e.deps.Sink.Post(ctx, res.Spec.Tag, res.Spec.ID, res.Spec); err != nil {
			d.Reason = ReasonPostFailed
			logger.Warn("Failed to post masked notification", "err", err)
			e.deps.DebugLog.Add("ERROR post", ev.Source)
		} else {
			d.Posted = true
			e.deps.DebugLog.Add("Masked", ev.Source)
		}
	}

	// 8. Keep the identity in flight for the grace delay.
	if acquired {
		if err := e.deps.Guard.ReleaseAfter(context.WithoutCancel(ctx), id, e.deps.GraceDelay); err != nil {
			logger.Warn("Failed to schedule in-flight release", "err", err)
		}
	}

	logger.Info("Notification masked", "strategy", s.Name, "posted", d.Posted)
	return d, nil
}

// OnRemoved does bookkeeping only. A removed replacement is never reprocessed.
func (e *Engine) OnRemoved(_ context.Context, ev mask.NotificationEvent) {
	kind := "original"
	if ev.IsMarked() || ev.Source == e.deps.SelfSource {
		kind = "masked"
	}
	e.deps.Metrics.removed(kind)
	e.deps.DebugLog.Add("Removed "+kind, ev.Source)
	e.logger.Debug("Notification removed", "source", ev.Source, "kind", kind)
}

func (e *Engine) settings(source string) strategy.Settings {
	cfg := e.deps.Config
	return strategy.Settings{
		SourceEnabled:    cfg.IsSourceEnabled(source),
		Sound:            cfg.PlaySound(),
		Vibrate:          cfg.PlayVibration(),
		VibrationPattern: cfg.VibrationPattern(),
		Placeholder:      e.deps.Placeholder,
	}
}

func (e *Engine) release(ctx context.Context, logger *slog.Logger, id identity.Identity) {
	if err := e.deps.Guard.Release(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn("Failed to release in-flight identity", "err", err)
	}
}
