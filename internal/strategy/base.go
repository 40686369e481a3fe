package strategy

import (
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

type baseOptions struct {
	body func(settings Settings) string
}

// Option customises the base rewrite for a per-source variant.
type Option func(*baseOptions)

// WithBody replaces the localized placeholder with a fixed body text.
func WithBody(text string) Option {
	return func(o *baseOptions) {
		o.body = func(Settings) string { return text }
	}
}

// WithBodyFunc derives the body from the settings snapshot.
func WithBodyFunc(fn func(settings Settings) string) Option {
	return func(o *baseOptions) {
		o.body = fn
	}
}

// Base returns the shared rewrite used by every built-in strategy.
//
// The replacement keeps the sort key and deep link, namespaces the group key,
// takes sound and vibration from the settings and is always marked so that a
// re-delivery of it is recognised as ours.
func Base(opts ...Option) RewriteFunc {
	o := baseOptions{
		body: func(s Settings) string { return s.Placeholder },
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(in Input, appName string, settings Settings) Result {
		if !settings.SourceEnabled {
			return Suppressed()
		}

		deepLink := in.DeepLink
		if deepLink == "" {
			deepLink = mask.LaunchLink(in.Source)
		}

		spec := mask.MaskedNotificationSpec{
			Title:    appName,
			Body:     o.body(settings),
			GroupKey: mask.GroupKeyFor(in.Source),
			SortKey:  in.SortKey,
			DeepLink: deepLink,
			ID:       in.Identity.NotificationID(),
			Tag:      mask.MaskedTag,
			Defaults: mask.Defaults{
				Lights:  true,
				Sound:   settings.Sound,
				Vibrate: settings.Vibrate,
			},
			Marked: true,
		}
		if settings.Vibrate {
			spec.VibrationPattern = VibrationTimings(settings.VibrationPattern)
		}
		return Masked(spec)
	}
}
