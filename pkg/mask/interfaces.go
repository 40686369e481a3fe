// --- File: pkg/mask/interfaces.go ---
package mask

import (
	"context"
)

// ConfigProvider exposes the user's masking preferences.
// It is read-only from the engine's point of view and must be fast: it is
// consulted on every posted event.
type ConfigProvider interface {
	// IsMaskingEnabled reports the global on/off switch.
	IsMaskingEnabled() bool
	// IsSourceEnabled reports whether notifications from source should be masked.
	IsSourceEnabled(source string) bool
	PlaySound() bool
	PlayVibration() bool
	// VibrationPattern returns the selected pattern key (e.g. "short").
	VibrationPattern() string
}

// AppLookup resolves a source identifier to a human readable application name.
type AppLookup interface {
	// DisplayNameFor may fail (e.g. the app was uninstalled mid-flight).
	DisplayNameFor(source string) (string, error)
}

// Sink defines the contract for the component that actually hides and shows
// notifications on the display surface.
type Sink interface {
	// Cancel removes the original notification identified by its native key.
	Cancel(ctx context.Context, nativeKey string) error

	// Post shows the replacement notification under (tag, id).
	Post(ctx context.Context, tag string, id int32, spec MaskedNotificationSpec) error
}

// PermissionGate reports whether replacement notifications may be posted.
// When it returns false the original is still cancelled.
type PermissionGate interface {
	CanPostNotifications() bool
}

// PermissionGateFunc adapts a plain function to PermissionGate.
type PermissionGateFunc func() bool

func (f PermissionGateFunc) CanPostNotifications() bool { return f() }
