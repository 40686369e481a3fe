// Package mask contains the public domain model and collaborator contracts of
// the notification masking service.
//
// PRIVACY: none of the types in this package carry the title or body of an
// original notification. Anything that reaches a Strategy, a Sink or a log line
// is metadata only.
package mask

import (
	"fmt"
	"strings"
)

// MaskedTag is the fixed tag under which every replacement notification is posted.
// Events carrying this tag are never masked again.
const MaskedTag = "kyuubimask_masked"

// GroupPrefix namespaces the replacement's group key so it never merges with
// the source app's own groups.
const GroupPrefix = "mask/"

// FallbackAppName is used as the title when the source app's name cannot be resolved.
const FallbackAppName = "App"

// DeepLink is an opaque tap target. It is forwarded, never parsed.
type DeepLink string

// LaunchLink returns the "open app" fallback target for a source.
func LaunchLink(source string) DeepLink {
	return DeepLink("launch://" + source)
}

// NotificationEvent is a single "posted" callback from the listener bridge.
type NotificationEvent struct {
	Source   string   `json:"source" validate:"required,max=255"`
	NativeID int      `json:"id"`
	Tag      string   `json:"tag,omitempty"`
	Key      string   `json:"key,omitempty"`
	GroupKey string   `json:"group_key,omitempty"`
	SortKey  string   `json:"sort_key,omitempty"`
	DeepLink DeepLink `json:"deep_link,omitempty"`
	Masked   bool     `json:"masked,omitempty"`
}

// NativeKey returns the platform key used to cancel the original notification.
// Bridges that do not forward a key get the "0|source|id|tag" form.
func (e NotificationEvent) NativeKey() string {
	if e.Key != "" {
		return e.Key
	}
	return fmt.Sprintf("0|%s|%d|%s", e.Source, e.NativeID, e.Tag)
}

// IsMarked reports whether the event is one of our own replacements.
func (e NotificationEvent) IsMarked() bool {
	return e.Masked || e.Tag == MaskedTag
}

// Defaults mirrors the platform's DEFAULT_* notification flags.
type Defaults struct {
	Lights  bool `json:"lights"`
	Sound   bool `json:"sound"`
	Vibrate bool `json:"vibrate"`
}

// MaskedNotificationSpec describes the replacement notification.
type MaskedNotificationSpec struct {
	Title            string   `json:"title"`
	Body             string   `json:"body"`
	GroupKey         string   `json:"group_key"`
	SortKey          string   `json:"sort_key,omitempty"`
	DeepLink         DeepLink `json:"deep_link,omitempty"`
	ID               int32    `json:"id"`
	Tag              string   `json:"tag"`
	Defaults         Defaults `json:"defaults"`
	VibrationPattern []int64  `json:"vibration_pattern,omitempty"`
	Marked           bool     `json:"marked"`
}

// GroupKeyFor returns the namespaced group key for a source.
func GroupKeyFor(source string) string {
	return GroupPrefix + source
}

// SourceFromGroupKey is the inverse of GroupKeyFor.
func SourceFromGroupKey(group string) (string, bool) {
	return strings.CutPrefix(group, GroupPrefix)
}
