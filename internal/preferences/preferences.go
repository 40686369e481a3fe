// Package preferences holds the user's masking settings and the stores that
// persist them.
package preferences

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/soraiyu/KyuubiMask/internal/strategy"
)

// ErrNotFound is returned by a Store when nothing has been saved yet.
var ErrNotFound = errors.New("preferences not found")

// DefaultMaskedApps is the list of messaging and work apps masked on first run.
var DefaultMaskedApps = []string{
	"com.whatsapp",
	"org.telegram.messenger",
	"jp.naver.line.android",
	"org.thoughtcrime.securesms",
	"com.discord",
	"com.google.android.gm",
	"com.fsck.k9",
	"com.slack",
	"com.microsoft.teams",
	"us.zoom.videomeetings",
	"com.notion.id",
	"com.atlassian.jira.core.ui",
}

// Preferences is the persisted settings document. It holds switches and
// package identifiers only.
type Preferences struct {
	ServiceEnabled   bool     `yaml:"service_enabled" json:"serviceEnabled" firestore:"service_enabled"`
	Sound            bool     `yaml:"notification_sound" json:"sound" firestore:"notification_sound"`
	Vibrate          bool     `yaml:"notification_vibrate" json:"vibrate" firestore:"notification_vibrate"`
	VibrationPattern string   `yaml:"vibration_pattern" json:"vibrationPattern" firestore:"vibration_pattern"`
	MaskedApps       []string `yaml:"masked_apps" json:"maskedApps" firestore:"-"`
}

// Defaults returns the first-run settings.
func Defaults() Preferences {
	return Preferences{
		ServiceEnabled:   true,
		Sound:            true,
		Vibrate:          true,
		VibrationPattern: strategy.DefaultVibrationPattern,
		MaskedApps:       slices.Clone(DefaultMaskedApps),
	}
}

// Normalize trims and de-duplicates the app list (keeping first-seen order)
// and replaces an unknown vibration pattern with the default.
func (p *Preferences) Normalize() {
	seen := make(map[string]struct{}, len(p.MaskedApps))
	apps := make([]string, 0, len(p.MaskedApps))
	for _, app := range p.MaskedApps {
		app = strings.TrimSpace(app)
		if app == "" {
			continue
		}
		key := strings.ToLower(app)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		apps = append(apps, app)
	}
	p.MaskedApps = apps

	if !slices.Contains(strategy.VibrationPatternNames, p.VibrationPattern) {
		p.VibrationPattern = strategy.DefaultVibrationPattern
	}
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	p.MaskedApps = slices.Clone(p.MaskedApps)
	return p
}

// IsMasked reports whether source is in the masked set. Package ids are
// matched case-insensitively: Slack ships as "com.Slack".
func (p Preferences) IsMasked(source string) bool {
	return p.maskedIndex(source) >= 0
}

// MaskedEntry returns the stored spelling of source, if it is masked.
func (p Preferences) MaskedEntry(source string) (string, bool) {
	if i := p.maskedIndex(source); i >= 0 {
		return p.MaskedApps[i], true
	}
	return "", false
}

func (p Preferences) maskedIndex(source string) int {
	return slices.IndexFunc(p.MaskedApps, func(app string) bool {
		return strings.EqualFold(app, source)
	})
}

// AddMaskedApp adds source to the masked set. It reports whether anything changed.
func (p *Preferences) AddMaskedApp(source string) bool {
	if source == "" || p.IsMasked(source) {
		return false
	}
	p.MaskedApps = append(p.MaskedApps, source)
	return true
}

// RemoveMaskedApp removes source from the masked set. It reports whether anything changed.
func (p *Preferences) RemoveMaskedApp(source string) bool {
	i := p.maskedIndex(source)
	if i < 0 {
		return false
	}
	p.MaskedApps = slices.Delete(p.MaskedApps, i, i+1)
	return true
}

// Store persists Preferences for one profile.
type Store interface {
	// Load returns ErrNotFound when nothing has been saved yet.
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, prefs Preferences) error
	AddMaskedApp(ctx context.Context, source string) error
	RemoveMaskedApp(ctx context.Context, source string) error
}
