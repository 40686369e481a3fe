package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Provider serves the current preferences from an in-memory snapshot and
// writes changes through to a Store. Reads never block on the store.
type Provider struct {
	store    Store
	logger   *slog.Logger
	snapshot atomic.Pointer[Preferences]

	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewProvider starts from Defaults until Load succeeds.
func NewProvider(store Store, logger *slog.Logger) *Provider {
	p := &Provider{
		store:    store,
		logger:   logger.With("component", "PreferencesProvider"),
		stopChan: make(chan struct{}),
	}
	defaults := Defaults()
	p.snapshot.Store(&defaults)
	return p
}

// Load replaces the snapshot with the stored preferences. When nothing has
// been saved yet the defaults are written so other replicas see the same set.
func (p *Provider) Load(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	prefs, err := p.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		prefs = Defaults()
		if err := p.store.Save(ctx, prefs); err != nil {
			return fmt.Errorf("failed to seed default preferences: %w", err)
		}
		p.logger.Info("Seeded default preferences", "masked_apps", len(prefs.MaskedApps))
	} else if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	prefs.Normalize()
	p.snapshot.Store(&prefs)
	return nil
}

// Snapshot returns a copy of the current preferences.
func (p *Provider) Snapshot() Preferences {
	return p.snapshot.Load().Clone()
}

// Update replaces all preferences.
func (p *Provider) Update(ctx context.Context, prefs Preferences) (Preferences, error) {
	prefs = prefs.Clone()
	prefs.Normalize()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.store.Save(ctx, prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	p.snapshot.Store(&prefs)
	return prefs.Clone(), nil
}

func (p *Provider) AddMaskedApp(ctx context.Context, source string) error {
	return p.mutateApps(ctx, source, true)
}

func (p *Provider) RemoveMaskedApp(ctx context.Context, source string) error {
	return p.mutateApps(ctx, source, false)
}

func (p *Provider) mutateApps(ctx context.Context, source string, add bool) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	next := p.snapshot.Load().Clone()
	var changed bool
	var err error
	if add {
		changed = next.AddMaskedApp(source)
		if changed {
			err = p.store.AddMaskedApp(ctx, source)
		}
	} else {
		if stored, ok := next.MaskedEntry(source); ok {
			source = stored
		}
		changed = next.RemoveMaskedApp(source)
		if changed {
			err = p.store.RemoveMaskedApp(ctx, source)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update masked apps: %w", err)
	}
	if changed {
		p.snapshot.Store(&next)
	}
	return nil
}

// SetServiceEnabled flips the global switch.
func (p *Provider) SetServiceEnabled(ctx context.Context, enabled bool) error {
	_, err := p.modify(ctx, func(prefs *Preferences) { prefs.ServiceEnabled = enabled })
	return err
}

// Toggle inverts the global switch and returns the new value.
func (p *Provider) Toggle(ctx context.Context) (bool, error) {
	prefs, err := p.modify(ctx, func(prefs *Preferences) { prefs.ServiceEnabled = !prefs.ServiceEnabled })
	if err != nil {
		return false, err
	}
	return prefs.ServiceEnabled, nil
}

func (p *Provider) modify(ctx context.Context, fn func(*Preferences)) (Preferences, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	next := p.snapshot.Load().Clone()
	fn(&next)
	if err := p.store.Save(ctx, next); err != nil {
		return Preferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	p.snapshot.Store(&next)
	return next, nil
}

// StartRefresh reloads from the store on every tick so changes made by other
// replicas or devices are picked up. Failed reloads keep the last snapshot.
func (p *Provider) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				if err := p.Load(ctx); err != nil {
					p.logger.Warn("Preferences refresh failed, keeping last snapshot", "err", err)
				}
			}
		}
	}()
}

// Stop ends the refresh loop. Safe to call more than once.
func (p *Provider) Stop() {
	p.once.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// --- mask.ConfigProvider ---

func (p *Provider) IsMaskingEnabled() bool {
	return p.snapshot.Load().ServiceEnabled
}

func (p *Provider) IsSourceEnabled(source string) bool {
	return p.snapshot.Load().IsMasked(source)
}

func (p *Provider) PlaySound() bool {
	return p.snapshot.Load().Sound
}

func (p *Provider) PlayVibration() bool {
	return p.snapshot.Load().Vibrate
}

func (p *Provider) VibrationPattern() string {
	return p.snapshot.Load().VibrationPattern
}
