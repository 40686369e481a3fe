package strategy

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode selects what happens to sources no specific strategy matches.
type Mode int

const (
	// ModeCatchAll appends Default() so Resolve always succeeds.
	ModeCatchAll Mode = iota
	// ModeAllowList registers no catch-all; unmatched sources pass through.
	ModeAllowList
)

func (m Mode) String() string {
	if m == ModeAllowList {
		return "allow_list"
	}
	return "catch_all"
}

// ParseMode accepts "catch_all" and "allow_list" (case-insensitive, '-' or '_').
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "catch_all":
		return ModeCatchAll, nil
	case "allow_list":
		return ModeAllowList, nil
	default:
		return ModeCatchAll, fmt.Errorf("unknown registry mode %q", s)
	}
}

// ErrShadowed is returned when registering behind a catch-all strategy, where
// the new strategy could never be selected.
var ErrShadowed = errors.New("strategy would be shadowed by a catch-all")

// Registry is an ordered list of strategies. Resolution returns the first
// strategy whose predicate accepts the source.
//
// Register copies the list before appending, so a concurrent Resolve either
// sees the old list or the new one, never a partial append.
type Registry struct {
	mu         sync.Mutex
	strategies atomic.Pointer[[]Strategy]
}

// NewRegistry returns an empty registry: every source is unmatched until
// strategies are registered.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make([]Strategy, 0)
	r.strategies.Store(&empty)
	return r
}

// NewDefaultRegistry registers the built-in strategies and, in catch-all mode,
// Default() last.
func NewDefaultRegistry(mode Mode) *Registry {
	r := NewRegistry()
	for _, s := range BuiltIn() {
		_ = r.Register(s)
	}
	if mode == ModeCatchAll {
		_ = r.Register(Default())
	}
	return r
}

// Register appends a strategy.
func (r *Registry) Register(s Strategy) error {
	if s.Match == nil || s.Rewrite == nil {
		return fmt.Errorf("strategy %q: match and rewrite are required", s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.strategies.Load()
	if n := len(current); n > 0 && current[n-1].CatchAll {
		return fmt.Errorf("register %q after %q: %w", s.Name, current[n-1].Name, ErrShadowed)
	}

	next := make([]Strategy, len(current), len(current)+1)
	copy(next, current)
	next = append(next, s)
	r.strategies.Store(&next)
	return nil
}

// Resolve returns the first strategy that can handle source.
func (r *Registry) Resolve(source string) (Strategy, bool) {
	for _, s := range *r.strategies.Load() {
		if s.Match(source) {
			return s, true
		}
	}
	return Strategy{}, false
}

// Mode reports whether a catch-all is currently registered.
func (r *Registry) Mode() Mode {
	list := *r.strategies.Load()
	if n := len(list); n > 0 && list[n-1].CatchAll {
		return ModeCatchAll
	}
	return ModeAllowList
}

// Names lists registered strategy names in resolution order.
func (r *Registry) Names() []string {
	list := *r.strategies.Load()
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	return names
}
