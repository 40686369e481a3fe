// Package strategy holds the per-source masking policies and the ordered
// registry that selects one for a given source.
//
// A Strategy is plain data: a predicate over the source identifier and a pure
// rewrite function. Per-source variants are built from the same base rewrite
// with options, never by reimplementing it.
package strategy

import (
	"github.com/soraiyu/KyuubiMask/internal/identity"
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// Input is the part of a posted event a strategy may see. It has no room for
// the original title or body.
type Input struct {
	Source   string
	Identity identity.Identity
	SortKey  string
	DeepLink mask.DeepLink
}

// NewInput builds the strategy view of an event.
func NewInput(ev mask.NotificationEvent, id identity.Identity) Input {
	return Input{
		Source:   ev.Source,
		Identity: id,
		SortKey:  ev.SortKey,
		DeepLink: ev.DeepLink,
	}
}

// Settings is the snapshot of user configuration handed to a rewrite.
type Settings struct {
	// SourceEnabled is re-read at rewrite time; false suppresses masking.
	SourceEnabled    bool
	Sound            bool
	Vibrate          bool
	VibrationPattern string
	// Placeholder is the localized default body.
	Placeholder string
}

// Kind tags a Result.
type Kind int

const (
	KindNoMatch Kind = iota
	KindSuppressed
	KindMasked
)

func (k Kind) String() string {
	switch k {
	case KindMasked:
		return "masked"
	case KindSuppressed:
		return "suppressed"
	default:
		return "no_match"
	}
}

// Result is the tagged outcome of applying a strategy: Masked(spec),
// Suppressed or NoMatch.
type Result struct {
	Kind Kind
	// Spec is only meaningful when Kind == KindMasked.
	Spec mask.MaskedNotificationSpec
}

func Masked(spec mask.MaskedNotificationSpec) Result {
	return Result{Kind: KindMasked, Spec: spec}
}

func Suppressed() Result { return Result{Kind: KindSuppressed} }

func NoMatch() Result { return Result{Kind: KindNoMatch} }

// RewriteFunc turns a maskable event into its replacement.
// appName has already been resolved, with fallback, by the caller.
type RewriteFunc func(in Input, appName string, settings Settings) Result

// Strategy binds a source predicate to a rewrite function.
type Strategy struct {
	Name    string
	Match   func(source string) bool
	Rewrite RewriteFunc
	// CatchAll marks a strategy whose Match accepts every source.
	CatchAll bool
}

// Apply runs the strategy against an input, returning NoMatch when the
// predicate rejects the source.
func (s Strategy) Apply(in Input, appName string, settings Settings) Result {
	if s.Match == nil || !s.Match(in.Source) {
		return NoMatch()
	}
	return s.Rewrite(in, appName, settings)
}
