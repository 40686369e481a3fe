// Package logsink is a mask.Sink for local runs: it records commands in the
// log instead of delivering them.
package logsink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// Command is one recorded sink call.
type Command struct {
	Op     string // "cancel" or "post"
	Key    string
	Tag    string
	ID     int32
	Source string
}

// Sink logs metadata only: titles and bodies are never written.
type Sink struct {
	logger *slog.Logger

	mu       sync.Mutex
	commands []Command
	canPost  bool
}

func New(logger *slog.Logger) *Sink {
	return &Sink{
		logger:  logger.With("component", "LogSink"),
		canPost: true,
	}
}

func (s *Sink) Cancel(_ context.Context, nativeKey string) error {
	s.record(Command{Op: "cancel", Key: nativeKey})
	s.logger.Info("Cancel original", "key", nativeKey)
	return nil
}

func (s *Sink) Post(_ context.Context, tag string, id int32, spec mask.MaskedNotificationSpec) error {
	source, _ := mask.SourceFromGroupKey(spec.GroupKey)
	s.record(Command{Op: "post", Tag: tag, ID: id, Source: source})
	s.logger.Info("Post replacement", "source", source, "tag", tag, "id", id, "vibrate", spec.Defaults.Vibrate)
	return nil
}

// SetCanPost simulates granting or revoking the post permission.
func (s *Sink) SetCanPost(allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canPost = allowed
}

func (s *Sink) CanPostNotifications() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canPost
}

// Commands returns the calls recorded so far, oldest first.
func (s *Sink) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *Sink) record(c Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, c)
}
