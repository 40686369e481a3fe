// --- File: internal/platform/fcm/sink.go ---
// Package fcm delivers cancel and post commands to the device-side listener
// bridge as FCM data messages.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// Command values carried in the "cmd" data key.
const (
	CommandCancel = "cancel"
	CommandPost   = "post"
)

// commandTTL bounds delivery: a command the device receives late is worse
// than one it never receives.
const commandTTL = 30 * time.Second

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// Sink implements mask.Sink and mask.PermissionGate for one device.
type Sink struct {
	client  MessagingClient
	token   string
	logger  *slog.Logger
	canPost atomic.Bool
}

func NewSink(client MessagingClient, deviceToken string, logger *slog.Logger) *Sink {
	s := &Sink{
		client: client,
		token:  deviceToken,
		logger: logger.With("component", "FCMSink"),
	}
	s.canPost.Store(true)
	return s
}

func (s *Sink) Cancel(ctx context.Context, nativeKey string) error {
	_, err := s.send(ctx, map[string]string{
		"cmd": CommandCancel,
		"key": nativeKey,
	})
	return err
}

func (s *Sink) Post(ctx context.Context, tag string, id int32, spec mask.MaskedNotificationSpec) error {
	data := map[string]string{
		"cmd":       CommandPost,
		"tag":       tag,
		"id":        strconv.FormatInt(int64(id), 10),
		"title":     spec.Title,
		"body":      spec.Body,
		"group_key": spec.GroupKey,
		"lights":    strconv.FormatBool(spec.Defaults.Lights),
		"sound":     strconv.FormatBool(spec.Defaults.Sound),
		"vibrate":   strconv.FormatBool(spec.Defaults.Vibrate),
		"marked":    strconv.FormatBool(spec.Marked),
	}
	if spec.SortKey != "" {
		data["sort_key"] = spec.SortKey
	}
	if spec.DeepLink != "" {
		data["deep_link"] = string(spec.DeepLink)
	}
	if len(spec.VibrationPattern) > 0 {
		data["vibration_pattern"] = joinTimings(spec.VibrationPattern)
	}

	_, err := s.send(ctx, data)
	return err
}

// CanPostNotifications is false once FCM reports the device token as no
// longer registered.
func (s *Sink) CanPostNotifications() bool {
	return s.canPost.Load()
}

func (s *Sink) send(ctx context.Context, data map[string]string) (string, error) {
	ttl := commandTTL
	msg := &messaging.Message{
		Token: s.token,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsUnregistered(err) {
			if s.canPost.Swap(false) {
				s.logger.Warn("Device token no longer registered; replacements disabled")
			}
		}
		return "", fmt.Errorf("fcm %s command failed: %w", data["cmd"], err)
	}
	s.logger.Debug("Command sent", "cmd", data["cmd"], "message_id", id)
	return id, nil
}

func joinTimings(timings []int64) string {
	parts := make([]string, len(timings))
	for i, t := range timings {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, ",")
}
