package logsink_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soraiyu/KyuubiMask/internal/platform/logsink"
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

var (
	_ mask.Sink           = (*logsink.Sink)(nil)
	_ mask.PermissionGate = (*logsink.Sink)(nil)
)

func TestSink(t *testing.T) {
	var buf bytes.Buffer
	sink := logsink.New(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	require.NoError(t, sink.Cancel(ctx, "0|com.example.chat|7|"))
	require.NoError(t, sink.Post(ctx, mask.MaskedTag, 42, mask.MaskedNotificationSpec{
		Title:    "Example Chat",
		Body:     "New notification",
		GroupKey: mask.GroupKeyFor("com.example.chat"),
	}))

	assert.Equal(t, []logsink.Command{
		{Op: "cancel", Key: "0|com.example.chat|7|"},
		{Op: "post", Tag: mask.MaskedTag, ID: 42, Source: "com.example.chat"},
	}, sink.Commands())

	assert.NotContains(t, buf.String(), "Example Chat")
	assert.NotContains(t, buf.String(), "New notification")

	assert.True(t, sink.CanPostNotifications())
	sink.SetCanPost(false)
	assert.False(t, sink.CanPostNotifications())
}
