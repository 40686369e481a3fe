package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soraiyu/KyuubiMask/internal/debuglog"
	"github.com/soraiyu/KyuubiMask/internal/engine"
	"github.com/soraiyu/KyuubiMask/internal/guard"
	"github.com/soraiyu/KyuubiMask/internal/identity"
	"github.com/soraiyu/KyuubiMask/internal/strategy"
	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

const selfSource = "com.rtneg.kyuubimask"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Fakes ---

type fakeConfig struct {
	enabled  bool
	disabled map[string]bool
	sound    bool
	vibrate  bool
}

func (c *fakeConfig) IsMaskingEnabled() bool            { return c.enabled }
func (c *fakeConfig) IsSourceEnabled(source string) bool { return !c.disabled[source] }
func (c *fakeConfig) PlaySound() bool                   { return c.sound }
func (c *fakeConfig) PlayVibration() bool               { return c.vibrate }
func (c *fakeConfig) VibrationPattern() string          { return "short" }

type fakeApps map[string]string

func (a fakeApps) DisplayNameFor(source string) (string, error) {
	if name, ok := a[source]; ok {
		return name, nil
	}
	return "", errors.New("not installed")
}

// recordingSink keeps the call sequence so ordering can be asserted.
type recordingSink struct {
	mu        sync.Mutex
	calls     []string
	posted    []mask.MaskedNotificationSpec
	postTags  []string
	postIDs   []int32
	cancelErr error
	postErr   error
}

func (s *recordingSink) Cancel(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "cancel:"+key)
	return s.cancelErr
}

func (s *recordingSink) Post(_ context.Context, tag string, id int32, spec mask.MaskedNotificationSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "post")
	s.postTags = append(s.postTags, tag)
	s.postIDs = append(s.postIDs, id)
	s.posted = append(s.posted, spec)
	return s.postErr
}

func (s *recordingSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) Acquire(ctx context.Context, id identity.Identity) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockGuard) ReleaseAfter(ctx context.Context, id identity.Identity, delay time.Duration) error {
	return m.Called(ctx, id, delay).Error(0)
}

func (m *mockGuard) Release(ctx context.Context, id identity.Identity) error {
	return m.Called(ctx, id).Error(0)
}

// --- Harness ---

type harness struct {
	engine  *engine.Engine
	sink    *recordingSink
	config  *fakeConfig
	canPost bool
	metrics *engine.Metrics
	log     *debuglog.Log
}

func newHarness(t *testing.T, mode strategy.Mode, mutate ...func(*engine.Deps)) *harness {
	t.Helper()
	h := &harness{
		sink:    &recordingSink{},
		config:  &fakeConfig{enabled: true, sound: true, vibrate: true, disabled: map[string]bool{}},
		canPost: true,
		metrics: engine.NewMetrics(prometheus.NewRegistry()),
		log:     debuglog.New(10),
	}
	deps := engine.Deps{
		SelfSource:  selfSource,
		Registry:    strategy.NewDefaultRegistry(mode),
		Guard:       guard.NewMemoryGuard(),
		Config:      h.config,
		Apps:        fakeApps{"com.example.chat": "Example Chat", "com.whatsapp": "WhatsApp"},
		Sink:        h.sink,
		Permissions: mask.PermissionGateFunc(func() bool { return h.canPost }),
		Metrics:     h.metrics,
		DebugLog:    h.log,
		GraceDelay:  50 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&deps)
	}
	e, err := engine.New(deps, newTestLogger())
	require.NoError(t, err)
	h.engine = e
	return h
}

func chatEvent() mask.NotificationEvent {
	return mask.NotificationEvent{Source: "com.example.chat", NativeID: 7}
}

// --- Tests ---

func TestEngine_OnPosted_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("Masks a matching event: cancel then post", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		ev := chatEvent()
		id := identity.Derive("com.example.chat", 7, "")

		d, err := h.engine.OnPosted(ctx, ev)

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
		assert.True(t, d.Posted)
		assert.Equal(t, []string{"cancel:0|com.example.chat|7|", "post"}, h.sink.Calls())

		require.Len(t, h.sink.posted, 1)
		spec := h.sink.posted[0]
		assert.Equal(t, mask.MaskedTag, h.sink.postTags[0])
		assert.Equal(t, id.NotificationID(), h.sink.postIDs[0])
		assert.Equal(t, "Example Chat", spec.Title)
		assert.Equal(t, strategy.Placeholder(""), spec.Body)
		assert.Equal(t, "mask/com.example.chat", spec.GroupKey)
		assert.Equal(t, mask.LaunchLink("com.example.chat"), spec.DeepLink)
	})

	t.Run("Permission denied cancels but does not post", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.canPost = false

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
		assert.Equal(t, engine.ReasonPermissionDenied, d.Reason)
		assert.False(t, d.Posted)
		assert.Equal(t, []string{"cancel:0|com.example.chat|7|"}, h.sink.Calls())
	})

	t.Run("Own source is never touched, whatever the configuration", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)

		d, err := h.engine.OnPosted(ctx, mask.NotificationEvent{Source: selfSource, NativeID: 1001})

		require.NoError(t, err)
		assert.Equal(t, engine.PassedThrough, d.Outcome)
		assert.Equal(t, engine.ReasonSelf, d.Reason)
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Already masked events pass through", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)

		byTag := mask.NotificationEvent{Source: "com.example.chat", NativeID: 7, Tag: mask.MaskedTag}
		byFlag := mask.NotificationEvent{Source: "com.example.chat", NativeID: 8, Masked: true}

		for _, ev := range []mask.NotificationEvent{byTag, byFlag} {
			d, err := h.engine.OnPosted(ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, engine.ReasonAlreadyMasked, d.Reason)
		}
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Two identical events before guard release emit once", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)

		first, err := h.engine.OnPosted(ctx, chatEvent())
		require.NoError(t, err)
		second, err := h.engine.OnPosted(ctx, chatEvent())
		require.NoError(t, err)

		assert.Equal(t, engine.Masked, first.Outcome)
		assert.Equal(t, engine.ReasonInFlight, second.Reason)
		assert.Equal(t, []string{"cancel:0|com.example.chat|7|", "post"}, h.sink.Calls())
	})

	t.Run("Same identity is processed again after the grace delay", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)

		_, err := h.engine.OnPosted(ctx, chatEvent())
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			d, _ := h.engine.OnPosted(ctx, chatEvent())
			return d.Outcome == engine.Masked
		}, time.Second, 20*time.Millisecond)
		assert.Len(t, h.sink.Calls(), 4)
	})
}

func TestEngine_OnPosted_ConcurrentBurst(t *testing.T) {
	h := newHarness(t, strategy.ModeCatchAll)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.OnPosted(ctx, chatEvent())
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"cancel:0|com.example.chat|7|", "post"}, h.sink.Calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("masked", "")))
	assert.Equal(t, float64(31), testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("passed_through", "in_flight")))
}

func TestEngine_OnPosted_PassThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("Masking globally disabled", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.config.enabled = false

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.ReasonMaskingDisabled, d.Reason)
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Source disabled", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.config.disabled["com.example.chat"] = true

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.ReasonSourceDisabled, d.Reason)
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Allow-list mode leaves unmatched sources alone", func(t *testing.T) {
		h := newHarness(t, strategy.ModeAllowList)

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.ReasonNoStrategy, d.Reason)
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Allow-list mode masks matched sources", func(t *testing.T) {
		h := newHarness(t, strategy.ModeAllowList)

		d, err := h.engine.OnPosted(ctx, mask.NotificationEvent{Source: "com.whatsapp", NativeID: 1})

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
		assert.Equal(t, "WhatsApp", h.sink.posted[0].Title)
	})

	t.Run("Suppressed strategy result", func(t *testing.T) {
		reg := strategy.NewRegistry()
		require.NoError(t, reg.Register(strategy.Strategy{
			Name:    "never",
			Match:   func(string) bool { return true },
			Rewrite: func(strategy.Input, string, strategy.Settings) strategy.Result { return strategy.Suppressed() },
		}))
		h := newHarness(t, strategy.ModeCatchAll, func(d *engine.Deps) { d.Registry = reg })

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.ReasonSuppressed, d.Reason)
		assert.Empty(t, h.sink.Calls())
	})

	t.Run("Early exits release the guard immediately", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.config.enabled = false
		_, _ = h.engine.OnPosted(ctx, chatEvent())

		h.config.enabled = true
		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
	})
}

func TestEngine_OnPosted_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancel failure is propagated and nothing is posted", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.sink.cancelErr = errors.New("listener disconnected")

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.ErrorIs(t, err, engine.ErrCancelFailed)
		assert.Contains(t, err.Error(), "listener disconnected")
		assert.Equal(t, engine.ReasonCancelFailed, d.Reason)
		assert.Equal(t, []string{"cancel:0|com.example.chat|7|"}, h.sink.Calls())
		assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.CancelFailures))
	})

	t.Run("Post failure is absorbed after a successful cancel", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)
		h.sink.postErr = errors.New("quota exceeded")

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
		assert.Equal(t, engine.ReasonPostFailed, d.Reason)
		assert.False(t, d.Posted)
		assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.PostFailures))
	})

	t.Run("App lookup failure falls back to a generic label", func(t *testing.T) {
		h := newHarness(t, strategy.ModeCatchAll)

		d, err := h.engine.OnPosted(ctx, mask.NotificationEvent{Source: "org.uninstalled", NativeID: 2})

		require.NoError(t, err)
		assert.True(t, d.Posted)
		assert.Equal(t, mask.FallbackAppName, h.sink.posted[0].Title)
	})

	t.Run("Guard errors do not block masking", func(t *testing.T) {
		g := new(mockGuard)
		g.On("Acquire", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		g.On("ReleaseAfter", mock.Anything, mock.Anything, 50*time.Millisecond).Return(errors.New("redis down"))
		h := newHarness(t, strategy.ModeCatchAll, func(d *engine.Deps) { d.Guard = g })

		d, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		assert.Equal(t, engine.Masked, d.Outcome)
		g.AssertExpectations(t)
	})

	t.Run("Guard release is scheduled with the grace delay", func(t *testing.T) {
		id := identity.Derive("com.example.chat", 7, "")
		g := new(mockGuard)
		g.On("Acquire", mock.Anything, id).Return(true, nil)
		g.On("ReleaseAfter", mock.Anything, id, 50*time.Millisecond).Return(nil)
		h := newHarness(t, strategy.ModeCatchAll, func(d *engine.Deps) { d.Guard = g })

		_, err := h.engine.OnPosted(ctx, chatEvent())

		require.NoError(t, err)
		g.AssertExpectations(t)
	})
}

func TestEngine_MetadataRoundTrip(t *testing.T) {
	h := newHarness(t, strategy.ModeCatchAll)
	ctx := context.Background()

	for i, key := range []string{"a", "0001", "zz-last", "グループ"} {
		ev := mask.NotificationEvent{
			Source:   "com.example.chat",
			NativeID: 100 + i,
			SortKey:  key,
			DeepLink: "intent://thread",
		}
		_, err := h.engine.OnPosted(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, key, h.sink.posted[i].SortKey)
		assert.Equal(t, mask.DeepLink("intent://thread"), h.sink.posted[i].DeepLink)
	}
}

func TestEngine_OnRemoved(t *testing.T) {
	h := newHarness(t, strategy.ModeCatchAll)
	ctx := context.Background()

	h.engine.OnRemoved(ctx, mask.NotificationEvent{Source: selfSource, Tag: mask.MaskedTag})
	h.engine.OnRemoved(ctx, chatEvent())

	assert.Empty(t, h.sink.Calls(), "removal never triggers processing")
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Removals.WithLabelValues("masked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Removals.WithLabelValues("original")))
	assert.Len(t, h.log.Entries(), 2)
}

func TestEngine_DebugLogCarriesNoContent(t *testing.T) {
	h := newHarness(t, strategy.ModeCatchAll)

	_, err := h.engine.OnPosted(context.Background(), mask.NotificationEvent{
		Source:   "com.example.chat",
		NativeID: 9,
		SortKey:  "secret-sort",
		DeepLink: "intent://secret",
	})
	require.NoError(t, err)

	for _, line := range h.log.Entries() {
		assert.NotContains(t, line, "secret")
		assert.Contains(t, line, "com.example.chat")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := engine.New(engine.Deps{}, newTestLogger())
	assert.Error(t, err)
}
