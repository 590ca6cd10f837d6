package run

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/replay"
	"main/internal/schema"
	"main/internal/settings"
)

type captureSink struct {
	mu     sync.Mutex
	events []schema.RuntimeEvent
}

func (s *captureSink) Publish(event schema.RuntimeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) count(eventType schema.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, e := range s.events {
		if e.Header.Type == eventType {
			n++
		}
	}
	return n
}

func TestControllerLifecycleSmoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.csv")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer, err := replay.NewWriter(replay.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, writer.Start(ctx))

	sink := &captureSink{}
	engineCfg := DefaultConfig()
	engineCfg.DecisionIntervalMs = 5

	controller, err := NewController(Options{
		Engine:   engineCfg,
		Settings: testSettings(),
		Replay:   writer,
		Sink:     sink,
	})
	require.NoError(t, err)

	// a wedged telemetry subscriber must not stall the run
	wedged := controller.Subscribe()
	defer wedged.Cancel()

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	controller.Start()
	require.Eventually(t, func() bool {
		return controller.State() == StateRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return sink.count(schema.EventStrategyPerf) >= 20
	}, 10*time.Second, 10*time.Millisecond)

	controller.Pause()
	require.Eventually(t, func() bool {
		return controller.State() == StatePaused
	}, 5*time.Second, 5*time.Millisecond)

	perfBefore := sink.count(schema.EventStrategyPerf)
	require.Eventually(t, func() bool {
		return sink.count(schema.EventStrategyPerf) > perfBefore
	}, 5*time.Second, 10*time.Millisecond, "telemetry must continue while paused")

	controller.Resume()
	controller.Stop()
	require.Eventually(t, func() bool {
		return controller.State() == StateStopped
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, controller.ExitCode())

	assert.Equal(t, 1, sink.count(schema.EventRunStarted))
	assert.Greater(t, sink.count(schema.EventFeedHealth), 0)
	assert.Greater(t, sink.count(schema.EventPriceSnapshot), 0)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, strings.TrimSuffix(replay.Header, "\n"), lines[0])
	assert.Greater(t, len(lines), 10)
}

func TestCancellationRunsStopSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	engineCfg := DefaultConfig()
	engineCfg.DecisionIntervalMs = 5

	controller, err := NewController(Options{
		Engine:   engineCfg,
		Settings: testSettings(),
		Sink:     sink,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	controller.Start()
	require.Eventually(t, func() bool {
		return sink.count(schema.EventStrategyPerf) >= 5
	}, 10*time.Second, 10*time.Millisecond)

	// cancel without an explicit stop command; the run must still drain
	// and park
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, controller.State())
	assert.Equal(t, 0, controller.ExitCode())
}

func TestControllerSettingsPatchEmitsUpdate(t *testing.T) {
	controller, err := NewController(Options{
		Engine:   DefaultConfig(),
		Settings: testSettings(),
	})
	require.NoError(t, err)

	sub := controller.Subscribe()
	defer sub.Cancel()

	hello := <-sub.C()
	require.Equal(t, schema.EventConnected, hello.Header.Type)
	require.NotNil(t, hello.Connected)
	assert.Equal(t, schema.SchemaVersion, hello.Connected.SchemaVersion)

	paused := true
	next, err := controller.ApplySettings(settings.Patch{TradingPaused: &paused})
	require.NoError(t, err)
	assert.True(t, next.TradingPaused)

	select {
	case event := <-sub.C():
		assert.Equal(t, schema.EventSettingsUpdated, event.Header.Type)
		require.NotNil(t, event.Settings)
		assert.True(t, event.Settings.TradingPaused)
	case <-time.After(time.Second):
		t.Fatal("expected a settings_updated event")
	}
}

func TestControllerRejectsLivePatchWithGateClosed(t *testing.T) {
	controller, err := NewController(Options{
		Engine:   DefaultConfig(),
		Settings: testSettings(),
	})
	require.NoError(t, err)

	sub := controller.Subscribe()
	defer sub.Cancel()
	<-sub.C() // connected hello

	live := schema.ModeLive
	_, err = controller.ApplySettings(settings.Patch{ExecutionMode: &live})
	assert.ErrorIs(t, err, settings.ErrLiveGateClosed)
	assert.Equal(t, schema.ModePaper, controller.Settings().ExecutionMode)

	select {
	case event := <-sub.C():
		t.Fatalf("no event expected on rejected patch, got %s", event.Header.Type.Name())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestControllerInvalidOptionsRejected(t *testing.T) {
	_, err := NewController(Options{
		Engine:   Config{},
		Settings: testSettings(),
	})
	assert.Error(t, err)

	bad := testSettings()
	bad.RiskPerTradePct = 0
	_, err = NewController(Options{
		Engine:   DefaultConfig(),
		Settings: bad,
	})
	assert.Error(t, err)
}
