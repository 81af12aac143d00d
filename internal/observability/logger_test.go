package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/kvasirlabs/askpilot/internal/config"
)

// memSink is an in-memory WriteSyncer for capturing log output.
type memSink struct {
	strings.Builder
}

func (s *memSink) Sync() error { return nil }

func setupLogger(t *testing.T, cfg config.LoggerConfig) *memSink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(cfg, zapcore.AddSync(sink))
	return sink
}

func TestInitialize_JSONFormat(t *testing.T) {
	sink := setupLogger(t, config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "test-svc"})

	GetLogger().Info("structured message", zap.String("key", "value"))

	out := sink.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"msg":"structured message"`)
	assert.Contains(t, out, `"key":"value"`)
	assert.Contains(t, out, "test-svc")
}

func TestInitialize_LevelFiltering(t *testing.T) {
	sink := setupLogger(t, config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "test-svc"})

	logger := GetLogger()
	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("loud enough")

	out := sink.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestInitialize_InvalidLevelDefaultsToInfo(t *testing.T) {
	sink := setupLogger(t, config.LoggerConfig{Level: "chatty", Format: "json", ServiceName: "test-svc"})

	logger := GetLogger()
	logger.Debug("filtered")
	logger.Info("visible")

	out := sink.String()
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, "visible")
}

func TestInitialize_RunsOnlyOnce(t *testing.T) {
	first := setupLogger(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"})

	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(second))

	GetLogger().Info("routed")
	assert.Contains(t, first.String(), "routed")
	assert.Empty(t, second.String(), "second Initialize must be a no-op")
}

func TestGetLogger_FallbackBeforeInitialization(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)

	// The fallback must be usable without panicking.
	logger.Debug("fallback probe")
}

func TestSync_NilSafe(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	// Sync on an uninitialized logger must not panic.
	Sync()
}

// Guard against accidental dependency on the global logger in zaptest-based
// component tests.
func TestZaptestCompatibility(t *testing.T) {
	logger := zaptest.NewLogger(t)
	logger.Info("component-local logger works")
}
