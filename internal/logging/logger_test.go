package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func withCapturedOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut := global.out
	global.out = log.New(&buf, "", 0)
	t.Cleanup(func() {
		global.out = prevOut
		Disable()
	})
	return &buf
}

func TestLoggerIsSilentBeforeInitialize(t *testing.T) {
	buf := withCapturedOutput(t)
	Disable()
	Get(CategoryStore).Info("hello %s", "world")
	require.Empty(t, buf.String())
}

func TestInitializeEnablesConfiguredLevelAndAbove(t *testing.T) {
	buf := withCapturedOutput(t)
	Initialize(LevelWarn)

	Get(CategoryScanner).Debug("should not appear")
	Get(CategoryScanner).Warn("should appear: %d", 7)

	require.NotContains(t, buf.String(), "should not appear")
	require.Contains(t, buf.String(), "should appear: 7")
}

func TestInitializeRestrictsToListedCategories(t *testing.T) {
	buf := withCapturedOutput(t)
	Initialize(LevelDebug, CategoryRPC)

	Get(CategoryStore).Info("store message")
	Get(CategoryRPC).Info("rpc message")

	require.NotContains(t, buf.String(), "store message")
	require.Contains(t, buf.String(), "rpc message")
}

func TestDisableSilencesAllCategories(t *testing.T) {
	buf := withCapturedOutput(t)
	Initialize(LevelDebug)
	Disable()

	Get(CategoryOrchestrate).Error("should not appear")
	require.Empty(t, buf.String())
}
