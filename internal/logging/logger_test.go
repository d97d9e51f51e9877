package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetBase(zap.New(core))
	t.Cleanup(func() {
		SetBase(nil)
		loggersMu.Lock()
		categories = nil
		loggersMu.Unlock()
	})
	return logs
}

func TestGet_NamesLoggerByCategory(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Coverage("parsed %d files", 3)
	ResolveDebug("candidate %s", "tests/test_calc.py")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "coverage", entries[0].LoggerName)
	assert.Equal(t, "parsed 3 files", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "resolve", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestGet_DisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	loggersMu.Lock()
	categories = map[string]bool{"api": false}
	loggersMu.Unlock()

	API("request sent")
	Sync("entry done")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sync", entries[0].LoggerName)
}

func TestLogger_WithCarriesFields(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Get(CategorySync).With("run_id", "abc").Warn("skipped %s", "src/orphan.py")

	entries := logs.FilterField(zap.String("run_id", "abc")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "skipped src/orphan.py", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestLogger_LevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	Context("assembled request")
	Get(CategoryContext).Error("read failed")

	assert.Equal(t, 1, logs.Len())
}

func TestInitialize_WritesJSONFile(t *testing.T) {
	t.Cleanup(func() { SetBase(nil) })

	path := filepath.Join(t.TempDir(), "logs", "aiunit.log")
	require.NoError(t, Initialize(Settings{Level: "debug", Format: "json", File: path}))

	Boot("starting %s", "aiunit")
	require.NoError(t, Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"logger":"boot"`)
	assert.Contains(t, line, `"msg":"starting aiunit"`)
}

func TestInitialize_RejectsBadSettings(t *testing.T) {
	t.Cleanup(func() { SetBase(nil) })

	assert.Error(t, Initialize(Settings{Level: "loud"}))
	assert.Error(t, Initialize(Settings{Format: "xml"}))
}

func TestGet_BeforeInitializeIsNoop(t *testing.T) {
	SetBase(nil)
	assert.NotPanics(t, func() {
		Get(CategoryWatch).Info("nothing to see")
	})
}
