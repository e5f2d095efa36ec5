package common

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{" DEBUG ", LevelDebug},
		{"warning", LevelWarn},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestAppLogger_LogFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := &AppLogger{
		level:  LevelWarn,
		output: &buf,
	}
	logger.logger = newTestLogger(&buf)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Zero(t, buf.Len(), "Debug/Info messages should be filtered when level is Warn")

	logger.Warn("warn message")
	assert.Contains(t, buf.String(), "[WARN]")

	buf.Reset()
	logger.Error("error message")
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestAppLogger_LogFormatting(t *testing.T) {
	var buf bytes.Buffer

	logger := &AppLogger{
		level:  LevelDebug,
		output: &buf,
	}
	logger.logger = newTestLogger(&buf)

	logger.Info("Launching %s", "srv1")

	output := buf.String()
	assert.Contains(t, output, time.Now().Format("2006/01/02"))
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "logger_test.go:")
	assert.Contains(t, output, "Launching srv1")
}

func TestDefaultLogger_ReportsCallingFile(t *testing.T) {
	var buf bytes.Buffer

	l := GetLogger()
	l.mu.Lock()
	prevLogger, prevLevel := l.logger, l.level
	l.logger = newTestLogger(&buf)
	l.level = LevelDebug
	l.mu.Unlock()
	t.Cleanup(func() {
		l.mu.Lock()
		l.logger, l.level = prevLogger, prevLevel
		l.mu.Unlock()
	})

	LogDebug("d")
	LogInfo("i")
	LogWarn("w")
	LogError("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Contains(t, line, "logger_test.go:")
		assert.NotContains(t, line, "logger.go:")
	}
}

func TestAppLogger_EnableFileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := &AppLogger{
		level:       LevelInfo,
		maxFileSize: defaultMaxFileSize,
		maxBackups:  defaultMaxBackups,
	}
	logger.logger = newTestLogger(&bytes.Buffer{})

	require.NoError(t, logger.EnableFileLogging(dir))
	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestAppLogger_EnableFileLogging_RejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "elsewhere")
	require.NoError(t, os.MkdirAll(target, 0700))
	link := filepath.Join(dir, "logs")
	require.NoError(t, os.Symlink(target, link))

	logger := &AppLogger{level: LevelInfo}
	err := logger.EnableFileLogging(link)
	assert.Error(t, err)
}

func TestDefaultLogConfig(t *testing.T) {
	assert.Equal(t, int64(5*1024*1024), int64(defaultMaxFileSize))
	assert.Equal(t, 5, defaultMaxBackups)
}

func TestLogRotation(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, LogFileName)

	largeContent := strings.Repeat("x", 1024*1024)
	require.NoError(t, os.WriteFile(logFile, []byte(largeContent), 0600))

	logger := &AppLogger{
		level:       LevelInfo,
		maxFileSize: 512 * 1024,
		maxBackups:  2,
	}

	logger.rotateIfNeeded(logFile)

	info, err := os.Stat(logFile)
	if err == nil {
		assert.Zero(t, info.Size(), "original log file should be removed or empty after rotation")
	}

	matches, _ := filepath.Glob(filepath.Join(tempDir, LogFileName+".*"))
	assert.NotEmpty(t, matches, "backup file should be created after rotation")
}

func TestCleanupOldBackups(t *testing.T) {
	tempDir := t.TempDir()
	stamps := []string{"20260101-080000", "20260102-080000", "20260103-080000", "20260104-080000"}
	for _, stamp := range stamps {
		name := filepath.Join(tempDir, LogFileName+"."+stamp+rotatedSuffix)
		require.NoError(t, os.WriteFile(name, []byte("x"), 0600))
	}

	logger := &AppLogger{maxBackups: 2}
	logger.cleanupOldBackups(tempDir)

	matches, _ := filepath.Glob(filepath.Join(tempDir, LogFileName+".*"))
	assert.Len(t, matches, 2)
	assert.NoFileExists(t, filepath.Join(tempDir, LogFileName+"."+stamps[0]+rotatedSuffix))
	assert.FileExists(t, filepath.Join(tempDir, LogFileName+"."+stamps[3]+rotatedSuffix))
}

func TestCompressFile_Zstd(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "plain.log")
	dst := src + rotatedSuffix
	content := strings.Repeat("2026/01/01 08:00:00 [INFO] app.go:1: hello\n", 200)
	require.NoError(t, os.WriteFile(src, []byte(content), 0600))

	require.NoError(t, compressFile(src, dst))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

// Helper to create a test logger
func newTestLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "", 0)
}
