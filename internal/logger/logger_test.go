package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, cfg Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Writer = &buf
	l, err := New(cfg)
	require.NoError(t, err)
	return l, &buf
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		format      string
		wantJSON    bool
	}{
		{"production uses json", "production", "", true},
		{"development uses pretty", "development", "", false},
		{"staging uses pretty", "staging", "", false},
		{"explicit json wins", "development", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBuffered(t, Config{Level: slog.LevelInfo, Environment: tt.environment, Format: tt.format})
			l.Info("download finished")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"download finished"`)
			} else {
				assert.Contains(t, buf.String(), "INF")
				assert.Contains(t, buf.String(), colorReset)
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "novelvault.log")

	l, buf := newBuffered(t, Config{Level: slog.LevelInfo, File: path})
	l.Warn("chapter fetch failed", "work_id", "qidian_1", "index", 3)
	l.Debug("hidden")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "chapter fetch failed")
	assert.Contains(t, string(data), `"work_id":"qidian_1"`)
	assert.Contains(t, string(data), `"index":3`)
	assert.NotContains(t, string(data), "hidden")
	assert.NotContains(t, string(data), colorReset)
}

func TestNew_FileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	for _, msg := range []string{"first", "second"} {
		l, _ := newBuffered(t, Config{File: path})
		l.Info(msg)
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DeBuG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	l, buf := newBuffered(t, Config{Level: slog.LevelWarn, Format: "pretty"})
	l.Info("skipped")
	l.Warn("kept")
	l.Error("also kept")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "ERR")
}

func TestPrettyHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, nil))

	logger.WithGroup("download").With("work_id", "qidian_1").Info("progress",
		"percent", 40,
		slog.Group("chapter", "index", 2, "title", "Crimson Night"),
	)

	out := buf.String()
	assert.Contains(t, out, "download.work_id=qidian_1")
	assert.Contains(t, out, "download.percent=40")
	assert.Contains(t, out, "download.chapter.index=2")
	assert.Contains(t, out, `download.chapter.title="Crimson Night"`)
}

func TestPrettyHandler_WithAttrsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewPrettyHandler(&buf, nil))

	a := base.With("source", "qidian")
	b := base.With("source", "jjwxc")
	a.Info("one")
	b.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "source=qidian")
	assert.NotContains(t, lines[0], "jjwxc")
	assert.Contains(t, lines[1], "source=jjwxc")
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true}))
	logger.Info("test message")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestPrettyHandler_EmptyGroupReturnsSame(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, h.WithGroup(""))
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `"two words"`, formatValue(slog.StringValue("two words")))
	assert.Equal(t, "2024-05-01T12:00:00Z", formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "1.5s", formatValue(slog.DurationValue(1500*time.Millisecond)))
	assert.Equal(t, "42", formatValue(slog.IntValue(42)))
	assert.Equal(t, "true", formatValue(slog.BoolValue(true)))
}

func TestFormatLevel(t *testing.T) {
	s, c := formatLevel(slog.LevelWarn)
	assert.Equal(t, "WRN", s)
	assert.Equal(t, colorYellow, c)

	s, _ = formatLevel(slog.LevelWarn + 2)
	assert.Equal(t, "WARN+2", s)
}

func TestLogger_WithError(t *testing.T) {
	l, buf := newBuffered(t, Config{Format: "json"})

	l.WithError(errors.New("database is locked")).Error("save failed")
	assert.Contains(t, buf.String(), `"error":"database is locked"`)

	assert.Same(t, l, l.WithError(nil))
}

func TestLogger_WithField(t *testing.T) {
	l, buf := newBuffered(t, Config{Format: "json"})
	l.WithField("work_id", "qidian_7").Info("saved")

	assert.Contains(t, buf.String(), `"work_id":"qidian_7"`)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nowhere")
	assert.NoError(t, l.Close())
}
