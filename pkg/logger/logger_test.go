package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	require.NotNil(t, logger)
	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)

	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back to global logger", func(t *testing.T) {
		retrieved := G(context.Background())
		require.NotNil(t, retrieved)
		assert.Equal(t, L.Logger, retrieved.Logger)
	})

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck
		assert.Equal(t, L, G(nil))
	})

	t.Run("context logger", func(t *testing.T) {
		entry := logrus.NewEntry(logrus.New()).WithField("skill", "root-skill")
		ctx := WithLogger(context.Background(), entry)

		retrieved := G(ctx)
		assert.Equal(t, "root-skill", retrieved.Data["skill"])
	})
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.Formatter = &logrus.JSONFormatter{}

	ctx := WithLogger(context.Background(), logrus.NewEntry(l).WithField("run", "1"))
	ctx = WithFields(ctx, logrus.Fields{"skill": "a", "target": "codex"})

	G(ctx).Info("installed")

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "1", logEntry["run"])
	assert.Equal(t, "a", logEntry["skill"])
	assert.Equal(t, "codex", logEntry["target"])
}

func TestSetLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)

	setLoggerFormat(l, FormatJSON)
	logrus.NewEntry(l).Warn("lock write failed")

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "warning", logEntry["logLevel"])
	assert.Equal(t, "lock write failed", logEntry["message"])

	timestamp, ok := logEntry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, timestamp)
	assert.NoError(t, err)

	setLoggerFormat(l, FormatText)
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	err := SetLogLevel("loud")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "loud"))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatFmt},
		{in: "json", want: FormatJSON},
		{in: " JSON ", want: FormatJSON},
		{in: "text", want: FormatText},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigure(t *testing.T) {
	originalLevel := L.Logger.GetLevel()
	originalFormatter := L.Logger.Formatter
	defer func() {
		L.Logger.SetLevel(originalLevel)
		L.Logger.Formatter = originalFormatter
	}()

	require.NoError(t, Configure("warn", "json"))
	assert.Equal(t, logrus.WarnLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	assert.Error(t, Configure("warn", "xml"))
	assert.Error(t, Configure("chatty", "fmt"))
}
