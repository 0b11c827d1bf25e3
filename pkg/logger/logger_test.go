package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_Levels(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	tests := []struct {
		name  string
		level string
		dev   bool
		want  logrus.Level
	}{
		{"explicit", "warn", false, logrus.WarnLevel},
		{"upper case", "ERROR", true, logrus.ErrorLevel},
		{"development default", "", true, logrus.DebugLevel},
		{"production default", "", false, logrus.InfoLevel},
		{"invalid", "chatty", false, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InitLogger(tt.level, tt.dev).GetLevel())
		})
	}
}

func TestInitLogger_EnvLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "trace")
	assert.Equal(t, logrus.TraceLevel, InitLogger("", false).GetLevel())
}

func TestForRun(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	ForRun(log, "run-1", "props", "2025-01-14", "").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "props", line["generator"])
	assert.Equal(t, "2025-01-14", line["date"])
	assert.Equal(t, "pick-research", line["service"])
	assert.NotContains(t, line, "sport")
}
