package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestChildLoggersCarryContextFields(t *testing.T) {
	cases := []struct {
		field string
		value string
		child func(string) zerolog.Logger
	}{
		{"component", "metrics", WithComponent},
		{"project_id", "prj_1", WithProject},
		{"service_id", "srv_1", WithService},
		{"deployment_hash", "dpl_dkr_abc", WithDeployment},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

		logger := tc.child(tc.value)
		logger.Info().Msg("hello")

		line := lastLine(t, &buf)
		assert.Equal(t, tc.value, line[tc.field])
		assert.Equal(t, "hello", line["message"])
	}
}

func TestChildLoggerErrorEvents(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("metrics")
	logger.Error().Str("addr", ":9100").Msg("listener stopped")

	line := lastLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, ":9100", line["addr"])
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("health")
	logger.Info().Msg("suppressed")
	assert.Zero(t, buf.Len())

	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})
}
