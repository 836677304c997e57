package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWriterEmitsCanonicalKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "namereg", "prod")
	logger.Debug("hidden")
	logger.Info("registered", slog.String("name", "alice"), MaskField("salt", "0xdeadbeef"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "registered", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "namereg", line["service"])
	require.Equal(t, "prod", line["env"])
	require.Equal(t, "alice", line["name"])
	require.Equal(t, RedactedValue, line["salt"])
	require.Contains(t, line, "timestamp")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("token", "abc").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.Equal(t, "alice", MaskField("Name", "alice").Value.String())
	require.Contains(t, RedactionAllowlist(), "owner")
}
