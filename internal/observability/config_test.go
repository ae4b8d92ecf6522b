package observability

import (
	"testing"

	"github.com/smallbiznis/catalogsync/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: " Production ",
		Telemetry: config.TelemetryConfig{
			OTLPProtocol:  "grpc/protobuf",
			SamplingRatio: 4,
			LogLevel:      "info",
		},
	})

	assert.Equal(t, "catalogsync", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "grpc", cfg.OTLPProtocol)
	assert.Equal(t, 0.1, cfg.SampleRatio)
	assert.False(t, cfg.Debug())
}

func TestConfigDebug(t *testing.T) {
	assert.True(t, Config{Environment: "local"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
