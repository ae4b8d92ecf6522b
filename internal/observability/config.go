package observability

import (
	"strings"

	"github.com/smallbiznis/catalogsync/internal/config"
)

// Config is the resolved telemetry view shared by the logger, tracer, meter
// and the HTTP engine.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled  bool
	OTLPEndpoint string
	OTLPProtocol string
	SampleRatio  float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "catalogsync"
	}
	protocol := strings.TrimSpace(cfg.Telemetry.OTLPProtocol)
	if protocol != "http" {
		protocol = "grpc"
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:  name,
		Environment:  strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:      strings.TrimSpace(cfg.AppVersion),
		LogLevel:     strings.TrimSpace(cfg.Telemetry.LogLevel),
		LogFormat:    strings.TrimSpace(cfg.Telemetry.LogFormat),
		OtelEnabled:  cfg.Telemetry.OtelEnabled,
		OTLPEndpoint: strings.TrimSpace(cfg.Telemetry.OTLPEndpoint),
		OTLPProtocol: protocol,
		SampleRatio:  ratio,
	}
}

// Debug turns on stack traces, gin debug mode and verbose request errors.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
