package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/fragment"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

// Config is the platform configuration. Zero values fall back to the
// defaults from DefaultConfig.
type Config struct {
	// ListenAddr is the HTTP API listen address.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the Prometheus metrics listen address. Empty disables
	// the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogJSON switches from the console writer to JSON output.
	LogJSON bool `yaml:"log_json"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Seed drives destination selection and pattern evolution. Zero seeds
	// from the clock.
	Seed int64 `yaml:"seed"`

	Fragmentation  fragment.EngineConfig       `yaml:"fragmentation"`
	Transport      transport.CoordinatorConfig `yaml:"transport"`
	Authentication protoauth.Config            `yaml:"authentication"`

	// Postgres enables the forensic audit store when set.
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`

	// DrainDuration is the wait after marking the server not ready before
	// shutdown begins.
	DrainDuration time.Duration `yaml:"drain_duration"`

	// GracefulShutdownDuration bounds the wait for in-flight requests.
	GracefulShutdownDuration time.Duration `yaml:"graceful_shutdown_duration"`
}

// DefaultConfig returns the stock platform configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		LogLevel:                 "info",
		Fragmentation:            fragment.DefaultEngineConfig(),
		Transport:                transport.DefaultCoordinatorConfig(),
		Authentication:           protoauth.DefaultConfig(),
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return config, nil
}
