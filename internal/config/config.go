package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v6"
)

type (
	// Config holds every construction-time constant the service consumes.
	Config struct {
		HTTP      HTTPConfig      `envPrefix:"HTTP_"`
		Database  DatabaseConfig  `envPrefix:"DATABASE_"`
		Detection DetectionConfig `envPrefix:"DETECTION_"`
		Cache     CacheConfig     `envPrefix:"CACHE_"`
		Upload    UploadConfig    `envPrefix:"UPLOAD_"`
		Runner    RunnerConfig    `envPrefix:"RUNNER_"`
		Auth      AuthConfig      `envPrefix:"JWT_"`
	}

	HTTPConfig struct {
		Addr            string        `env:"ADDR" envDefault:":8080"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	}

	DatabaseConfig struct {
		DSN string `env:"DSN" envDefault:"host=postgres user=postgres password=postgres dbname=facegate port=5432 sslmode=disable"`
	}

	DetectionConfig struct {
		Addr          string        `env:"ADDR" envDefault:"face-detection:50051"`
		CallDeadline  time.Duration `env:"CALL_DEADLINE" envDefault:"5s"`
		KeepAliveTime time.Duration `env:"KEEPALIVE_TIME" envDefault:"30s"`
	}

	CacheConfig struct {
		TTL      time.Duration `env:"TTL" envDefault:"60m"`
		Capacity int           `env:"CAPACITY" envDefault:"100"`
	}

	UploadConfig struct {
		MaxBytes          int64    `env:"MAX_BYTES" envDefault:"5242880"`
		AllowedMediaTypes []string `env:"ALLOWED_MEDIA_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png"`
	}

	RunnerConfig struct {
		QueueDepth  int `env:"QUEUE_DEPTH" envDefault:"25"`
		CoreWorkers int `env:"CORE_WORKERS"`
		MaxWorkers  int `env:"MAX_WORKERS"`
	}

	AuthConfig struct {
		Secret   string `env:"SECRET" envDefault:"dev-secret"`
		Audience string `env:"AUDIENCE"`
	}
)

// Load parses the configuration from the environment and fills in the
// parallelism-derived worker defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.Runner.CoreWorkers <= 0 {
		cfg.Runner.CoreWorkers = runtime.NumCPU() + 1
	}
	if cfg.Runner.MaxWorkers < cfg.Runner.CoreWorkers {
		cfg.Runner.MaxWorkers = runtime.NumCPU() * 2
	}
	if cfg.Runner.MaxWorkers < cfg.Runner.CoreWorkers {
		cfg.Runner.MaxWorkers = cfg.Runner.CoreWorkers
	}
	return cfg, nil
}
