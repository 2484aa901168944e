package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/moralgraph/simulator/internal/errors"
)

// Config holds the server configuration, loaded from environment variables
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DataDir  string `env:"DATA_DIR" envDefault:"./data"`
	RedisURL string `env:"REDIS_URL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Simulation bounds
	DefaultParticipants int `env:"DEFAULT_PARTICIPANTS" envDefault:"100"`
	MaxParticipants     int `env:"MAX_PARTICIPANTS" envDefault:"1000"`
	MaxInteractions     int `env:"MAX_INTERACTIONS_PER_PARTICIPANT" envDefault:"50"`
	SimulationWorkers   int `env:"SIMULATION_WORKERS" envDefault:"8"`

	IPRateLimitPerMin int           `env:"IP_RATE_LIMIT_PER_MIN" envDefault:"60"`
	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"15m"`
}

// Load parses configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.NewConfigurationError("parsing environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the simulation engine cannot honor
func (c *Config) Validate() error {
	if c.DefaultParticipants <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("DEFAULT_PARTICIPANTS must be positive, got %d", c.DefaultParticipants))
	}
	if c.MaxParticipants <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("MAX_PARTICIPANTS must be positive, got %d", c.MaxParticipants))
	}
	if c.DefaultParticipants > c.MaxParticipants {
		return errors.NewConfigurationError(
			fmt.Sprintf("DEFAULT_PARTICIPANTS %d exceeds MAX_PARTICIPANTS %d",
				c.DefaultParticipants, c.MaxParticipants))
	}
	if c.MaxInteractions <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("MAX_INTERACTIONS_PER_PARTICIPANT must be positive, got %d", c.MaxInteractions))
	}
	if c.SimulationWorkers <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("SIMULATION_WORKERS must be positive, got %d", c.SimulationWorkers))
	}
	return nil
}
