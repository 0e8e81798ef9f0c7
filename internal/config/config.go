// Package config loads engine configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Server struct {
	Addr string `default:":8080" envconfig:"ADDR"`
}

type Redis struct {
	// Addr is the remote store address. Empty disables the remote tier.
	Addr    string        `default:"" envconfig:"ADDR"`
	DB      int           `default:"0" envconfig:"DB"`
	Timeout time.Duration `default:"250ms" envconfig:"TIMEOUT"`
}

type Cache struct {
	LocalCapacity int           `default:"1000" envconfig:"LOCAL_CAPACITY"`
	DefaultTTL    time.Duration `default:"5m" envconfig:"DEFAULT_TTL"`
}

type Domain struct {
	SweepInterval time.Duration `default:"1m" envconfig:"SWEEP_INTERVAL"`
}

type Webhook struct {
	// Secret signs inbound payloads. Empty disables signature verification
	// (development mode only).
	Secret string `default:"" envconfig:"SECRET"`
}

type RateLimit struct {
	RequestsPerMinute int `default:"60" envconfig:"REQUESTS_PER_MINUTE"`
}

type OrderLimits struct {
	MaxPerHour       int           `default:"10" envconfig:"MAX_PER_HOUR"`
	MaxPerDay        int           `default:"50" envconfig:"MAX_PER_DAY"`
	BlockDuration    time.Duration `default:"30m" envconfig:"BLOCK_DURATION"`
	WarningThreshold int           `default:"5" envconfig:"WARNING_THRESHOLD"`
	CleanupInterval  time.Duration `default:"10m" envconfig:"CLEANUP_INTERVAL"`
}

type Log struct {
	Level  string `default:"info" envconfig:"LEVEL"`
	Pretty bool   `default:"false" envconfig:"PRETTY"`

	// Components overrides the level per component, e.g. "cache:debug,webhook:warn".
	Components map[string]string `envconfig:"COMPONENTS"`
}

type Config struct {
	Server      Server
	Redis       Redis
	Cache       Cache
	Domain      Domain
	Webhook     Webhook
	RateLimit   RateLimit
	OrderLimits OrderLimits
	Log         Log
}

// Load reads configuration from STORECACHE_* environment variables.
func Load() (Config, error) {
	var c Config

	if err := envconfig.Process("STORECACHE", &c); err != nil {
		return Config{}, err
	}

	return c, nil
}
