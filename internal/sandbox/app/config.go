package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config is read from the environment. Every field has a usable default so
// `checkout-sandbox serve` works with no setup.
type Config struct {
	Env       string `env:"ENV,default=dev"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=pretty"`

	Port int `env:"SANDBOX_PORT,default=8080"`

	// PublicURL is how browsers reach the sandbox. ACS and method URLs
	// handed to the SDK are built from it.
	PublicURL string `env:"PUBLIC_URL,default=http://localhost:8080"`

	DatabaseFile string `env:"DATABASE_FILE,default=sandbox.db"`

	// PublicKeys are the merchant keys the gateway accepts.
	PublicKeys []string `env:"PUBLIC_KEYS,default=pk_sandbox,separator=|"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=*,separator=|"`

	SessionTTL          time.Duration `env:"SESSION_TTL,default=30m"`
	LedgerRetention     time.Duration `env:"LEDGER_RETENTION,default=168h"`
	HousekeepingEvery   time.Duration `env:"HOUSEKEEPING_INTERVAL,default=1h"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD,default=10s"`

	// MethodStep makes Start3DS hand out a method URL.
	MethodStep bool `env:"METHOD_STEP,default=true"`
}

// LoadConfig reads and validates the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("SANDBOX_PORT must be between 1 and 65535"))
	}
	if !strings.HasPrefix(c.PublicURL, "http://") && !strings.HasPrefix(c.PublicURL, "https://") {
		errs = append(errs, fmt.Errorf("PUBLIC_URL must be an http(s) URL, got %q", c.PublicURL))
	}
	if len(c.PublicKeys) == 0 {
		errs = append(errs, errors.New("PUBLIC_KEYS must list at least one key"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.HousekeepingEvery <= 0 {
		errs = append(errs, errors.New("HOUSEKEEPING_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// WSURL is the duplex endpoint derived from PublicURL.
func (c Config) WSURL() string {
	base := strings.TrimSuffix(c.PublicURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}
