package app

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment. IDENTITY_JWT_SECRET is the only
// required value; everything else has a workable default.
type Config struct {
	Issuer    string `env:"IDENTITY_ISSUER" envDefault:"identity"`
	JWTSecret string `env:"IDENTITY_JWT_SECRET"`

	DatabaseFile string `env:"IDENTITY_DATABASE_FILE" envDefault:"identity.db"`
	PepperFile   string `env:"IDENTITY_PEPPER_FILE" envDefault:"pepper"`

	AccessTokenTTL  time.Duration `env:"IDENTITY_ACCESS_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"IDENTITY_REFRESH_TTL" envDefault:"168h"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

var errNoSecret = errors.New("IDENTITY_JWT_SECRET must be set")

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, errNoSecret
	}

	return cfg, nil
}
