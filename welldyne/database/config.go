package database

import (
	"github.com/maleexcel/welldyne-app/conf"
	"github.com/maleexcel/welldyne-app/log"
	"github.com/pkg/errors"
)

type Config struct {
	MaxOpenConns       int `conf:"WELLDYNE_DB_MAX_OPEN_CONNS" conf_default:"20"`
	MaxIdleConns       int `conf:"WELLDYNE_DB_MAX_IDLE_CONNS" conf_default:"10"`
	ConnMaxLifetimeMin int `conf:"WELLDYNE_DB_CONN_MAX_LIFETIME_MIN" conf_default:"5"`
	ConnMaxIdleTime    int `conf:"WELLDYNE_DB_CONN_MAX_IDLE_TIME" conf_default:"30"`

	DatabaseURL string `conf:"DATABASE_URL"`
}

func LoadConfig() (cfg *Config, err error) {
	cfg = &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("invalid config, DatabaseURL must be set")
	}

	log.Worker.Info("Successfully loaded configuration for Database.")

	return cfg, nil
}
