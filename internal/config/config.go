// Package config loads runtime settings from the environment and game
// balance tuning from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime (non-balance) configuration, parsed from environment
// variables.
type Config struct {
	// Addr is the listen address for the authoritative server.
	Addr string `env:"FLEXPORT_ADDR" envDefault:":8080"`
	// ServerURL is the websocket endpoint a client session connects to.
	// Empty means fully offline play.
	ServerURL string `env:"FLEXPORT_SERVER_URL"`
	// LeaderboardURL is the fire-and-forget score submission endpoint.
	LeaderboardURL string `env:"FLEXPORT_LEADERBOARD_URL"`

	DBPath      string `env:"FLEXPORT_DB" envDefault:"data/flexport.db"`
	BalancePath string `env:"FLEXPORT_BALANCE"`

	PlayerID string `env:"FLEXPORT_PLAYER_ID"`
	Platform string `env:"FLEXPORT_PLATFORM" envDefault:"web"`
	Seed     int64  `env:"FLEXPORT_SEED" envDefault:"42"`

	HeartbeatInterval time.Duration `env:"FLEXPORT_HEARTBEAT" envDefault:"10s"`
	ReconnectBase     time.Duration `env:"FLEXPORT_RECONNECT_BASE" envDefault:"1s"`
	ReconnectCap      time.Duration `env:"FLEXPORT_RECONNECT_CAP" envDefault:"30s"`
	DialTimeout       time.Duration `env:"FLEXPORT_DIAL_TIMEOUT" envDefault:"5s"`
}

// FromEnv parses the runtime configuration from the process environment.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return c, nil
}
