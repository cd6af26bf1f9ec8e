// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

const (
	CountdownModeClient = "client"
	CountdownModeServer = "server"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`

	// First level is active at boot; GameFinished rotates through the list.
	Levels           []string      `env:"LEVELS" envSeparator:"," envDefault:"lava"`
	RoomCapacity     int           `env:"ROOM_CAPACITY" envDefault:"10"`
	CountdownSeconds int           `env:"COUNTDOWN_SECONDS" envDefault:"10"`
	CountdownMode    string        `env:"COUNTDOWN_MODE" envDefault:"client"`
	CountdownTick    time.Duration `env:"COUNTDOWN_TICK" envDefault:"1s"`

	Ledger LedgerConfig

	JWTSecret string `env:"JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

type LedgerConfig struct {
	// Empty RPC URL runs the in-process ledger.
	RPCURL       string        `env:"LEDGER_RPC_URL"`
	Contract     string        `env:"LEDGER_CONTRACT"`
	NFTContract  string        `env:"LEDGER_NFT_CONTRACT"`
	PrivateKey   string        `env:"LEDGER_PRIVATE_KEY"`
	ChainID      int64         `env:"LEDGER_CHAIN_ID" envDefault:"31337"`
	StartBlock   uint64        `env:"LEDGER_START_BLOCK" envDefault:"0"`
	WriteTimeout time.Duration `env:"LEDGER_WRITE_TIMEOUT" envDefault:"30s"`
	WriteRetries uint          `env:"LEDGER_WRITE_RETRIES" envDefault:"0"`

	// Local ledger only: automatic upkeep cadence, zero means manual.
	LocalUpkeep time.Duration `env:"LEDGER_LOCAL_UPKEEP" envDefault:"0s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the server configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	levels := c.Levels[:0]
	for _, l := range c.Levels {
		if l = strings.TrimSpace(l); l != "" {
			levels = append(levels, l)
		}
	}
	c.Levels = levels
	if len(c.Levels) == 0 {
		return fmt.Errorf("config: at least one level required")
	}
	if c.RoomCapacity < 1 || c.RoomCapacity > protocol.MaxRoomPlayers {
		return fmt.Errorf("config: ROOM_CAPACITY must be between 1 and %d, got %d", protocol.MaxRoomPlayers, c.RoomCapacity)
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("config: COUNTDOWN_SECONDS must not be negative, got %d", c.CountdownSeconds)
	}
	switch c.CountdownMode {
	case CountdownModeClient, CountdownModeServer:
	default:
		return fmt.Errorf("config: unknown COUNTDOWN_MODE %q", c.CountdownMode)
	}
	if c.Ledger.RPCURL != "" {
		if c.Ledger.Contract == "" {
			return fmt.Errorf("config: LEDGER_CONTRACT required with LEDGER_RPC_URL")
		}
		if c.Ledger.PrivateKey == "" {
			return fmt.Errorf("config: LEDGER_PRIVATE_KEY required with LEDGER_RPC_URL")
		}
	}
	return nil
}
