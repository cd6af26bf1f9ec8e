package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envTestConfig struct {
	Port int `env:"CRYPTO_JUMPER_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CRYPTO_JUMPER_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, []string{"lava"}, cfg.Levels)
	assert.Equal(t, 10, cfg.RoomCapacity)
	assert.Equal(t, 10, cfg.CountdownSeconds)
	assert.Equal(t, CountdownModeClient, cfg.CountdownMode)
	assert.Equal(t, time.Second, cfg.CountdownTick)
	assert.Equal(t, 30*time.Second, cfg.Ledger.WriteTimeout)
	assert.Zero(t, cfg.Ledger.WriteRetries)
}

func TestLoadLevelsList(t *testing.T) {
	t.Setenv("LEVELS", "lava, construction ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"lava", "construction"}, cfg.Levels)
}

func TestLoadRejectsOversizedRooms(t *testing.T) {
	t.Setenv("ROOM_CAPACITY", "12")

	_, err := Load()
	assert.ErrorContains(t, err, "ROOM_CAPACITY")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"no levels":      func(c *Config) { c.Levels = []string{" "} },
		"zero capacity":  func(c *Config) { c.RoomCapacity = 0 },
		"over capacity":  func(c *Config) { c.RoomCapacity = 11 },
		"bad mode":       func(c *Config) { c.CountdownMode = "both" },
		"rpc no address": func(c *Config) { c.Ledger.RPCURL = "ws://localhost:8545"; c.Ledger.PrivateKey = "aa" },
		"rpc no key":     func(c *Config) { c.Ledger.RPCURL = "ws://localhost:8545"; c.Ledger.Contract = "0x01" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Config{Levels: []string{"lava"}, RoomCapacity: 10, CountdownMode: CountdownModeClient}
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
