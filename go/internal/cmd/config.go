package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/webwizzz/chess-sub000/go/internal/game"
	"github.com/webwizzz/chess-sub000/go/internal/session"
)

// Config is the client configuration file. Every field can be overridden
// by environment variables; see applyEnv.
type Config struct {
	Gateway struct {
		URL      string `yaml:"url"`
		GameID   string `yaml:"game_id"`
		PlayerID string `yaml:"player_id"`
	} `yaml:"gateway"`
	Game struct {
		Variant    string `yaml:"variant"`
		Color      string `yaml:"color"`
		TickMillis int    `yaml:"tick_millis"`
	} `yaml:"game"`
	State struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"state"`
	LogLevel string `yaml:"log_level"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()

	if config.Gateway.URL == "" {
		config.Gateway.URL = "ws://localhost:8080/ws/game"
	}
	if config.Game.Variant == "" {
		config.Game.Variant = string(game.VariantStandard)
	}
	if config.Game.Color == "" {
		config.Game.Color = string(game.White)
	}
	if config.State.ListenAddr == "" {
		config.State.ListenAddr = ":8090"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.Gateway.GameID == "" {
		return nil, fmt.Errorf("game_id is required (GATEWAY_GAME_ID or config file)")
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Gateway.URL = getEnv("GATEWAY_URL", c.Gateway.URL)
	c.Gateway.GameID = getEnv("GATEWAY_GAME_ID", c.Gateway.GameID)
	c.Gateway.PlayerID = getEnv("GATEWAY_PLAYER_ID", c.Gateway.PlayerID)
	c.Game.Variant = getEnv("GAME_VARIANT", c.Game.Variant)
	c.Game.Color = getEnv("GAME_COLOR", c.Game.Color)
	c.Game.TickMillis = getEnvAsInt("GAME_TICK_MILLIS", c.Game.TickMillis)
	c.State.ListenAddr = getEnv("STATE_LISTEN_ADDR", c.State.ListenAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// sessionConfig maps the file config onto the engine config.
func (c *Config) sessionConfig() (session.Config, error) {
	variant := game.Variant(c.Game.Variant)
	switch variant {
	case game.VariantStandard, game.VariantDecay, game.VariantCrazyhouse, game.VariantSixPointer:
	default:
		return session.Config{}, fmt.Errorf("unknown variant %q", c.Game.Variant)
	}

	color := game.Color(c.Game.Color)
	if !color.Valid() {
		return session.Config{}, fmt.Errorf("unknown color %q", c.Game.Color)
	}

	cfg := session.DefaultConfig(variant, color)
	if c.Game.TickMillis > 0 {
		cfg.TickInterval = time.Duration(c.Game.TickMillis) * time.Millisecond
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
