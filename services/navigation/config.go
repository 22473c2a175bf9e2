// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigation

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from YAML with environment
// overrides. Zero values are replaced by defaults in applyDefaults.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`
	// FloorPlanDir holds one YAML floor plan per terminal. The directory
	// is watched; edits go live without a restart.
	FloorPlanDir string `yaml:"floor_plan_dir"`
	// TileDBPath is the badger directory for map tiles. Empty runs the
	// tile store in memory, for development and tests.
	TileDBPath string `yaml:"tile_db_path"`
	// AuditLogPath enables the JSONL navigation event audit trail.
	// Empty disables it.
	AuditLogPath string `yaml:"audit_log_path"`

	// RateLimitRPS and RateLimitBurst bound the aggregate request rate.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// Debug switches Gin into debug mode and lowers the log level.
	Debug bool `yaml:"debug"`

	Logging  LoggingConfig  `yaml:"logging"`
	Sessions SessionsConfig `yaml:"sessions"`
	Tiles    TilesConfig    `yaml:"tiles"`
}

// LoggingConfig mirrors pkg/logging knobs that make sense in a file.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
	// Dir enables file logging when set.
	Dir string `yaml:"dir"`
	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// SessionsConfig exposes the commonly tuned session manager knobs.
type SessionsConfig struct {
	MaxSessions     int     `yaml:"max_sessions"`
	DefaultUpdateHz float64 `yaml:"default_update_hz"`
}

// TilesConfig exposes the commonly tuned tile store knobs.
type TilesConfig struct {
	Size         float64 `yaml:"size"`
	CacheEntries int     `yaml:"cache_entries"`
}

// LoadConfig reads a YAML config file and applies environment overrides.
// A missing file is not an error; the defaults plus environment are used.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMINUS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TERMINUS_FLOOR_PLAN_DIR"); v != "" {
		cfg.FloorPlanDir = v
	}
	if v := os.Getenv("TERMINUS_TILE_DB_PATH"); v != "" {
		cfg.TileDBPath = v
	}
	if v := os.Getenv("TERMINUS_AUDIT_LOG_PATH"); v != "" {
		cfg.AuditLogPath = v
	}
	if v := os.Getenv("TERMINUS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.FloorPlanDir == "" {
		c.FloorPlanDir = "./floorplans"
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 500
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
