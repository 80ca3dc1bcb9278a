// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Configuration is resolved in three layers: defaults, then an optional
// YAML file (LoadConfig), then environment variables (applied on top of
// the configuration passed to Configure when the scheduler fleet is
// created). It must be settled before the first task is submitted; the
// scheduler fleet is created exactly once, on first use.

const (
	// EnvSchedNum overrides Config.Schedulers.
	EnvSchedNum = "COSCHED_SCHED_NUM"
	// EnvSchedLog overrides Config.SchedLog.
	EnvSchedLog = "COSCHED_SCHED_LOG"
)

// ErrAlreadyActive is returned by Configure once the scheduler fleet has
// been created.
var ErrAlreadyActive = errors.New("cosched: runtime already active")

// Config controls the scheduler fleet.
type Config struct {
	// Schedulers is the number of schedulers (and OS threads) to run.
	// Defaults to runtime.NumCPU().
	Schedulers int `yaml:"schedulers"`

	// SchedLog enables verbose per-operation scheduling logs at Debug
	// level via the package logger.
	SchedLog bool `yaml:"sched_log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Schedulers: runtime.NumCPU(),
	}
}

// LoadConfig reads a YAML configuration file, layered over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("cosched: config %q: %w", path, err)
	}
	if cfg.Schedulers <= 0 {
		cfg.Schedulers = runtime.NumCPU()
	}
	return cfg, nil
}

// applyEnv layers environment overrides onto cfg.
func applyEnv(cfg Config) Config {
	if v := os.Getenv(EnvSchedNum); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Schedulers = n
		}
	}
	if v := os.Getenv(EnvSchedLog); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SchedLog = b
		}
	}
	return cfg
}

// Configure replaces the pending configuration. It returns ErrAlreadyActive
// if the scheduler fleet has already been created.
func Configure(cfg Config) error {
	if cfg.Schedulers <= 0 {
		cfg.Schedulers = runtime.NumCPU()
	}
	configMu.Lock()
	defer configMu.Unlock()
	if managerActive() {
		return ErrAlreadyActive
	}
	pendingConfig = cfg
	return nil
}
