// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the evals YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when EVALS_CONFIG is unset.
	DefaultPath = ".evals/config.yaml"

	// EnvPath names the environment variable overriding DefaultPath.
	EnvPath = "EVALS_CONFIG"

	BackendFile   = "file"
	BackendBadger = "badger"
)

// ErrInvalidConfig is returned when a loaded config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the on-disk configuration.
type Config struct {
	// ResultsDir is the file backend root; one subdirectory per session.
	ResultsDir string `yaml:"results_dir" validate:"required"`

	// Backend selects the run store.
	Backend string `yaml:"backend" validate:"required,oneof=file badger"`

	// BadgerDir is the badger data directory, required for that backend.
	BadgerDir string `yaml:"badger_dir" validate:"required_if=Backend badger"`

	// DefaultSession is used when a command is given no --session.
	DefaultSession string `yaml:"default_session" validate:"required,max=128,excludesall=/\\,startsnotwith=."`

	// ReadConcurrency bounds parallel record reads in the file backend.
	ReadConcurrency int `yaml:"read_concurrency" validate:"gte=1,lte=256"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ResultsDir:      ".evals/sessions",
		Backend:         BackendFile,
		BadgerDir:       ".evals/badger",
		DefaultSession:  "default",
		ReadConcurrency: 8,
		Log:             LogConfig{Level: "info"},
	}
}

// Path returns the config file location, honouring EVALS_CONFIG.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and validates the config at path.
//
// Description:
//
//	Keys absent from the file keep their Default values. Unknown keys are
//	rejected so a typo does not silently fall back to a default. A missing
//	or empty file yields Default.
//
// Inputs:
//
//	path - YAML file location.
//
// Outputs:
//
//	Config - The effective configuration.
//	error - Read, parse, or validation failure. Validation failures wrap
//	        ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Write stores cfg at path as YAML, creating parent directories.
func Write(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}
