// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: GATEKEEPER_RESET__LINK_BASE_URL sets reset.link_base_url.
const EnvPrefix = "GATEKEEPER_"

// wellKnownEnv are unprefixed variables honoured for compatibility with
// common deployment tooling.
var wellKnownEnv = map[string]string{
	"DATABASE_URL": "database.url",
	"REDIS_URL":    "redis.url",
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]struct{}{
	"server.trusted_proxies":      {},
	"server.cors_allowed_origins": {},
}

// FlagKeys maps command-line flag names to configuration keys. Flags not
// listed here are ignored by Load.
var FlagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"redis-url":    "redis.url",
	"concurrency":  "worker.concurrency",
}

// Options controls Load.
type Options struct {
	// Path is the config file. Empty means the XDG default, which may be absent.
	Path string
	// EnvFile is a dotenv file loaded before reading the environment.
	EnvFile string
	// Flags are command-line overrides; only flags the user set are applied.
	Flags *pflag.FlagSet
}

// Load builds the configuration from every source and validates it.
func Load(opts Options) (*Config, error) {
	cfg, err := LoadUnvalidated(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate, for commands that need
// only part of the configuration.
func LoadUnvalidated(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").
				With("path", opts.EnvFile).
				Wrapf(auth.ErrConfiguration, "load env file: %v", err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, err := resolvePath(opts.Path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if err := k.Load(env.ProviderWithValue("", ".", unprefixedEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagValue(opts.Flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			Wrapf(auth.ErrConfiguration, "decode configuration: %v", err)
	}
	return &cfg, nil
}

// resolvePath returns the file to load, or "" when the default file does
// not exist. An explicit path must exist.
func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").
				With("path", path).
				Wrapf(auth.ErrConfiguration, "config file: %v", err)
		}
		return path, nil
	}

	path = xdg.ConfigFile()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return path, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code("CONFIG_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").
			With("path", path).
			Wrapf(auth.ErrConfiguration, "%s", FormatSchemaError(err))
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
	}
	return nil
}

func prefixedEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	return key, envValue(key, value)
}

func unprefixedEnv(key, value string) (string, any) {
	mapped, ok := wellKnownEnv[key]
	if !ok || value == "" {
		return "", nil
	}
	return mapped, value
}

func envValue(key, value string) any {
	if _, ok := listKeys[key]; !ok {
		return value
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func flagValue(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := FlagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
