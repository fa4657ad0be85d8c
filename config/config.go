// Package config loads sqlsentinel settings from layered sources.
//
// Precedence, lowest to highest: built-in defaults, a YAML file, environment
// variables prefixed with SQLSENTINEL_, command-line flags, and values set at
// runtime through Source.Set.
//
// Environment variables map to keys by dropping the prefix and lower casing;
// a double underscore separates nested keys:
//
//	SQLSENTINEL_LOG_SQL_PARSE_ERRORS=false  -> log_sql_parse_errors
//	SQLSENTINEL_LOG__LEVEL=debug            -> log.level
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// Configuration keys.
const (
	KeyLogSQLParseErrors = "log_sql_parse_errors"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"

	KeyServerAddr         = "server.addr"
	KeyServerRateLimit    = "server.rate_limit"
	KeyServerBurst        = "server.burst"
	KeyServerMaxBatchSize = "server.max_batch_size"

	KeyRemoteURL     = "remote.url"
	KeyRemoteTimeout = "remote.timeout"
)

// ErrNoFile is returned by Watch when no config file was loaded.
var ErrNoFile = errors.New("no config file to watch")

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "SQLSENTINEL_"

// File names looked up in the working directory when no file is given.
var defaultFileNames = []string{"sqlsentinel.yaml", "sqlsentinel.yml"}

// flagKeys maps flag names that do not follow the kebab to snake rule.
var flagKeys = map[string]string{
	"log-level":      KeyLogLevel,
	"log-format":     KeyLogFormat,
	"addr":           KeyServerAddr,
	"rate-limit":     KeyServerRateLimit,
	"burst":          KeyServerBurst,
	"max-batch-size": KeyServerMaxBatchSize,
	"remote":         KeyRemoteURL,
	"timeout":        KeyRemoteTimeout,
}

var _ normalizer.Settings = (*Source)(nil)

// Source is a live view of the layered configuration. It is safe for
// concurrent use; every getter reads the current value under a read lock.
type Source struct {
	cfg loadConfig

	mu        sync.RWMutex
	k         *koanf.Koanf
	fileUsed  string
	overrides map[string]any
}

// Load builds a Source from the configured layers.
//
// Example:
//
//	src, err := config.Load(
//	    config.WithFile("sqlsentinel.yaml"),
//	    config.WithFlags(cmd.Flags()),
//	)
//	if err != nil {
//	    return err
//	}
//	n := normalizer.New(normalizer.WithSettings(src))
func Load(opts ...Option) (*Source, error) {
	cfg := defaultLoadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Source{
		cfg:       cfg,
		overrides: make(map[string]any),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads every layer again and swaps the result in atomically.
// Values set with Set are kept on top.
func (s *Source) Reload() error {
	k, fileUsed, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.overrides {
		if err := k.Set(key, v); err != nil {
			return fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}
	s.k = k
	s.fileUsed = fileUsed
	return nil
}

func (s *Source) load() (*koanf.Koanf, string, error) {
	k := koanf.New(".")

	// 1. defaults
	if err := k.Load(confmap.Provider(map[string]any{
		KeyLogSQLParseErrors:  true,
		KeyLogLevel:           "info",
		KeyLogFormat:          "json",
		KeyServerAddr:         ":8080",
		KeyServerMaxBatchSize: 1000,
		KeyRemoteTimeout:      "5s",
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. config file
	fileUsed, err := findConfigFile(s.cfg.file)
	if err != nil {
		return nil, "", err
	}
	if fileUsed != "" {
		if err := k.Load(file.Provider(fileUsed), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", fileUsed, err)
		}
	}

	// 3. environment: SQLSENTINEL_LOG__LEVEL -> log.level
	prefix := s.cfg.envPrefix
	if err := k.Load(env.Provider(prefix, ".", func(v string) string {
		key := strings.ToLower(strings.TrimPrefix(v, prefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. flags, only those set explicitly
	if flags := s.cfg.flags; flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	return k, fileUsed, nil
}

// findConfigFile returns the explicit path when given, erroring if it does
// not exist, or else the first default file name present in the working
// directory. Returns "" when there is none.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, name := range defaultFileNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", name, err)
		}
	}
	return "", nil
}

// Set changes key at runtime. The new value is visible to the next read and
// survives Reload.
func (s *Source) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.k.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	s.overrides[key] = value
	return nil
}

// LogSQLParseErrors reports whether normalization failures should be logged.
func (s *Source) LogSQLParseErrors() bool {
	return s.Bool(KeyLogSQLParseErrors)
}

// LogLevel returns the configured log level name.
func (s *Source) LogLevel() string {
	return s.String(KeyLogLevel)
}

// LogFormat returns the configured log format, "json" or "console".
func (s *Source) LogFormat() string {
	return s.String(KeyLogFormat)
}

// Bool returns the boolean value of key, false when unset.
func (s *Source) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Bool(key)
}

// String returns the string value of key, "" when unset.
func (s *Source) String(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.String(key)
}

// Int returns the integer value of key, 0 when unset.
func (s *Source) Int(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Int(key)
}

// Float64 returns the float value of key, 0 when unset.
func (s *Source) Float64(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Float64(key)
}

// Duration returns the duration value of key, parsing strings such as
// "5s". Returns 0 when unset.
func (s *Source) Duration(key string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k.Duration(key)
}

// Watch reloads the source every time the config file changes, until ctx
// is cancelled. onReload, when not nil, receives the result of every
// reload. Returns ErrNoFile when no config file was loaded.
//
// Example:
//
//	err := src.Watch(ctx, func(err error) {
//	    if err != nil {
//	        logger.Error().Err(err).Msg("Failed to reload config")
//	    }
//	})
func (s *Source) Watch(ctx context.Context, onReload func(error)) error {
	path := s.FileUsed()
	if path == "" {
		return ErrNoFile
	}

	fp := file.Provider(path)
	if err := fp.Watch(func(_ interface{}, err error) {
		if err == nil {
			err = s.Reload()
		}
		if onReload != nil {
			onReload(err)
		}
	}); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}

// FileUsed returns the config file that was loaded, if any.
func (s *Source) FileUsed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileUsed
}
