package config

import "github.com/spf13/pflag"

type loadConfig struct {
	file      string
	flags     *pflag.FlagSet
	envPrefix string
}

func defaultLoadConfig() loadConfig {
	return loadConfig{envPrefix: DefaultEnvPrefix}
}

// Option configures Load.
type Option func(*loadConfig)

// WithFile loads the given YAML file. A missing file is an error.
// Without it, sqlsentinel.yaml or sqlsentinel.yml in the working directory
// is used when present.
func WithFile(path string) Option {
	return func(c *loadConfig) {
		c.file = path
	}
}

// WithFlags layers explicitly set flags on top of the environment.
// Flag names are kebab case; "log-sql-parse-errors" sets log_sql_parse_errors
// and "log-level" sets log.level.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(c *loadConfig) {
		c.flags = fs
	}
}

// WithEnvPrefix overrides the environment variable prefix.
// Defaults to SQLSENTINEL_.
func WithEnvPrefix(prefix string) Option {
	return func(c *loadConfig) {
		if prefix != "" {
			c.envPrefix = prefix
		}
	}
}
