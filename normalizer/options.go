package normalizer

import "github.com/rs/zerolog"

// Settings exposes the runtime configuration the normalizer consults.
// It is read on every failed normalization, never cached, so a change made
// through the source takes effect on the next call.
type Settings interface {
	// LogSQLParseErrors reports whether parse failures go to the Reporter.
	LogSQLParseErrors() bool
}

// StaticSettings is a fixed Settings value.
type StaticSettings bool

// LogSQLParseErrors implements Settings.
func (s StaticSettings) LogSQLParseErrors() bool {
	return bool(s)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithReporter sets the sink for parse failures.
// If not called, failures are logged by a LogReporter writing to stderr.
//
// Example:
//
//	n := normalizer.New(normalizer.WithReporter(normalizer.ReporterFunc(
//	    func(ctx context.Context, q normalizer.RawQuery, err error) {
//	        failures.Add(1)
//	    },
//	)))
func WithReporter(r Reporter) Option {
	return func(n *Normalizer) {
		if r != nil {
			n.reporter = r
		}
	}
}

// WithLogger reports parse failures to the given logger.
//
// Example:
//
//	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
//	n := normalizer.New(normalizer.WithLogger(logger))
func WithLogger(l zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.reporter = LogReporter{Logger: l}
	}
}

// WithSettings sets the configuration source consulted on every call.
// Defaults to StaticSettings(true).
//
// Example:
//
//	src, _ := config.Load(config.WithFile("sqlsentinel.yaml"))
//	n := normalizer.New(normalizer.WithSettings(src))
func WithSettings(s Settings) Option {
	return func(n *Normalizer) {
		if s != nil {
			n.settings = s
		}
	}
}
