package normalizer

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Reporter receives a notification every time a statement fails to
// normalize. Implementations must be safe for concurrent use.
type Reporter interface {
	ReportParseError(ctx context.Context, q RawQuery, err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, q RawQuery, err error)

// ReportParseError implements Reporter.
func (f ReporterFunc) ReportParseError(ctx context.Context, q RawQuery, err error) {
	f(ctx, q, err)
}

// LogReporter logs parse failures at error level.
//
// The logger attached to ctx (see zerolog.Ctx) wins over Logger, so request
// scoped fields end up on the failure line. The SQL text itself is never
// logged since it may hold the literals redaction exists to hide.
type LogReporter struct {
	Logger zerolog.Logger
}

// ReportParseError implements Reporter.
func (r LogReporter) ReportParseError(ctx context.Context, q RawQuery, err error) {
	logger := &r.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = l
	}

	event := logger.Error().Err(err).Int("sql_length", len(q.SQL))
	if q.Label != "" {
		event = event.Str("label", q.Label)
	}
	event.Msg("Failed to extract binds")
}

func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
