package sql

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sqlsentinel/sql"
)

// config holds the configuration for instrumentation.
type config struct {
	// TracerProvider is the tracer provider to use.
	// If not set, uses the global provider via otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If not set, uses the global provider via otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	Tracer  trace.Tracer
	Meter   metric.Meter
	Metrics *metrics

	// DBSystem identifies the database management system (DBMS) product,
	// e.g. "postgresql". It is also reported as the "adapter" metadata entry.
	DBSystem string

	// DBName is the name of the database being accessed.
	// It is also reported as the "database" metadata entry.
	DBName string

	// InstanceName identifies a specific connection such as "primary" or
	// "replica" and is added as the "db.instance" attribute.
	InstanceName string

	// Normalizer turns raw SQL into titles and redacted statements.
	Normalizer *normalizer.Normalizer

	// Observer receives every query. Defaults to a tracing observer built
	// from this config.
	Observer QueryObserver

	// Fingerprinter, when set, adds a "db.query.fingerprint" attribute to
	// spans of normalized queries.
	Fingerprinter func(sql string) (string, error)

	// DisableQuery omits the redacted "db.statement" attribute from spans.
	DisableQuery bool

	// metadata is built once from DBSystem, DBName and InstanceName.
	metadata map[string]string
}

// newConfig creates a new config with defaults and applies options.
func newConfig(opts ...Option) *config {
	cfg := &config{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// No-op providers are safe here: they simply record nothing.
	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	if cfg.Normalizer == nil {
		cfg.Normalizer = normalizer.New()
	}
	cfg.metadata = cfg.buildMetadata()
	if cfg.Observer == nil {
		cfg.Observer = &tracingObserver{cfg: cfg}
	}

	return cfg
}

func (cfg *config) buildMetadata() map[string]string {
	md := make(map[string]string, 3)
	if cfg.DBSystem != "" {
		md[MetadataAdapter] = cfg.DBSystem
	}
	if cfg.DBName != "" {
		md[MetadataDatabase] = cfg.DBName
	}
	if cfg.InstanceName != "" {
		md[MetadataInstance] = cfg.InstanceName
	}
	return md
}

// Option configures the instrumentation.
type Option func(*config)

// WithTracerProvider sets a custom tracer provider.
// If not called, the global provider from otel.GetTracerProvider() is used.
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(...)
//	db, _ := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithTracerProvider(tp),
//	)
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		if tp != nil {
			cfg.TracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom meter provider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) {
		if mp != nil {
			cfg.MeterProvider = mp
		}
	}
}

// WithDBSystem sets the database system identifier, e.g. "postgresql".
// It is added as the "db.system" attribute and as the "adapter" entry of
// the query metadata.
func WithDBSystem(system string) Option {
	return func(cfg *config) {
		cfg.DBSystem = system
	}
}

// WithDBName sets the database name being accessed.
// It is added as the "db.name" attribute and as the "database" entry of the
// query metadata.
func WithDBName(name string) Option {
	return func(cfg *config) {
		cfg.DBName = name
	}
}

// WithInstanceName sets an identifier for this specific database connection,
// such as "primary" or "replica-1".
//
// Example:
//
//	readerDB, _ := sentinelsql.Open("postgres", replicaDSN,
//	    sentinelsql.WithDBSystem("postgresql"),
//	    sentinelsql.WithDBName("myapp"),
//	    sentinelsql.WithInstanceName("replica"),
//	)
//
// In your traces, you'll see:
//
//	Span: SELECT FROM users
//	├── db.system: postgresql
//	├── db.name: myapp
//	└── db.instance: replica
func WithInstanceName(name string) Option {
	return func(cfg *config) {
		cfg.InstanceName = name
	}
}

// WithNormalizer sets the normalizer used to title and redact queries.
// Use it to share settings or a reporter with the rest of the application.
//
// Example:
//
//	src, _ := config.Load()
//	db, _ := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithNormalizer(normalizer.New(normalizer.WithSettings(src))),
//	)
func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(cfg *config) {
		cfg.Normalizer = n
	}
}

// WithObserver replaces the tracing observer. Every query executed through
// the wrapped driver is passed to o instead.
func WithObserver(o QueryObserver) Option {
	return func(cfg *config) {
		cfg.Observer = o
	}
}

// WithFingerprinter adds a "db.query.fingerprint" attribute computed from
// the raw SQL of normalized queries. Fingerprinter errors are ignored.
//
// Example:
//
//	db, _ := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithFingerprinter(fingerprint.Postgres),
//	)
func WithFingerprinter(fn func(sql string) (string, error)) Option {
	return func(cfg *config) {
		cfg.Fingerprinter = fn
	}
}

// WithDisableQuery omits the redacted statement from spans. The title and
// "db.operation" are still recorded.
func WithDisableQuery() Option {
	return func(cfg *config) {
		cfg.DisableQuery = true
	}
}
