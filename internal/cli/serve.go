package cli

import (
	"context"
	"fmt"
	"math"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/sqlsentinel/config"
	"github.com/kroma-labs/sqlsentinel/httpserver"
	"github.com/kroma-labs/sqlsentinel/internal/telemetry"
	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the normalizer over HTTP",
		Long: `Serve POST /v1/normalize for agents that cannot link the normalizer.

Also serves /livez, /readyz and Prometheus metrics at /metrics. The config
file is watched, so log_sql_parse_errors can be changed without a restart.`,
		Example: `  # Listen on :8080
  sqlsentinel serve

  # Limit to 200 requests per second with bursts of 400
  sqlsentinel serve --addr :9090 --rate-limit 200 --burst 400`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", ":8080", "Address to listen on")
	cmd.Flags().Float64("rate-limit", 0, "Normalize requests per second, 0 for no limit")
	cmd.Flags().Int("burst", 0, "Rate limit burst (default: rate limit rounded up)")
	cmd.Flags().Int("max-batch-size", 1000, "Maximum queries per normalize request")
	cmd.Flags().Bool("log-sql-parse-errors", true, "Log statements that fail to normalize")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")

	src, err := config.Load(config.WithFile(cfgFile), config.WithFlags(cmd.Flags()))
	if err != nil {
		return err
	}
	logger := setupLogger(src.LogLevel(), src.LogFormat(), cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if file := src.FileUsed(); file != "" {
		logger.Info().Str("file", file).Msg("Using config file")
		if err := src.Watch(ctx, func(err error) {
			if err != nil {
				logger.Error().Err(err).Msg("Failed to reload config")
				return
			}
			logger.Info().Bool("log_sql_parse_errors", src.LogSQLParseErrors()).Msg("Config reloaded")
		}); err != nil {
			logger.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	tel, err := telemetry.Setup(ctx, "sqlsentinel", Version)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}()

	limit, burst := rateLimit(src.Float64(config.KeyServerRateLimit), src.Int(config.KeyServerBurst))

	server := httpserver.New(
		httpserver.WithAddr(src.String(config.KeyServerAddr)),
		httpserver.WithVersion(Version),
		httpserver.WithLogger(logger),
		httpserver.WithNormalizer(normalizer.New(
			normalizer.WithSettings(src),
			normalizer.WithLogger(logger),
		)),
		httpserver.WithMeterProvider(tel.MeterProvider),
		httpserver.WithMetricsHandler(tel.MetricsHandler()),
		httpserver.WithRateLimit(limit, burst),
		httpserver.WithMaxBatchSize(src.Int(config.KeyServerMaxBatchSize)),
	)

	ln, err := net.Listen("tcp", server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr(), err)
	}
	return server.Serve(ctx, ln)
}

// rateLimit returns the limiter settings for perSecond requests per second.
// A non-positive rate disables limiting; a missing burst allows one
// second's worth of requests.
func rateLimit(perSecond float64, burst int) (rate.Limit, int) {
	if perSecond <= 0 {
		return 0, 0
	}
	if burst <= 0 {
		burst = int(math.Ceil(perSecond))
	}
	return rate.Limit(perSecond), burst
}
