package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/sqlsentinel/httpclient"
	"github.com/kroma-labs/sqlsentinel/httpserver"
	"github.com/kroma-labs/sqlsentinel/normalizer"
)

func fastRetry() httpclient.RetryConfig {
	return httpclient.RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}

func newSentinel(t *testing.T) *httptest.Server {
	t.Helper()
	s := httpserver.New(
		httpserver.WithLogger(zerolog.New(io.Discard)),
		httpserver.WithNormalizer(normalizer.New(normalizer.WithSettings(normalizer.StaticSettings(false)))),
		httpserver.WithMaxBatchSize(2),
	)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// counting serves status for the first failures calls, then delegates to next.
func counting(calls *atomic.Int32, failures int32, status int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			httpserver.WriteError(w, status, http.StatusText(status),
				httpserver.Error{Field: "queries", Message: "rejected"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "given http URL, then succeeds", baseURL: "http://localhost:8080"},
		{name: "given https URL with path, then succeeds", baseURL: "https://example.com/sentinel/"},
		{name: "given missing scheme, then fails", baseURL: "localhost:8080", wantErr: true},
		{name: "given unsupported scheme, then fails", baseURL: "ftp://example.com", wantErr: true},
		{name: "given missing host, then fails", baseURL: "http://", wantErr: true},
		{name: "given malformed URL, then fails", baseURL: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := httpclient.New(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestClient_Normalize(t *testing.T) {
	t.Parallel()

	srv := newSentinel(t)
	client, err := httpclient.New(srv.URL)
	require.NoError(t, err)

	out, err := client.Normalize(context.Background(), normalizer.RawQuery{
		Label:    "User Load",
		SQL:      "SELECT * FROM users WHERE id = 1",
		Metadata: map[string]string{"adapter": "postgresql"},
	})
	require.NoError(t, err)

	assert.Equal(t, normalizer.Outcome{
		Result: normalizer.Normalized,
		Query: normalizer.Query{
			OperationName: normalizer.OperationName,
			Title:         "SELECT FROM users",
			Description:   "SELECT * FROM users WHERE id = ?",
			Metadata:      map[string]string{"adapter": "postgresql"},
		},
	}, out)
}

func TestClient_NormalizeBatch(t *testing.T) {
	t.Parallel()

	srv := newSentinel(t)
	client, err := httpclient.New(srv.URL, httpclient.WithBatchSize(2))
	require.NoError(t, err)

	queries := []normalizer.RawQuery{
		{SQL: "SELECT * FROM a WHERE x = 1"},
		{Label: "SCHEMA", SQL: "SELECT * FROM pg_class"},
		{Label: "Broken", SQL: "!!!"},
		{SQL: "DELETE FROM d WHERE id = 4"},
		{SQL: "UPDATE e SET v = 5"},
	}

	t.Run("given more queries than the batch size, then splits and keeps order", func(t *testing.T) {
		got, err := client.NormalizeBatch(context.Background(), queries)
		require.NoError(t, err)
		require.Len(t, got, 5)

		assert.Equal(t, "SELECT FROM a", got[0].Query.Title)
		assert.Equal(t, normalizer.Skipped, got[1].Result)
		assert.Equal(t, normalizer.Failed, got[2].Result)
		assert.Equal(t, "Broken", got[2].Query.Title)
		assert.Equal(t, "DELETE FROM d WHERE id = ?", got[3].Query.Description)
		assert.Equal(t, "UPDATE e", got[4].Query.Title)
	})

	t.Run("given no queries, then sends nothing", func(t *testing.T) {
		got, err := client.NormalizeBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("given batch over the server limit, then returns status error", func(t *testing.T) {
		big, err := httpclient.New(srv.URL, httpclient.WithBatchSize(10))
		require.NoError(t, err)

		_, err = big.NormalizeBatch(context.Background(), queries)
		var statusErr *httpclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
		require.Len(t, statusErr.Errors, 1)
		assert.Equal(t, "queries", statusErr.Errors[0].Field)
	})
}

func TestClient_Retry(t *testing.T) {
	t.Parallel()

	query := normalizer.RawQuery{SQL: "SELECT * FROM t"}

	tests := []struct {
		name      string
		failures  int32
		status    int
		wantCalls int32
		wantCode  int
	}{
		{
			name:      "given transient 503s, then retries until success",
			failures:  2,
			status:    http.StatusServiceUnavailable,
			wantCalls: 3,
		},
		{
			name:      "given rate limiting, then retries",
			failures:  1,
			status:    http.StatusTooManyRequests,
			wantCalls: 2,
		},
		{
			name:      "given persistent 502s, then gives up after max retries",
			failures:  100,
			status:    http.StatusBadGateway,
			wantCalls: 4,
			wantCode:  http.StatusBadGateway,
		},
		{
			name:      "given 500, then does not retry",
			failures:  100,
			status:    http.StatusInternalServerError,
			wantCalls: 1,
			wantCode:  http.StatusInternalServerError,
		},
		{
			name:      "given 400, then does not retry",
			failures:  100,
			status:    http.StatusBadRequest,
			wantCalls: 1,
			wantCode:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			sentinel := newSentinel(t)
			srv := httptest.NewServer(counting(&calls, tt.failures, tt.status, proxyTo(sentinel.URL)))
			t.Cleanup(srv.Close)

			client, err := httpclient.New(srv.URL,
				httpclient.WithRetryConfig(fastRetry()),
				httpclient.WithoutBreaker(),
			)
			require.NoError(t, err)

			out, err := client.Normalize(context.Background(), query)
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantCode == 0 {
				require.NoError(t, err)
				assert.Equal(t, "SELECT FROM t", out.Query.Title)
				return
			}
			var statusErr *httpclient.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.wantCode, statusErr.StatusCode)
		})
	}
}

func TestClient_RetryMetrics(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	sentinel := newSentinel(t)
	srv := httptest.NewServer(counting(&calls, 2, http.StatusServiceUnavailable, proxyTo(sentinel.URL)))
	t.Cleanup(srv.Close)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	client, err := httpclient.New(srv.URL,
		httpclient.WithRetryConfig(fastRetry()),
		httpclient.WithMeterProvider(mp),
	)
	require.NoError(t, err)

	_, err = client.Normalize(context.Background(), normalizer.RawQuery{SQL: "SELECT * FROM t"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.EqualValues(t, 2, sums["http.client.retry.attempts"])
	assert.EqualValues(t, 0, sums["http.client.retry.exhausted"])
	assert.EqualValues(t, 1, sums["http.client.breaker.requests"])
}

func TestClient_Breaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(counting(&calls, 100, http.StatusInternalServerError, http.NotFoundHandler()))
	t.Cleanup(srv.Close)

	var transitions []string
	cfg := httpclient.DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Minute
	cfg.OnStateChange = func(_ string, from, to gobreaker.State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	client, err := httpclient.New(srv.URL,
		httpclient.WithRetryConfig(httpclient.NoRetryConfig()),
		httpclient.WithBreakerConfig(cfg),
	)
	require.NoError(t, err)

	query := normalizer.RawQuery{SQL: "SELECT * FROM t"}
	for range 2 {
		_, err := client.Normalize(context.Background(), query)
		var statusErr *httpclient.StatusError
		require.ErrorAs(t, err, &statusErr)
	}

	_, err = client.Normalize(context.Background(), query)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestClient_Breaker_IgnoresClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(counting(&calls, 100, http.StatusBadRequest, http.NotFoundHandler()))
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 1

	client, err := httpclient.New(srv.URL,
		httpclient.WithRetryConfig(httpclient.NoRetryConfig()),
		httpclient.WithBreakerConfig(cfg),
	)
	require.NoError(t, err)

	for range 3 {
		_, err := client.Normalize(context.Background(), normalizer.RawQuery{SQL: "x"})
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_TracePropagation(t *testing.T) {
	t.Parallel()

	var traceparent atomic.Value
	sentinel := newSentinel(t)
	proxy := proxyTo(sentinel.URL)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent.Store(r.Header.Get("traceparent"))
		proxy.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	client, err := httpclient.New(srv.URL, httpclient.WithTracerProvider(tp))
	require.NoError(t, err)

	_, err = client.Normalize(context.Background(), normalizer.RawQuery{SQL: "SELECT * FROM t"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /v1/normalize", spans[0].Name())

	header, _ := traceparent.Load().(string)
	assert.Contains(t, header, spans[0].SpanContext().TraceID().String())
}

func TestClient_Ready(t *testing.T) {
	t.Parallel()

	s := httpserver.New(httpserver.WithLogger(zerolog.New(io.Discard)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client, err := httpclient.New(srv.URL, httpclient.WithRetryConfig(httpclient.NoRetryConfig()))
	require.NoError(t, err)

	require.NoError(t, client.Ready(context.Background()))

	require.NoError(t, s.Shutdown(context.Background()))

	err = client.Ready(context.Background())
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "shutting down", statusErr.Message)
}

func TestClient_UnexpectedResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "given fewer outcomes than queries, then fails", body: `{"data": []}`},
		{name: "given malformed body, then fails", body: `{"data": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			client, err := httpclient.New(srv.URL)
			require.NoError(t, err)

			_, err = client.Normalize(context.Background(), normalizer.RawQuery{SQL: "SELECT 1"})
			assert.ErrorIs(t, err, httpclient.ErrUnexpectedResponse)
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(counting(&calls, 100, http.StatusServiceUnavailable, http.NotFoundHandler()))
	t.Cleanup(srv.Close)

	cfg := fastRetry()
	cfg.MaxRetries = 100
	cfg.InitialInterval = 50 * time.Millisecond
	cfg.MaxInterval = 50 * time.Millisecond

	client, err := httpclient.New(srv.URL, httpclient.WithRetryConfig(cfg), httpclient.WithoutBreaker())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err = client.Normalize(ctx, normalizer.RawQuery{SQL: "SELECT 1"})
	require.Error(t, err)
	assert.Less(t, calls.Load(), int32(100))
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &httpclient.StatusError{
		StatusCode: 400,
		Message:    "invalid request",
		Errors:     []httpclient.FieldError{{Field: "queries", Message: "must not be empty"}},
	}
	assert.Equal(t, "httpclient: server returned 400: invalid request (queries: must not be empty)", err.Error())
	assert.Equal(t, "httpclient: server returned 503", (&httpclient.StatusError{StatusCode: 503}).Error())

	wrapped := errors.Join(errors.New("context"), err)
	var target *httpclient.StatusError
	assert.ErrorAs(t, wrapped, &target)
}

// proxyTo forwards requests to a sentinel server, preserving method and
// body.
func proxyTo(target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), r.Method, target+r.URL.Path, r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		req.Header = r.Header.Clone()

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	})
}
