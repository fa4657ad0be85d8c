// Package httpclient is a client for the sqlsentinel normalization service.
//
// Agents that cannot link the normalizer send their intercepted queries to a
// sqlsentinel server and get titles and redacted descriptions back. The
// client is built for a sidecar on the request path: it retries transient
// failures with jittered exponential backoff, stops calling a failing server
// through a circuit breaker, and propagates the caller's trace context.
//
// # Quick Start
//
//	client, err := httpclient.New("http://localhost:8080")
//	if err != nil {
//	    return err
//	}
//
//	out, err := client.Normalize(ctx, normalizer.RawQuery{
//	    Label: "User Load",
//	    SQL:   "SELECT * FROM users WHERE id = 1",
//	})
//	// out.Query.Title       == "SELECT FROM users"
//	// out.Query.Description == "SELECT * FROM users WHERE id = ?"
//
// # Transport Stack
//
// Every request passes through, from outermost to innermost:
//
//	tracing -> circuit breaker -> retry -> http.Transport
//
// The breaker sees one call per logical request, so a request that
// exhausted its retries counts as a single failure.
//
// # Retries
//
// DefaultClassifier retries network errors, 429, 502, 503 and 504. It never
// retries 4xx responses, 500 or a cancelled context. Normalization is
// stateless, so every request is safe to repeat.
//
//	cfg := httpclient.DefaultRetryConfig()
//	cfg.MaxRetries = 5
//	client, _ := httpclient.New(addr, httpclient.WithRetryConfig(cfg))
//
// # Circuit Breaker
//
// The breaker opens after ConsecutiveFailures failed calls or when the
// failure ratio passes FailureRatio over at least FailureThreshold calls.
// While open, calls fail immediately with an error wrapping
// gobreaker.ErrOpenState.
package httpclient
