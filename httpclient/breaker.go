package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerClassifier determines if a call counts as a failure for the
// circuit breaker.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig holds the configuration for the circuit breaker.
//
// Concepts:
//   - Closed: Normal state, requests allowed.
//   - Open: Failing state, requests rejected immediately.
//   - Half-Open: Probing state, limited requests allowed to test recovery.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed through while
	// half-open. Default: 1
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// counts are cleared. 0 never clears them. Default: 10s
	Interval time.Duration

	// Timeout is the period of the open state before probing.
	// Default: 10s
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests before the
	// failure ratio is considered. Default: 20
	FailureThreshold uint32

	// FailureRatio trips the circuit once reached. Default: 0.5
	FailureRatio float64

	// ConsecutiveFailures trips the circuit regardless of ratio.
	// 0 disables the rule. Default: 5
	ConsecutiveFailures uint32

	// Classifier determines which calls count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked when the breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the defaults for a local breaker:
// trip after 5 consecutive failures or 50% of at least 20 requests, probe
// again after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DefaultBreakerClassifier counts 5xx responses and network errors as
// failures. 429 is left to the retry logic.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode >= 500
		}
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if c.FailureThreshold > 0 && counts.Requests < c.FailureThreshold {
		return false
	}
	if c.FailureRatio > 0 && counts.Requests > 0 {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
	}
	return false
}

// errSyntheticFailure tells the breaker a call failed although the round
// trip returned a response, e.g. a 500. It never reaches the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// breakerTransport wraps every round trip in a circuit breaker.
type breakerTransport struct {
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	next       http.RoundTripper
	classifier BreakerClassifier
	cfg        *config
}

func newBreakerTransport(next http.RoundTripper, cfg *config) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}
	bc := *cfg.BreakerConfig
	if bc.Classifier == nil {
		bc.Classifier = DefaultBreakerClassifier
	}

	st := gobreaker.Settings{
		Name:        cfg.ServiceName,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: bc.readyToTrip,
		IsSuccessful: func(err error) bool {
			switch {
			case err == nil:
				return true
			case errors.Is(err, errSyntheticFailure):
				return false
			}
			return !bc.Classifier(nil, err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn().
				Str("breaker", name).
				Stringer("from", from).
				Stringer("to", to).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	return &breakerTransport{
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](st),
		next:       next,
		classifier: bc.Classifier,
		cfg:        cfg,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err == nil && t.classifier(resp, nil) {
			return resp, errSyntheticFailure
		}
		return resp, err
	})

	switch {
	case err == nil:
		t.cfg.metrics.recordBreakerRequest(ctx, "success")
		return resp, nil
	case errors.Is(err, errSyntheticFailure):
		t.cfg.metrics.recordBreakerRequest(ctx, "failure")
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.cfg.metrics.recordBreakerRequest(ctx, "rejected")
		return nil, fmt.Errorf("%s: %w", t.breaker.Name(), err)
	case t.classifier(nil, err):
		t.cfg.metrics.recordBreakerRequest(ctx, "failure")
		return nil, err
	default:
		return nil, err
	}
}
