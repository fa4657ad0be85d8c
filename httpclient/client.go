package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

const (
	normalizePath = "/v1/normalize"
	readyPath     = "/readyz"

	maxErrorBody = 64 << 10
)

// Client calls a sqlsentinel server. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cfg        *config
}

// New creates a Client for the server at baseURL, e.g.
// "http://localhost:8080".
//
// Example:
//
//	client, err := httpclient.New("http://sqlsentinel:8080",
//	    httpclient.WithTimeout(2*time.Second),
//	    httpclient.WithLogger(logger),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpclient: invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("httpclient: invalid base URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	cfg := newConfig(opts...)

	withRetry := newRetryTransport(cfg.Transport, cfg)
	withBreaker := newBreakerTransport(withRetry, cfg)
	instrumented := newOtelTransport(withBreaker, cfg)

	return &Client{
		httpClient: &http.Client{
			Transport: instrumented,
			Timeout:   cfg.Timeout,
		},
		baseURL: u,
		cfg:     cfg,
	}, nil
}

// Normalize normalizes a single query on the server.
func (c *Client) Normalize(ctx context.Context, q normalizer.RawQuery) (normalizer.Outcome, error) {
	out, err := c.normalize(ctx, []normalizer.RawQuery{q})
	if err != nil {
		return normalizer.Outcome{}, err
	}
	return out[0], nil
}

// NormalizeBatch normalizes queries on the server and returns one outcome
// per query, in order. Batches larger than the configured batch size are
// split into several requests; the first failing request aborts the batch.
func (c *Client) NormalizeBatch(ctx context.Context, queries []normalizer.RawQuery) ([]normalizer.Outcome, error) {
	outcomes := make([]normalizer.Outcome, 0, len(queries))
	for start := 0; start < len(queries); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(queries))

		out, err := c.normalize(ctx, queries[start:end])
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out...)
	}
	return outcomes, nil
}

// Ready reports whether the server accepts work.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(readyPath), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type normalizeRequest struct {
	Queries []normalizer.RawQuery `json:"queries"`
}

type normalizeResponse struct {
	Data []normalizer.Outcome `json:"data"`
}

type errorResponse struct {
	Errors  []FieldError `json:"errors"`
	Message string       `json:"message"`
}

func (c *Client) normalize(ctx context.Context, queries []normalizer.RawQuery) ([]normalizer.Outcome, error) {
	body, err := json.Marshal(normalizeRequest{Queries: queries})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(normalizePath), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeStatusError(resp)
	}

	var payload normalizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if len(payload.Data) != len(queries) {
		return nil, fmt.Errorf("%w: got %d outcomes for %d queries",
			ErrUnexpectedResponse, len(payload.Data), len(queries))
	}
	return payload.Data, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path += path
	return u.String()
}

// decodeStatusError reads the error envelope of a non-2xx response. Bodies
// that are not JSON leave Message and Errors empty.
func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return statusErr
	}

	var payload errorResponse
	if json.Unmarshal(data, &payload) == nil {
		statusErr.Message = payload.Message
		statusErr.Errors = payload.Errors
	}
	return statusErr
}
