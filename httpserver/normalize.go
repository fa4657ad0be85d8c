package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// NormalizeRequest is the body of POST /v1/normalize.
type NormalizeRequest struct {
	Queries []normalizer.RawQuery `json:"queries"`
}

// NormalizeResponse is the body of a successful POST /v1/normalize: one
// outcome per query, in request order.
type NormalizeResponse = Response[[]normalizer.Outcome]

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request too large",
				Error{Field: "body", Message: fmt.Sprintf("must not exceed %d bytes", tooLarge.Limit)})
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid request",
			Error{Field: "body", Message: "could not be read"})
		return
	}

	var req NormalizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request",
			Error{Field: "body", Message: "must be a JSON object"})
		return
	}

	switch {
	case len(req.Queries) == 0:
		WriteError(w, http.StatusBadRequest, "invalid request",
			Error{Field: "queries", Message: "must not be empty"})
		return
	case s.config.MaxBatchSize > 0 && len(req.Queries) > s.config.MaxBatchSize:
		WriteError(w, http.StatusBadRequest, "invalid request",
			Error{Field: "queries", Message: fmt.Sprintf("must not exceed %d entries", s.config.MaxBatchSize)})
		return
	}

	ctx := r.Context()
	outcomes := make([]normalizer.Outcome, len(req.Queries))
	for i, q := range req.Queries {
		outcomes[i] = s.normalizer.Normalize(ctx, q)
	}
	s.metrics.RecordBatch(ctx, outcomes)

	WriteSuccess(w, http.StatusOK, outcomes, "")
}
