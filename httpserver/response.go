package httpserver

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Response is the envelope of every JSON response.
//
// Example success response:
//
//	{"data": [{"result": "skipped", "query": {...}}]}
//
// Example error response:
//
//	{
//	  "errors": [{"field": "queries", "message": "must not be empty"}],
//	  "message": "invalid request"
//	}
type Response[T any] struct {
	Data    T       `json:"data,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Error represents a single field-level error.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
//
// If JSON encoding fails, the error is logged but not returned since
// HTTP headers have already been written at that point.
func WriteJSON[T any](w http.ResponseWriter, statusCode int, response Response[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}

// WriteError writes a JSON error response.
//
// Example:
//
//	httpserver.WriteError(w, http.StatusBadRequest,
//	    "invalid request",
//	    httpserver.Error{Field: "queries", Message: "must not be empty"},
//	)
func WriteError(w http.ResponseWriter, statusCode int, message string, errors ...Error) {
	WriteJSON(w, statusCode, Response[any]{
		Errors:  errors,
		Message: message,
	})
}

// WriteSuccess writes a success JSON response with data.
func WriteSuccess[T any](w http.ResponseWriter, statusCode int, data T, message string) {
	WriteJSON(w, statusCode, Response[T]{
		Data:    data,
		Message: message,
	})
}
