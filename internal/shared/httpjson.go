package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// DecodeJSON reads a JSON request body into dest, rejecting unknown fields.
func DecodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// RespondJSON writes value as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

type errorBody struct {
	Error string `json:"error"`
}

// RespondError maps domain errors onto HTTP statuses and writes a JSON error
// envelope. Unknown errors are logged and reported as 500 without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		RespondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnbalanced):
		RespondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrDuplicateDocumentNumber),
		errors.Is(err, ErrIdempotencyConflict):
		RespondJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		RespondJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
	}
}
