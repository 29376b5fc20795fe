package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"gosplit/domain/core"
	apperrors "gosplit/internal/errors"
)

// maxBodyBytes caps request bodies. Batch ingest payloads stay far below it.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errorEnvelope is the wire shape every failure returns.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Type:      errType,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

// respondError translates a service failure into the error envelope. Internal
// failures log the cause and hide it from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "An unexpected error occurred"
	}
	writeError(w, r, status, errType, message)
}

// classify maps domain sentinels and app error codes onto (status, type).
// Ramp violations outrank the generic validation bucket: launching with a
// non-positive ramp is a 422, every other validation failure a 400.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrRampNotPositive):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrMisconfigured):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}

	switch apperrors.GetCode(err) {
	case apperrors.CodeValidationError:
		return http.StatusBadRequest, "invalid_argument"
	case apperrors.CodeNotFound:
		return http.StatusNotFound, "not_found"
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case apperrors.CodeConflict, apperrors.CodeInvalidState:
		return http.StatusConflict, "conflict"
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests, "rate_limited"
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout, "timeout"
	}

	return http.StatusInternalServerError, "internal"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return io.ReadAll(r.Body)
}

// decodeOneOrMany accepts either a single JSON object or an array of them,
// normalizing both to a slice.
func decodeOneOrMany[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func badBody(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("invalid request body: %v", err))
}
