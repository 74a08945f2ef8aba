package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
)

const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimited    = "RATE_LIMITED"
	CodeIdempotencyKey = "IDEMPOTENCY_KEY_REUSE"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

// writeAppError maps application errors to their status; anything else is logged and
// reported as a 500 without leaking the cause.
func writeAppError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	if ce := (*claims.Error)(nil); errors.As(err, &ce) {
		if ce.Err != nil {
			log.Warn().Err(ce.Err).Str("code", ce.Code).Str("requestId", middleware.GetReqID(r.Context())).Msg("claim store failure")
		}
		writeError(w, r, ce.Status, ce.Code, ce.Message, ce.Details)
		return
	}
	if se := (*sessions.Error)(nil); errors.As(err, &se) {
		writeError(w, r, se.Status, se.Code, se.Message, nil)
		return
	}
	log.Error().Err(err).Str("requestId", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("unhandled error")
	writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 16 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
