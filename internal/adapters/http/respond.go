package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/domain/export"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/outbox"
	"clubhouse/pkg/logger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func internalError(w http.ResponseWriter, err error) {
	logger.Error("internal_error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeDomainError maps core failures onto status codes.
// Anything unrecognised is logged and answered with a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *fine.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Field: ve.Field})
	case errors.Is(err, export.ErrUnknownFormat):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "format"})
	case errors.Is(err, fine.ErrStoreConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "the fine was changed by someone else, try again", Retryable: true})
	case errors.Is(err, fine.ErrInvalidTransition), errors.Is(err, outbox.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fine.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, fine.ErrNotFound), errors.Is(err, outbox.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orchestrators.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, orchestrators.ErrAccountLocked):
		writeError(w, http.StatusLocked, err.Error())
	default:
		internalError(w, err)
	}
}

// strictDecode decodes a JSON body, rejecting unknown fields and trailing data.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// decodeOrReject decodes the body into v or writes a 400 and returns false.
func decodeOrReject(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(w, r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
