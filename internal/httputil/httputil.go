// Package httputil provides the shared JSON response helpers for the HTTP
// handlers. Error responses carry only the client-safe message; internal
// details (storage errors, worker bodies) are logged server-side and
// never sent to the caller.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
)

// maxBodySize bounds request bodies read by DecodeJSON (1 MB).
const maxBodySize = 1 << 20

// RespondJSON writes data as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response. clientMsg is returned to the caller;
// optional internalDetails are logged server-side only.
func Error(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	RespondJSON(w, status, map[string]string{"error": clientMsg})
}

// RespondAppError maps an error to its HTTP status via its apperr kind.
// Unclassified errors become 500 with a generic message; the real error
// goes to the log only.
func RespondAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		Error(w, http.StatusInternalServerError, "internal error", err.Error())
		return
	}
	status := StatusForKind(appErr.Kind)
	if appErr.Err != nil {
		Error(w, status, appErr.Message, appErr.Err.Error())
		return
	}
	Error(w, status, appErr.Message)
}

// StatusForKind maps an error kind to its HTTP status code.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindThrottled:
		return http.StatusTooManyRequests
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads and unmarshals a size-limited request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "failed to read request body", err)
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return apperr.New(apperr.KindBadRequest, "empty request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "invalid JSON body", err)
	}
	return nil
}
