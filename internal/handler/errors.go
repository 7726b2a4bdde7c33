package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pkordes/travelogue/internal/backup"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/schema"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine-readable code and a human message.
// Fields is set for validation failures, keyed by JSON field path.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// notFoundBody returns an ErrorResponse for a missing resource. The caller
// supplies the message because the handler knows what was being looked up.
func notFoundBody(message string) ErrorResponse {
	return errorBody("not_found", message)
}

// requestBody returns an ErrorResponse for a request rejected before it
// reached a store, e.g. a malformed JSON body.
func requestBody(message string) ErrorResponse {
	return errorBody("bad_request", message)
}

// writeError maps err onto a status and error body. what names the resource
// for 404 messages ("trip", "expense"). Unexpected errors are logged and
// reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var (
		importErr *backup.ImportError
		fieldErrs schema.FieldErrors
		maxBytes  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, errBadBody):
		writeJSON(w, http.StatusBadRequest, requestBody(err.Error()))
	case errors.As(err, &importErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Code: "malformed_import", Message: "import payload is not a valid backup", Fields: importErr.Fields,
		}})
	case errors.Is(err, domain.ErrMalformedImport):
		writeJSON(w, http.StatusBadRequest, errorBody("malformed_import", "import payload is not a valid backup"))
	case errors.As(err, &fieldErrs):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
			Code: "validation_error", Message: what + " failed validation", Fields: fieldErrs,
		}})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("validation_error", err.Error()))
	case errors.Is(err, domain.ErrParentNotFound):
		writeJSON(w, http.StatusNotFound, notFoundBody("trip not found"))
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, notFoundBody(what+" not found"))
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthenticated", "sign in required"))
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody("forbidden", "not allowed"))
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict", what+" was changed concurrently, retry"))
	case errors.Is(err, backup.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("not_configured", "cloud backups are not configured"))
	case errors.As(err, &maxBytes):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload_too_large", "request body too large"))
	default:
		s.log.ErrorContext(r.Context(), "handler: request failed", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "internal server error"))
	}
}
