package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps err onto a status code. Validation and not-found errors
// are echoed to the caller; anything else gets the generic message and the
// detail goes to the log only.
func writeError(w http.ResponseWriter, r *http.Request, err error, operation, generic string) {
	var ve *core.ValidationError
	var nf *core.NotFoundError
	logger := applog.NewStructuredLogger(applog.FromContext(r.Context()))

	switch {
	case errors.As(err, &ve):
		rejected(r, err, operation)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &nf):
		rejected(r, err, operation)
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nf.Error()})
	default:
		logger.LogError(r.Context(), generic, err, errorType(err), operation,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: generic})
	}
}

// rejected logs a caller error at debug level.
func rejected(r *http.Request, err error, operation string) {
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
		applog.FieldErrorType, errorType(err),
		applog.FieldOperation, operation,
		applog.FieldError, err.Error())
}

func errorType(err error) string {
	switch {
	case core.IsValidation(err):
		return applog.ErrorTypeValidation
	case core.IsNotFound(err):
		return applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return applog.ErrorTypeDatabase
	default:
		return applog.ErrorTypeInternal
	}
}
