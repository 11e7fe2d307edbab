package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/obs"
)

// Stable error codes carried in the envelope.
const (
	codeBadRequest      = "bad_request"
	codeUnauthorized    = "unauthorized"
	codeForbidden       = "forbidden"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeValidationError = "validation_error"
	codeRateLimited     = "rate_limited"
	codeInternalError   = "internal_error"
	codeHTTPError       = "http_error"
)

const (
	msgNotAuthenticated   = "Not authenticated"
	msgBadCredentials     = "Incorrect username or password"
	msgForbidden          = "Not enough permissions"
	msgNotFound           = "not found"
	msgConflict           = "Conflict"
	msgValidation         = "Validation error"
	msgTooManyRequests    = "Too many requests"
	msgInternalError      = "Internal server error"
	msgEmailAlreadyExists = "email already exists"
)

type errorBody struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	RequestID *string `json:"request_id"`
	Details   any     `json:"details"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// fieldError is one entry of a validation_error details list.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return codeBadRequest
	case status == http.StatusUnauthorized:
		return codeUnauthorized
	case status == http.StatusForbidden:
		return codeForbidden
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusConflict:
		return codeConflict
	case status == http.StatusUnprocessableEntity:
		return codeValidationError
	case status == http.StatusTooManyRequests:
		return codeRateLimited
	case status >= 500:
		return codeInternalError
	default:
		return codeHTTPError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the standard envelope stamped with the request id.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string, details any) {
	var rid *string
	if id := obs.RequestIDFromContext(r.Context()); id != "" {
		rid = &id
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:      codeForStatus(status),
		Message:   message,
		RequestID: rid,
		Details:   details,
	}})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, message, nil)
}

func writeValidation(w http.ResponseWriter, r *http.Request, details []fieldError) {
	writeError(w, r, http.StatusUnprocessableEntity, msgValidation, details)
}

// respondErr maps domain errors onto the envelope. Anything unrecognised is
// logged with full detail and reported as a generic internal error.
func (a *API) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		a.logHTTPError(r, http.StatusUnauthorized, err)
		writeUnauthorized(w, r, msgNotAuthenticated)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.logHTTPError(r, http.StatusUnauthorized, err)
		writeUnauthorized(w, r, msgBadCredentials)
		return
	case errors.Is(err, auth.ErrForbidden):
		status, message = http.StatusForbidden, msgForbidden
	case errors.Is(err, auth.ErrNotFound):
		status, message = http.StatusNotFound, msgNotFound
	case errors.Is(err, auth.ErrConflict):
		status, message = http.StatusConflict, msgConflict
	case errors.Is(err, auth.ErrInvalidInput):
		status, message = http.StatusUnprocessableEntity, errorDetail(err)
	default:
		a.logger.ErrorContext(r.Context(), "unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, msgInternalError, nil)
		return
	}
	a.logHTTPError(r, status, err)
	writeError(w, r, status, message, nil)
}

// logHTTPError logs handled errors: 5xx at error, 401/403 at warn, the rest
// at info.
func (a *API) logHTTPError(r *http.Request, status int, err error) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		level = slog.LevelWarn
	}
	a.logger.Log(r.Context(), level, "http error",
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
}

func errorDetail(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// validationDetails converts validator field errors into location-tagged
// entries. Non-validator errors yield a single body-level entry.
func validationDetails(where string, err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Loc: []string{where}, Msg: err.Error(), Type: "value_error"}}
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{
			Loc:  []string{where, fe.Field()},
			Msg:  fieldMessage(fe),
			Type: fieldType(fe),
		})
	}
	return out
}

func fieldType(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "missing"
	}
	return fe.Tag()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field required"
	case "email":
		return "value is not a valid email address"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}
