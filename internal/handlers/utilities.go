package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/devfolio/dashboard/internal/client"
	"github.com/devfolio/dashboard/internal/services/auth"
	"github.com/devfolio/dashboard/internal/services/session"
	"github.com/devfolio/dashboard/pkg/httpext"
	"github.com/rs/zerolog/log"
)

const maxRequestBody = 1 << 20

const (
	errSessionExpired   = "session_expired"
	errNotAuthenticated = "not_authenticated"
	errRequiredField    = "This field is required."
	minPasswordLength   = 8
)

// decodeJSON reads a JSON request body into v, writing a 400 when it cannot
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Invalid request body")
		httpext.JsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeServiceError maps backend and session failures onto gateway responses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *client.ValidationError
		apiErr        *client.APIError
		networkErr    *client.NetworkError
	)

	switch {
	case errors.Is(err, session.ErrSessionExpired):
		httpext.JsonErrorWithDetails(w, http.StatusUnauthorized, httpext.ErrorResponse{
			Error:            errSessionExpired,
			ErrorDescription: "Your session has expired. Please sign in again.",
		})
	case errors.As(err, &validationErr):
		httpext.JsonValidationError(w, validationErr.FieldErrors(), strings.Join(validationErr.NonField, " "))
	case errors.As(err, &apiErr):
		httpext.JsonError(w, apiErr.Message, apiErr.StatusCode)
	case errors.As(err, &networkErr):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Backend unreachable")
		httpext.JsonError(w, "Unable to reach the server", http.StatusBadGateway)
	case errors.Is(err, auth.ErrNotAuthenticated):
		httpext.JsonError(w, errNotAuthenticated, http.StatusUnauthorized)
	case errors.Is(err, auth.ErrMissingCode):
		httpext.JsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrMissingTokens):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Backend sign-in response incomplete")
		httpext.JsonError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Str("path", r.URL.Path).Msg("Backend request timed out")
		httpext.JsonError(w, "The server took too long to respond", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		log.Debug().Str("path", r.URL.Path).Msg("Request canceled by client")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled gateway error")
		httpext.JsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// fieldErrors collects per-field messages for a form before it reaches the backend
type fieldErrors map[string]string

func (f fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f[field] = errRequiredField
	}
}

func (f fieldErrors) newPassword(field, confirmField, password, confirm string) {
	switch {
	case password == "":
		f[field] = errRequiredField
	case len(password) < minPasswordLength:
		f[field] = "Password must be at least 8 characters."
	}
	if password != confirm {
		f[confirmField] = "Passwords do not match."
	}
}

// ok writes the accumulated errors as a 400 and reports whether there were none
func (f fieldErrors) ok(w http.ResponseWriter) bool {
	if len(f) == 0 {
		return true
	}
	httpext.JsonValidationError(w, f, "")
	return false
}
