package handlers

import (
	"net/http"

	"github.com/devfolio/dashboard/internal/services/auth"
	"github.com/devfolio/dashboard/pkg/httpext"
	"github.com/rs/zerolog/log"
)

// HandleOAuthURLs returns the provider authorization URLs that start social sign-in
func HandleOAuthURLs(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	urls, err := authService.SocialURLs(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, urls)
}

// HandleOAuthCallback completes social sign-in. The provider redirects here
// with either a one-time code or an error description.
func HandleOAuthCallback(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		log.Warn().Str("error", providerErr).Msg("Social sign-in failed at provider")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "oauth_failed",
			ErrorDescription: providerErr,
		})
		return
	}

	user, err := authService.ExchangeOAuthCode(r.Context(), query.Get("code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info().Int("user_id", user.ID).Str("provider", user.AuthProvider).Msg("Signed in with social account")
	httpext.JsonResponse(w, http.StatusOK, user)
}
