package handlers

import (
	"net/http"

	"github.com/devfolio/dashboard/internal/connections"
	"github.com/devfolio/dashboard/internal/services/auth"
	"github.com/devfolio/dashboard/pkg/httpext"
	"github.com/rs/zerolog/log"
)

type statusResponse struct {
	Status string `json:"status"`
}

func HandleLogin(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	errs := fieldErrors{}
	errs.required("email", payload.Email)
	errs.required("password", payload.Password)
	if !errs.ok(w) {
		return
	}

	user, err := authService.Login(r.Context(), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.Info().Int("user_id", user.ID).Msg("Signed in")
	httpext.JsonResponse(w, http.StatusOK, user)
}

func HandleSignup(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.SignupPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	errs := fieldErrors{}
	errs.required("email", payload.Email)
	errs.required("first_name", payload.FirstName)
	errs.required("last_name", payload.LastName)
	errs.newPassword("password", "confirm_password", payload.Password, payload.ConfirmPassword)
	if !errs.ok(w) {
		return
	}

	if err := authService.Signup(r.Context(), payload); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpext.JsonResponse(w, http.StatusCreated, statusResponse{Status: "verification_sent"})
}

func HandleLogout(authService *auth.Service, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	if err := authService.Logout(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}

	manager.Broadcast(connections.Event{Type: connections.EventSignedOut})
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "signed_out"})
}

func HandleMe(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" && authService.IsAuthenticated() {
		user, err := authService.FetchUser(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		httpext.JsonResponse(w, http.StatusOK, user)
		return
	}

	user, ok := authService.CurrentUser()
	if !ok {
		httpext.JsonError(w, errNotAuthenticated, http.StatusUnauthorized)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, user)
}

func HandlePasswordReset(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.PasswordResetPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	errs := fieldErrors{}
	errs.required("email", payload.Email)
	if !errs.ok(w) {
		return
	}

	if err := authService.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "reset_email_sent"})
}

func HandlePasswordResetConfirm(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.PasswordResetConfirmPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	// A link without uid or token is unusable
	if payload.UID == "" || payload.Token == "" {
		httpext.JsonError(w, "This password reset link is invalid or has expired.", http.StatusBadRequest)
		return
	}

	errs := fieldErrors{}
	errs.newPassword("new_password", "confirm_new_password", payload.NewPassword, payload.ConfirmNewPassword)
	if !errs.ok(w) {
		return
	}

	if err := authService.ConfirmPasswordReset(r.Context(), payload); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "password_reset"})
}

func HandleVerifyEmail(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.EmailConfirmPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	if payload.UID == "" || payload.Token == "" {
		httpext.JsonError(w, "This verification link is invalid or has expired.", http.StatusBadRequest)
		return
	}

	if err := authService.ConfirmEmail(r.Context(), payload); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "email_verified"})
}

func HandleResendVerification(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	if err := authService.ResendVerificationEmail(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "verification_sent"})
}

func HandleChangePassword(authService *auth.Service, w http.ResponseWriter, r *http.Request) {
	var payload auth.PasswordChangePayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	errs := fieldErrors{}
	errs.required("current_password", payload.CurrentPassword)
	errs.newPassword("new_password", "new_password_confirm", payload.NewPassword, payload.NewPasswordConfirm)
	if !errs.ok(w) {
		return
	}

	if err := authService.ChangePassword(r.Context(), payload); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpext.JsonResponse(w, http.StatusOK, statusResponse{Status: "password_changed"})
}
