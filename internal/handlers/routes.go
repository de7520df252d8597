package handlers

import (
	"fmt"
	"net/http"

	"github.com/devfolio/dashboard/internal/api/middleware"
	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/services"
	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the local gateway on router
func RegisterRoutes(router *mux.Router, services *services.Services) error {
	authService := services.GetAuthService()
	connectionManager := services.GetConnectionManager()

	router.Use(middleware.RateLimit("global"))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		HandleHealth(authService, services.GetSessionManager(), connectionManager.GetConnectionCount(), w, r)
	}).Methods("GET")

	// Auth routes (backend credentials never leave the gateway)
	authRouter := router.PathPrefix("/auth").Subrouter()
	authRouter.Handle("/login", middleware.RateLimit("auth_login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleLogin(authService, w, r)
	}))).Methods("POST")
	authRouter.Handle("/signup", middleware.RateLimit("account_email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleSignup(authService, w, r)
	}))).Methods("POST")
	authRouter.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		HandleLogout(authService, connectionManager, w, r)
	}).Methods("POST")
	authRouter.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		HandleMe(authService, w, r)
	}).Methods("GET")
	authRouter.HandleFunc("/oauth/urls", func(w http.ResponseWriter, r *http.Request) {
		HandleOAuthURLs(authService, w, r)
	}).Methods("GET")
	authRouter.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		HandleOAuthCallback(authService, w, r)
	}).Methods("GET")
	authRouter.Handle("/password-reset", middleware.RateLimit("account_email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandlePasswordReset(authService, w, r)
	}))).Methods("POST")
	authRouter.HandleFunc("/password-reset/confirm", func(w http.ResponseWriter, r *http.Request) {
		HandlePasswordResetConfirm(authService, w, r)
	}).Methods("POST")
	authRouter.HandleFunc("/password-change", func(w http.ResponseWriter, r *http.Request) {
		HandleChangePassword(authService, w, r)
	}).Methods("POST")
	authRouter.HandleFunc("/verify-email", func(w http.ResponseWriter, r *http.Request) {
		HandleVerifyEmail(authService, w, r)
	}).Methods("POST")
	authRouter.Handle("/verify-email/resend", middleware.RateLimit("account_email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleResendVerification(authService, w, r)
	}))).Methods("POST")

	// Session event stream
	allowedOrigins := config.GetAllowedOrigins()
	router.HandleFunc("/ws/session", func(w http.ResponseWriter, r *http.Request) {
		HandleSessionEvents(connectionManager, allowedOrigins, w, r)
	})

	// Everything else under /api goes to the backend with credentials attached
	proxy, err := NewAPIProxy(services.GetAPIClient().BaseURL(), services.GetTransport())
	if err != nil {
		return fmt.Errorf("failed to create API proxy: %w", err)
	}
	router.PathPrefix("/api/").Handler(http.StripPrefix("/api", proxy))

	return nil
}
