package handlers

import (
	"net/http"

	"github.com/devfolio/dashboard/internal/services/auth"
	"github.com/devfolio/dashboard/pkg/httpext"
)

type healthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	HeartbeatOn   bool   `json:"heartbeat_active"`
	Subscribers   int    `json:"subscribers"`
}

// HeartbeatStatus reports whether the session heartbeat is running
type HeartbeatStatus interface {
	Active() bool
}

func HandleHealth(authService *auth.Service, heartbeat HeartbeatStatus, subscribers int, w http.ResponseWriter, r *http.Request) {
	httpext.JsonResponse(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Authenticated: authService.IsAuthenticated(),
		HeartbeatOn:   heartbeat.Active(),
		Subscribers:   subscribers,
	})
}
