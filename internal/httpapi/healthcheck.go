package httpapi

import (
	"log/slog"
	"net/http"

	"tracker-server/internal/db"
	"tracker-server/internal/utils"
)

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	handle *db.Handle
}

func NewHealthchecker(handle *db.Handle) healthchecker {
	return &healthcheckerImpl{handle: handle}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.handle.Ping(); err != nil {
		slog.Error("failed to check store connectivity", "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, handle *db.Handle) {
	healthchecker := NewHealthchecker(handle)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
