package tracker

import (
	"log/slog"
	"net/http"

	"tracker-server/internal/db"
	"tracker-server/internal/modules/tracker/controller"
	"tracker-server/internal/modules/tracker/repository"
	"tracker-server/internal/modules/tracker/service"
	"tracker-server/internal/modules/tracker/ws"
)

// RegisterFeature wires the tracker module: repository over the store
// handle, the service pipeline, the REST endpoints and the live viewer
// socket. The returned service is attached to the broker subscription by
// the caller; the hub must be closed on shutdown.
func RegisterFeature(mux *http.ServeMux, handle *db.Handle, control service.ControlPublisher, logger *slog.Logger) (*service.Service, *ws.Hub) {
	trackerRepository := repository.NewRepository(handle)
	hub := ws.NewHub(logger)
	trackerService := service.NewService(trackerRepository, hub, control, logger)

	trackerController := controller.NewTrackerController(trackerService)
	trackerController.RegisterRoutes(mux)
	mux.Handle("GET /ws", ws.Handler(hub, trackerService, logger))

	return trackerService, hub
}
