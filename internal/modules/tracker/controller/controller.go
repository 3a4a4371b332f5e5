package controller

import (
	"net/http"

	"tracker-server/internal/modules/tracker/types"
)

// trackerService is the slice of the service layer the HTTP handlers need.
type trackerService interface {
	LatestDevices() ([]types.Fix, error)
	History(deviceID string, intervalSec, windowHours int) ([]types.Fix, error)
	ExportLast24h() ([]types.Fix, error)
}

type TrackerController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type trackerControllerImpl struct {
	service trackerService
}

func NewTrackerController(service trackerService) TrackerController {
	return &trackerControllerImpl{service: service}
}

func (c *trackerControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/latest-devices", c.handleLatestDevices)
	mux.HandleFunc("GET /api/history", c.handleHistory)
	mux.HandleFunc("GET /api/download-last-24h", c.handleDownloadLast24h)
}
