package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"tracker-server/internal/modules/tracker/service"
	"tracker-server/internal/utils"
)

func (c *trackerControllerImpl) handleLatestDevices(w http.ResponseWriter, r *http.Request) {
	fixes, err := c.service.LatestDevices()
	if err != nil {
		slog.Error("latest devices: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	utils.WriteJSON(w, http.StatusOK, toFixResponses(fixes))
}

func (c *trackerControllerImpl) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, intervalSec, windowHours, err := parseHistoryQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	fixes, err := c.service.History(deviceID, intervalSec, windowHours)
	if err != nil {
		if errors.Is(err, service.ErrInvalidParameter) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("history: query failed", "device_id", deviceID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load historical data")
		return
	}
	utils.WriteJSON(w, http.StatusOK, toFixResponses(fixes))
}

func (c *trackerControllerImpl) handleDownloadLast24h(w http.ResponseWriter, r *http.Request) {
	fixes, err := c.service.ExportLast24h()
	if err != nil {
		slog.Error("csv export: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to export data")
		return
	}
	utils.WriteCSV(w, csvFilename, buildCSV(fixes))
}
