package handlers

import (
	"net/http"
)

// APIHandlers contains handlers for the /api/* JSON routes
type APIHandlers struct {
	serverService ServerService
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(serverSvc ServerService) *APIHandlers {
	return &APIHandlers{serverService: serverSvc}
}

// Health and status endpoints
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, req *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "sensorframe"})
}

func (h *APIHandlers) HandleStatus(w http.ResponseWriter, req *http.Request) {
	if h.serverService == nil {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "running", "service": "sensorframe"})
		return
	}

	status := map[string]interface{}{
		"running":  h.serverService.IsRunning(),
		"uptime":   h.serverService.GetUptime().String(),
		"streams":  len(h.serverService.ListStreams()),
		"version":  h.serverService.GetVersion(),
		"build_id": h.serverService.GetBuildID(),
	}
	RespondJSON(w, http.StatusOK, status)
}

// HandleStreamList handles GET /api/streams
func (h *APIHandlers) HandleStreamList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	streams := h.serverService.ListStreams()
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"streams": streams,
		"count":   len(streams),
	})
}
