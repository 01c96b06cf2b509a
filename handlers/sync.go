package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"visitorgate/coordinator"
)

type SyncHandler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

func NewSyncHandler(coord *coordinator.Coordinator, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		coord:  coord,
		logger: logger.Named("sync-api"),
	}
}

type OnlineRequest struct {
	Online bool `json:"online"`
}

// Push drains the local change queue to the remote store
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	audit(h.logger, r, "sync.push", "")
	if err := h.coord.Push(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.coord.SyncStatus())
}

// Pull replaces local collections with the remote ones
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	audit(h.logger, r, "sync.pull", "")
	if err := h.coord.Pull(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.coord.SyncStatus())
}

// Online records a connectivity change reported by the client
func (h *SyncHandler) Online(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req OnlineRequest
	if !decode(w, r, &req) {
		return
	}
	h.coord.SetOnline(req.Online)
	writeJSON(w, http.StatusOK, h.coord.SyncStatus())
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.coord.SyncStatus())
}
