package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/coordinator"
	"visitorgate/geo"
	"visitorgate/models"
	"visitorgate/visitors"
)

// KioskHandler serves the check-in screen.
type KioskHandler struct {
	coord   *coordinator.Coordinator
	reports *geo.DeviceReports
	logger  *zap.Logger
}

func NewKioskHandler(coord *coordinator.Coordinator, reports *geo.DeviceReports, logger *zap.Logger) *KioskHandler {
	return &KioskHandler{
		coord:   coord,
		reports: reports,
		logger:  logger.Named("kiosk"),
	}
}

// FixReport is a reading or a failure from the device geolocation API.
type FixReport struct {
	Lat       *float64         `json:"lat,omitempty"`
	Lng       *float64         `json:"lng,omitempty"`
	AccuracyM float64          `json:"accuracy,omitempty"`
	Error     geo.FixErrorCode `json:"error,omitempty"`
}

// Fix accepts a device position report
func (h *KioskHandler) Fix(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req FixReport
	if !decode(w, r, &req) {
		return
	}

	if req.Error != "" {
		if !req.Error.Valid() {
			writeAppError(w, apperr.Validation("error"))
			return
		}
		h.reports.ReportError(req.Error)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var fields []string
	if req.Lat == nil || *req.Lat < -90 || *req.Lat > 90 {
		fields = append(fields, "lat")
	}
	if req.Lng == nil || *req.Lng < -180 || *req.Lng > 180 {
		fields = append(fields, "lng")
	}
	if len(fields) > 0 {
		writeAppError(w, apperr.Validation(fields...))
		return
	}
	h.reports.Report(models.Fix{Lat: *req.Lat, Lng: *req.Lng}, req.AccuracyM)
	w.WriteHeader(http.StatusAccepted)
}

// Locate acquires a fix and returns the detected site
func (h *KioskHandler) Locate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	d, err := h.coord.RefreshLocation(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *KioskHandler) Detection(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	d := h.coord.Detection()
	if d == nil {
		writeAppError(w, &apperr.LocationError{Reason: "location not detected yet"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *KioskHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in visitors.CheckinInput
	if !decode(w, r, &in) {
		return
	}
	s, err := h.coord.CheckIn(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *KioskHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := idFrom(w, r)
	if !ok {
		return
	}
	s, err := h.coord.CheckOut(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Search finds sessions to check out by last name
func (h *KioskHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	found := h.coord.SearchCheckout(r.URL.Query().Get("q"))
	if found == nil {
		found = []models.VisitorSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"visitors": found,
		"count":    len(found),
	})
}

func (h *KioskHandler) Counts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.coord.Counts(r.Context()))
}

func (h *KioskHandler) FrequentVisitors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.coord.FrequentVisitors())
}

// LatestNotification returns the current message, or 204 when there is none
func (h *KioskHandler) LatestNotification(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	n, ok := h.coord.Notifications().Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
