package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/coordinator"
	"visitorgate/models"
	"visitorgate/registry"
	"visitorgate/visitors"
)

// AdminHandler serves the admin console.
type AdminHandler struct {
	coord  *coordinator.Coordinator
	tz     *time.Location
	logger *zap.Logger
}

func NewAdminHandler(coord *coordinator.Coordinator, tz *time.Location, logger *zap.Logger) *AdminHandler {
	if tz == nil {
		tz = time.Local
	}
	return &AdminHandler{
		coord:  coord,
		tz:     tz,
		logger: logger.Named("admin"),
	}
}

// --- Location Management ---

type CreateLocationRequest struct {
	Name     string          `json:"name"`
	Category models.Category `json:"category"`
	Lat      float64         `json:"lat"`
	Lng      float64         `json:"lng"`
	RadiusKm float64         `json:"radius"`
}

type UpdateLocationRequest struct {
	ID    string         `json:"id"`
	Field registry.Field `json:"field"`
	Value any            `json:"value"`
}

type CreateFrequentVisitorRequest struct {
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName"`
}

// Locations lists the registry on GET and adds a location on POST
func (h *AdminHandler) Locations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.coord.Locations())
	case http.MethodPost:
		var req CreateLocationRequest
		if !decode(w, r, &req) {
			return
		}
		loc, err := h.coord.AddLocation(r.Context(), req.Name, req.Category, req.Lat, req.Lng, req.RadiusKm)
		if err != nil {
			writeAppError(w, err)
			return
		}
		audit(h.logger, r, "location.create", loc.ID)
		writeJSON(w, http.StatusCreated, loc)
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var req UpdateLocationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.Field == "" {
		writeAppError(w, apperr.Validation("id", "field"))
		return
	}
	loc, err := h.coord.UpdateLocation(r.Context(), req.ID, req.Field, req.Value)
	if err != nil {
		writeAppError(w, err)
		return
	}
	audit(h.logger, r, "location.update", fmt.Sprintf("%s %s", loc.ID, req.Field))
	writeJSON(w, http.StatusOK, loc)
}

func (h *AdminHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := idFrom(w, r)
	if !ok {
		return
	}
	loc, err := h.coord.RemoveLocation(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	audit(h.logger, r, "location.delete", loc.ID)
	writeJSON(w, http.StatusOK, loc)
}

// CurrentPosition moves a location to the device's current fix
func (h *AdminHandler) CurrentPosition(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := idFrom(w, r)
	if !ok {
		return
	}
	loc, err := h.coord.SetLocationToCurrentPosition(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	audit(h.logger, r, "location.move", loc.ID)
	writeJSON(w, http.StatusOK, loc)
}

// --- Visit Log ---

// Logs filters the visit log. Dates are YYYY-MM-DD in the kiosk time zone.
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	f, err := h.parseFilter(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	logs, err := h.coord.FilterLogs(f)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if logs == nil {
		logs = []models.VisitLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (h *AdminHandler) parseFilter(r *http.Request) (visitors.LogFilter, error) {
	q := r.URL.Query()
	f := visitors.LogFilter{
		Category:     models.Category(q.Get("category")),
		VisitorName:  q.Get("name"),
		LocationName: q.Get("location"),
		Purpose:      models.Purpose(q.Get("purpose")),
		TimeOfDay:    visitors.TimeOfDay(q.Get("timeOfDay")),
		Sort:         visitors.SortKey(q.Get("sort")),
	}

	var bad []string
	parseDate := func(key string) time.Time {
		v := q.Get(key)
		if v == "" {
			return time.Time{}
		}
		t, err := time.ParseInLocation("2006-01-02", v, h.tz)
		if err != nil {
			bad = append(bad, key)
		}
		return t
	}
	f.From = parseDate("from")
	f.To = parseDate("to")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad = append(bad, "limit")
		}
		f.Limit = n
	}
	return f, apperr.Validation(bad...)
}

// Visitors lists the active sessions
func (h *AdminHandler) Visitors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sessions := h.coord.Visitors()
	if sessions == nil {
		sessions = []models.VisitorSession{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"visitors": sessions,
		"counts":   h.coord.Counts(r.Context()),
	})
}

// --- Frequent Visitors ---

// FrequentVisitors lists the directory on GET and adds an entry on POST
func (h *AdminHandler) FrequentVisitors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.coord.FrequentVisitors())
	case http.MethodPost:
		var req CreateFrequentVisitorRequest
		if !decode(w, r, &req) {
			return
		}
		fv, err := h.coord.AddFrequentVisitor(r.Context(), req.LastName, req.FirstName)
		if err != nil {
			writeAppError(w, err)
			return
		}
		audit(h.logger, r, "frequent_visitor.create", fv.ID)
		writeJSON(w, http.StatusCreated, fv)
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) DeleteFrequentVisitor(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := idFrom(w, r)
	if !ok {
		return
	}
	fv, err := h.coord.RemoveFrequentVisitor(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	audit(h.logger, r, "frequent_visitor.delete", fv.ID)
	writeJSON(w, http.StatusOK, fv)
}
