package handlers

import (
	"fmt"
	"net/http"
	"time"

	"visitorgate/auth"
	"visitorgate/middleware"
)

// Routes groups the handlers mounted by NewMux.
type Routes struct {
	Auth  *AuthHandler
	Kiosk *KioskHandler
	Admin *AdminHandler
	Sync  *SyncHandler
	JWT   *auth.JWTManager
}

// NewMux wires every endpoint. Kiosk routes are public; console routes need
// an admin token.
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Public routes (no authentication required)
	mux.HandleFunc("/health", Health)
	mux.HandleFunc("/api/admin/login", rt.Auth.Login)

	// Kiosk
	mux.HandleFunc("/api/kiosk/fix", rt.Kiosk.Fix)
	mux.HandleFunc("/api/kiosk/locate", rt.Kiosk.Locate)
	mux.HandleFunc("/api/kiosk/detection", rt.Kiosk.Detection)
	mux.HandleFunc("/api/kiosk/checkin", rt.Kiosk.CheckIn)
	mux.HandleFunc("/api/kiosk/checkout", rt.Kiosk.CheckOut)
	mux.HandleFunc("/api/kiosk/search", rt.Kiosk.Search)
	mux.HandleFunc("/api/kiosk/counts", rt.Kiosk.Counts)
	mux.HandleFunc("/api/kiosk/frequent-visitors", rt.Kiosk.FrequentVisitors)
	mux.HandleFunc("/api/notifications/latest", rt.Kiosk.LatestNotification)

	// Admin endpoints (admin only)
	authMiddleware := middleware.AuthMiddleware(rt.JWT)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(adminOnly(h))
	}
	mux.Handle("/api/admin/locations", protect(rt.Admin.Locations))
	mux.Handle("/api/admin/locations/update", protect(rt.Admin.UpdateLocation))
	mux.Handle("/api/admin/locations/delete", protect(rt.Admin.DeleteLocation))
	mux.Handle("/api/admin/locations/current-position", protect(rt.Admin.CurrentPosition))
	mux.Handle("/api/admin/logs", protect(rt.Admin.Logs))
	mux.Handle("/api/admin/visitors", protect(rt.Admin.Visitors))
	mux.Handle("/api/admin/frequent-visitors", protect(rt.Admin.FrequentVisitors))
	mux.Handle("/api/admin/frequent-visitors/delete", protect(rt.Admin.DeleteFrequentVisitor))

	// Sync endpoints
	mux.Handle("/api/sync/push", protect(rt.Sync.Push))
	mux.Handle("/api/sync/pull", protect(rt.Sync.Pull))
	mux.Handle("/api/sync/online", protect(rt.Sync.Online))
	mux.Handle("/api/sync/status", protect(rt.Sync.Status))

	return mux
}

// Health check endpoint
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":"1.0.0"}`, time.Now().Unix())
}
