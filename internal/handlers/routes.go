package handlers

import (
	"net/http"

	"github.com/ukydev/camperwash/internal/middleware"
)

// Router groups the handlers served by the API
type Router struct {
	Stations *StationHandler
	Notify   *NotifyHandler
	Geocode  *GeocodeHandler
	Uploads  *UploadHandler
	Auth     *AuthHandler
	// Metrics serves the Prometheus exposition. Optional.
	Metrics http.Handler
}

// Health reports liveness
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Mux registers every route. Session and admin checks are applied per route;
// claims must already be in the context (middleware.AuthMiddleware.Authenticate).
func (rt *Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	session := func(h http.HandlerFunc) http.Handler { return middleware.RequireSession(h) }
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	mux.HandleFunc("GET /health", Health)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.HandleFunc("GET /api/stations", rt.Stations.List)
	mux.Handle("POST /api/stations", session(rt.Stations.Create))
	mux.HandleFunc("GET /api/stations/{id}", rt.Stations.Get)
	mux.Handle("PATCH /api/stations/{id}/status", admin(rt.Stations.UpdateStatus))
	mux.Handle("DELETE /api/stations/{id}", admin(rt.Stations.Delete))
	mux.Handle("GET /api/admin/stats", admin(rt.Stations.Stats))

	mux.HandleFunc("POST /api/notify-new-station", rt.Notify.NotifyNewStation)
	mux.HandleFunc("POST /api/contact", rt.Notify.Contact)
	mux.HandleFunc("GET /api/geocode", rt.Geocode.Autocomplete)
	mux.Handle("POST /api/uploads/images", session(rt.Uploads.PresignImage))

	mux.HandleFunc("GET /api/auth/{provider}/login", rt.Auth.Login)
	mux.HandleFunc("GET /api/auth/{provider}/callback", rt.Auth.Callback)
	mux.HandleFunc("GET /api/auth/session", rt.Auth.Session)
	mux.HandleFunc("POST /api/auth/logout", rt.Auth.Logout)

	return mux
}
