package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/safehome/safehome/internal/auth"
	"github.com/safehome/safehome/internal/camera"
	"github.com/safehome/safehome/internal/configuration"
	"github.com/safehome/safehome/internal/controlpanel"
	"github.com/safehome/safehome/internal/storage"
	"github.com/safehome/safehome/internal/system"
)

// HTTPServer serves the SafeHome JSON API.
type HTTPServer struct {
	sys       *system.System
	panel     *controlpanel.Panel
	sessions  *auth.SessionStore
	tokens    *auth.TokenIssuer
	auth      *auth.Middleware
	retention *RetentionWorker
	origins   []string
}

// NewHTTPServer creates the API server. The session cookie settings come
// from cfg.
func NewHTTPServer(sys *system.System, panel *controlpanel.Panel, sessions *auth.SessionStore, tokens *auth.TokenIssuer, cfg Config) *HTTPServer {
	return &HTTPServer{
		sys:      sys,
		panel:    panel,
		sessions: sessions,
		tokens:   tokens,
		auth:     auth.NewMiddleware(sys.Store(), sessions, tokens, cfg.CookieName, cfg.CookieSecure),
		origins:  cfg.CORSOrigins,
	}
}

// SetRetention exposes the statistics of w on /api/stats.
func (s *HTTPServer) SetRetention(w *RetentionWorker) {
	s.retention = w
}

// Routes returns the HTTP handler with all routes configured.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		// The keypad authenticates its own users.
		r.Get("/panel", s.handlePanel)
		r.Post("/panel/press", s.handlePanelPress)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuthAPI)

			r.Post("/logout", s.handleLogout)
			r.Put("/users/me/password", s.handleChangePassword)

			r.Get("/sensors", s.handleListSensors)
			r.Get("/cameras", s.handleListCameras)
			r.Get("/cameras/{id}/view", s.handleCameraView)
			r.Post("/cameras/{id}/unlock", s.handleUnlockCamera)
			r.Get("/zones", s.handleListZones)
			r.Get("/modes", s.handleListModes)
			r.Get("/settings", s.handleGetSettings)
			r.Get("/logs", s.handleQueryLogs)
			r.Get("/logs/stream", s.handleLogStream)
			r.Get("/stats", s.handleStats)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.RequireRole(storage.RoleHomeowner))

				r.Post("/sensors/{id}/{action}", s.handleSensorAction)

				r.Post("/cameras", s.handleAddCamera)
				r.Delete("/cameras/{id}", s.handleDeleteCamera)
				r.Post("/cameras/{id}/control", s.handleCameraControl)
				r.Post("/cameras/{id}/enable", s.handleEnableCamera)
				r.Post("/cameras/{id}/disable", s.handleDisableCamera)
				r.Put("/cameras/{id}/password", s.handleCameraPassword)

				r.Post("/zones", s.handleAddZone)
				r.Put("/zones/{id}", s.handleUpdateZone)
				r.Delete("/zones/{id}", s.handleDeleteZone)
				r.Post("/zones/{id}/arm", s.handleArmZone)
				r.Post("/zones/{id}/disarm", s.handleDisarmZone)

				r.Post("/modes", s.handleAddMode)
				r.Put("/modes/{id}", s.handleUpdateMode)
				r.Delete("/modes/{id}", s.handleDeleteMode)
				r.Post("/modes/{name}/activate", s.handleActivateMode)

				r.Put("/settings", s.handleUpdateSettings)

				r.Post("/alarm/stop", s.handleStopAlarm)
				r.Post("/system/off", s.handleTurnOff)
				r.Post("/system/reset", s.handleReset)
			})
		})
	})

	return r
}

// withLogging wraps a handler with request logging.
func (s *HTTPServer) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps package sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, system.ErrOff):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, camera.ErrNotFound),
		errors.Is(err, configuration.ErrZoneNotFound),
		errors.Is(err, configuration.ErrModeNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, configuration.ErrZoneExists),
		errors.Is(err, configuration.ErrZoneOverlap),
		errors.Is(err, camera.ErrAtLimit):
		return http.StatusConflict
	case errors.Is(err, storage.ErrConstraint),
		errors.Is(err, configuration.ErrInvalidSettings),
		errors.Is(err, configuration.ErrInvalidZone),
		errors.Is(err, camera.ErrInvalidControl),
		errors.Is(err, auth.ErrInvalidPanelPassword),
		errors.Is(err, auth.ErrInvalidWebPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		respondError(w, status, "internal server error")
		return
	}
	respondError(w, status, err.Error())
}

// running returns m, or answers 503 when the system is off and m is nil.
func running[T any](w http.ResponseWriter, m *T) (*T, bool) {
	if m == nil {
		writeError(w, system.ErrOff)
		return nil, false
	}
	return m, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

type healthResponse struct {
	Status   string `json:"status"`
	SystemOn bool   `json:"systemOn"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", SystemOn: s.sys.IsOn()})
}
