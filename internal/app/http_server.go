package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"timetracker/internal/domain"
	"timetracker/internal/identity"
)

const (
	apiPrefix    = "/api/time-entries"
	maxBodyBytes = 1 << 20
)

// HTTPServer returns a configured http.Server exposing the time-entry API.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("http server configured", slog.String("addr", addr))
	return srv
}

// Handler returns the full HTTP handler: health check plus the
// identity-protected API, wrapped in CORS, request logging and tracing.
func (a *App) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST "+apiPrefix+"/start", a.handleStart)
	api.HandleFunc("POST "+apiPrefix+"/stop", a.handleStop)
	api.HandleFunc("POST "+apiPrefix+"/update-description", a.handleUpdateDescription)
	api.HandleFunc("GET "+apiPrefix+"/current", a.handleCurrent)
	api.HandleFunc("GET "+apiPrefix+"/history", a.handleHistory)
	api.HandleFunc("DELETE "+apiPrefix+"/{timeEntryId}", a.handleDelete)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(apiPrefix+"/", identity.Middleware(a.resolver, a.unauthenticated, api))

	var h http.Handler = mux
	h = loggingMiddleware(a.log, h)
	h = corsMiddleware(a.cfg.HTTP.AllowedOrigin, a.cfg.Identity.Header, h)
	return otelhttp.NewHandler(h, "timetracker")
}

type startRequest struct {
	ProjectName string `json:"projectName"`
}

type updateDescriptionRequest struct {
	TimeEntryID string `json:"timeEntryId"`
	Description string `json:"description"`
}

type deleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.tracker.Start(r.Context(), userID(r), req.ProjectName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	entry, err := a.tracker.Stop(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *App) handleCurrent(w http.ResponseWriter, r *http.Request) {
	entry, err := a.tracker.Current(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	// A nil pointer encodes as null, which is what clients expect when idle.
	writeJSON(w, http.StatusOK, entry)
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.tracker.History(r.Context(), userID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *App) handleUpdateDescription(w http.ResponseWriter, r *http.Request) {
	var req updateDescriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.TimeEntryID) == "" {
		a.writeError(w, r, domain.InvalidInputf("timeEntryId is required"))
		return
	}
	entry, err := a.tracker.UpdateDescription(r.Context(), userID(r), req.TimeEntryID, req.Description)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("timeEntryId")
	if err := a.tracker.DeleteEntry(r.Context(), userID(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Message: "Time entry deleted", ID: id})
}

func (a *App) unauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Message: err.Error()})
}

// writeError maps domain error kinds onto status codes. Infrastructure
// failures are logged with their cause and reported without it.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, errorResponse{Message: domain.Message(err)})
}

func userID(r *http.Request) string {
	id, _ := identity.UserFrom(r.Context())
	return id
}

// decodeBody reads a JSON body into v. An empty body leaves v zero.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.InvalidInputf("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

// corsMiddleware allows the browser frontend at origin to call the API and
// answers preflight requests.
func corsMiddleware(origin, identityHeader string, next http.Handler) http.Handler {
	allowHeaders := "Content-Type, Authorization"
	if identityHeader != "" {
		allowHeaders += ", " + identityHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" && r.Header.Get("Origin") == origin {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
