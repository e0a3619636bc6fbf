// Package api exposes the HTTP interface for the resolver service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaresolver/internal/metrics"
	"mediaresolver/internal/resolver"
	"mediaresolver/internal/stats"
)

const requestTimeout = 60 * time.Second

// Resolver runs the resolve pipeline end to end.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error)
}

// CredentialAdmin is the pool's operator surface.
type CredentialAdmin interface {
	Add(ctx context.Context, platform resolver.Platform, tier resolver.CredentialTier, input resolver.CredentialInput) (resolver.Credential, error)
	Reset(ctx context.Context, credentialID string) error
	Disable(ctx context.Context, credentialID string) error
	List(ctx context.Context, platform resolver.Platform) ([]resolver.Credential, error)
}

// StatsSource serves the aggregate counters for the admin surface.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// AdminSettings is the mutable runtime configuration surface.
type AdminSettings interface {
	resolver.Settings
	SetMaintenanceMode(on bool)
	SetPlatformEnabled(platform resolver.Platform, enabled bool)
	SetGlobalRateLimit(limit int, window time.Duration)
	SetCacheTTL(platform resolver.Platform, ttl time.Duration)
}

// Server wires HTTP handlers to the pipeline and admin collaborators.
type Server struct {
	router   chi.Router
	resolver Resolver
	cache    resolver.ResultCache
	creds    CredentialAdmin
	stats    StatsSource
	settings AdminSettings
	adminKey string
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	res Resolver,
	cache resolver.ResultCache,
	creds CredentialAdmin,
	statsSource StatsSource,
	settings AdminSettings,
	adminKey string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resolver: res,
		cache:    cache,
		creds:    creds,
		stats:    statsSource,
		settings: settings,
		adminKey: adminKey,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.resolvePost)
		r.Get("/resolve", s.resolveGet)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminKeyMiddleware(adminKey))
			r.Get("/stats", s.getStats)
			r.Post("/cache/clear", s.clearCache)
			r.Get("/credentials", s.listCredentials)
			r.Post("/credentials", s.addCredential)
			r.Post("/credentials/{credential_id}/reset", s.resetCredential)
			r.Post("/credentials/{credential_id}/disable", s.disableCredential)
			r.Post("/maintenance", s.setMaintenance)
			r.Post("/platforms/{platform}", s.setPlatform)
			r.Post("/ratelimit", s.setRateLimit)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The cache degrades to miss/no-op when its backend is down, so
	// readiness only refuses traffic during maintenance.
	if s.settings.MaintenanceMode() {
		writeError(w, http.StatusServiceUnavailable, "maintenance mode active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) resolvePost(w http.ResponseWriter, r *http.Request) {
	var req resolver.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.resolve(w, r, req)
}

func (s *Server) resolveGet(w http.ResponseWriter, r *http.Request) {
	req := resolver.Request{URL: r.URL.Query().Get("url")}
	if cookie := r.URL.Query().Get("cookie"); cookie != "" {
		req.Cookie = resolver.RawCredentialInput(cookie)
	}
	s.resolve(w, r, req)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, req resolver.Request) {
	req.APIKey = callerKey(r)
	req.ClientIP = clientIP(r)

	resp, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		if resp.RetryAfterMs > 0 {
			seconds := (resp.RetryAfterMs + 999) / 1000
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		}
		writeJSON(w, resolver.HTTPStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	platform, err := optionalPlatform(r.URL.Query().Get("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := s.cache.Clear(r.Context(), platform)
	if err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	platform, err := optionalPlatform(r.URL.Query().Get("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creds, err := s.creds.List(r.Context(), platform)
	if err != nil {
		s.logger.Error("credential list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "credential list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

type addCredentialRequest struct {
	Platform string                   `json:"platform"`
	Tier     string                   `json:"tier"`
	Cookie   resolver.CredentialInput `json:"cookie"`
}

func (s *Server) addCredential(w http.ResponseWriter, r *http.Request) {
	var req addCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	platform, err := knownPlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tier := resolver.CredentialTier(req.Tier)
	if tier == "" {
		tier = resolver.TierPublic
	}
	if tier != resolver.TierPublic && tier != resolver.TierPrivate {
		writeError(w, http.StatusBadRequest, "tier must be public or private")
		return
	}
	if req.Cookie.IsZero() {
		writeError(w, http.StatusBadRequest, "cookie is required")
		return
	}
	cred, err := s.creds.Add(r.Context(), platform, tier, req.Cookie)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (s *Server) resetCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credential_id")
	if err := s.creds.Reset(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(resolver.StatusHealthy)})
}

func (s *Server) disableCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credential_id")
	if err := s.creds.Disable(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(resolver.StatusDisabled)})
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.settings.SetMaintenanceMode(req.Enabled)
	s.logger.Info("maintenance mode changed", zap.Bool("enabled", req.Enabled))
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

type platformToggleRequest struct {
	Enabled      bool `json:"enabled"`
	CacheTTLMins int  `json:"cache_ttl_minutes,omitempty"`
}

func (s *Server) setPlatform(w http.ResponseWriter, r *http.Request) {
	platform, err := knownPlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req platformToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.settings.SetPlatformEnabled(platform, req.Enabled)
	if req.CacheTTLMins > 0 {
		s.settings.SetCacheTTL(platform, time.Duration(req.CacheTTLMins)*time.Minute)
	}
	s.logger.Info("platform toggled",
		zap.String("platform", string(platform)),
		zap.Bool("enabled", req.Enabled),
	)
	writeJSON(w, http.StatusOK, map[string]any{"platform": platform, "enabled": req.Enabled})
}

type rateLimitRequest struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

func (s *Server) setRateLimit(w http.ResponseWriter, r *http.Request) {
	var req rateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.WindowSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "window_seconds must be > 0")
		return
	}
	s.settings.SetGlobalRateLimit(req.Limit, time.Duration(req.WindowSeconds)*time.Second)
	writeJSON(w, http.StatusOK, map[string]int{"limit": req.Limit, "window_seconds": req.WindowSeconds})
}

func knownPlatform(raw string) (resolver.Platform, error) {
	platform := resolver.Platform(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range resolver.Platforms() {
		if platform == p {
			return platform, nil
		}
	}
	return resolver.PlatformUnknown, fmt.Errorf("unknown platform %q", raw)
}

func optionalPlatform(raw string) (resolver.Platform, error) {
	if strings.TrimSpace(raw) == "" {
		return resolver.PlatformUnknown, nil
	}
	return knownPlatform(raw)
}

func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func adminKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" || r.Header.Get("X-Admin-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
