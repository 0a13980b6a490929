package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/fleet"
	"tkfleet.io/internal/location"
	"tkfleet.io/internal/obs"
	"tkfleet.io/internal/tenant"
)

const (
	serviceName  = "tkfleet-api"
	maxBodyBytes = 1 << 20
)

// ReadyProbe: проверка готовности зависимостей (БД, Redis).
type ReadyProbe struct {
	Checks map[string]func(context.Context) error
}

// Check runs every named check in name order and returns the first failure.
func (rp ReadyProbe) Check(ctx context.Context) error {
	names := make([]string, 0, len(rp.Checks))
	for name := range rp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rp.Checks[name](ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

type tokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// API: HTTP слой.
type API struct {
	mux       *http.ServeMux
	svc       *fleet.Service
	engine    *location.Engine
	tokens    tokenValidator
	readiness readinessChecker
	version   string
	store     string

	rateBurst  int
	ratePerSec float64
}

// Option configures API.
type Option func(*API)

// WithReadiness sets the probe behind /readyz.
func WithReadiness(rc readinessChecker) Option {
	return func(a *API) { a.readiness = rc }
}

// WithVersion sets the version reported by /healthz and /v1/info.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithStoreMode names the backing store in /v1/info.
func WithStoreMode(mode string) Option {
	return func(a *API) { a.store = mode }
}

// WithRateLimit sets the per-IP token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// New wires the routes. tokens validates bearer access tokens.
func New(svc *fleet.Service, engine *location.Engine, tokens tokenValidator, opts ...Option) (*API, error) {
	if svc == nil || engine == nil || tokens == nil {
		return nil, errors.New("httpapi: service, engine and token validator are required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		engine:     engine,
		tokens:     tokens,
		readiness:  ReadyProbe{},
		version:    "dev",
		store:      "memory",
		rateBurst:  40,
		ratePerSec: 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("POST /v1/auth/login", a.public(a.handleLogin))
	a.mux.Handle("POST /v1/auth/refresh", a.public(a.handleRefresh))
	a.mux.Handle("POST /v1/auth/revoke", a.secured(a.handleRevoke))
	a.mux.Handle("POST /v1/auth/change-password", a.secured(a.handleChangePassword))

	a.mux.Handle("GET /v1/tenants", a.withRole(auth.RoleSuperUser, a.handleListTenants))
	a.mux.Handle("POST /v1/tenants", a.withRole(auth.RoleSuperUser, a.handleCreateTenant))
	a.mux.Handle("GET /v1/tenants/{tenantId}", a.withRole(auth.RoleSuperUser, a.handleGetTenant))
	a.mux.Handle("PUT /v1/tenants/{tenantId}", a.withRole(auth.RoleSuperUser, a.handleRenameTenant))
	a.mux.Handle("DELETE /v1/tenants/{tenantId}", a.withRole(auth.RoleSuperUser, a.handleDeleteTenant))
	a.mux.Handle("POST /v1/tenants/{tenantId}/suspend", a.withRole(auth.RoleSuperUser, a.tenantStatus(fleet.StatusSuspended)))
	a.mux.Handle("POST /v1/tenants/{tenantId}/activate", a.withRole(auth.RoleSuperUser, a.tenantStatus(fleet.StatusActive)))

	a.mux.Handle("GET /v1/users", a.secured(a.handleListUsers))
	a.mux.Handle("POST /v1/users", a.secured(a.handleCreateUser))
	a.mux.Handle("GET /v1/users/{id}", a.secured(a.handleGetUser))
	a.mux.Handle("PUT /v1/users/{id}", a.secured(a.handleUpdateUser))
	a.mux.Handle("DELETE /v1/users/{id}", a.secured(a.handleDeleteUser))
	a.mux.Handle("PUT /v1/users/{id}/roles/{role}", a.secured(a.handleAssignRole))
	a.mux.Handle("DELETE /v1/users/{id}/roles/{role}", a.secured(a.handleRemoveRole))

	a.mux.Handle("GET /v1/vehicles", a.secured(a.handleListVehicles))
	a.mux.Handle("POST /v1/vehicles", a.secured(a.handleCreateVehicle))
	a.mux.Handle("GET /v1/vehicles/{id}", a.secured(a.handleGetVehicle))
	a.mux.Handle("PUT /v1/vehicles/{id}", a.secured(a.handleUpdateVehicle))
	a.mux.Handle("DELETE /v1/vehicles/{id}", a.secured(a.handleDeleteVehicle))
	a.mux.Handle("GET /v1/vehicles/types/{type}", a.secured(a.handleVehiclesByType))

	a.mux.Handle("GET /v1/locations/vehicles/{vehicleId}", a.secured(a.handleReadLocation))
	a.mux.Handle("POST /v1/locations/vehicles/{vehicleId}", a.secured(a.handleUpdateLocation))
	a.mux.Handle("GET /v1/locations/vehicles/{vehicleId}/history", a.secured(a.handleLocationHistory))
	a.mux.Handle("POST /v1/locations/batch", a.withRole(auth.RoleAdmin, a.handleBatchLocations))
}

func (a *API) withRole(min auth.Role, h http.HandlerFunc) http.Handler {
	return a.secured(RequireRole(min)(h).ServeHTTP)
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	// метрики снаружи не видят шаблон маршрута, поэтому Instrument оборачивает mux напрямую
	var h http.Handler = obs.Instrument(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"store":   a.store,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("count must be an integer")
	}
	if val < 1 || val > max {
		return 0, fmt.Errorf("count must be between 1 and %d", max)
	}
	return val, nil
}

// respondError maps domain errors onto status codes. Anything unrecognised
// is logged and answered with a generic body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidArgument),
		errors.Is(err, fleet.ErrInvalidInput),
		errors.Is(err, location.ErrInvalidCoordinates),
		errors.Is(err, tenant.ErrTenantRequired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer realm="tkfleet"`)
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, fleet.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, fleet.ErrConflict), errors.Is(err, fleet.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, fleet.ErrLocked):
		writeError(w, r, http.StatusLocked, err.Error())
	default:
		respondInternal(w, r, err)
	}
}

func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	obs.Error("request_failed", err, map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
