package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/paphko/habpanelviewer/internal/auth"
	"github.com/paphko/habpanelviewer/internal/command"
)

// maxCommandBody bounds POST /commands request bodies.
const maxCommandBody = 4 << 10

// CommandRequest is the body of POST /commands.
type CommandRequest struct {
	Command string `json:"command"`
}

// registerRoutes registers all v1 endpoints.
func (s *Server) registerRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Health endpoint (no auth required)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1.HandleFunc("/commands", s.protect(s.handleCommand, auth.ScopeControl)).Methods(http.MethodPost)
	v1.HandleFunc("/handlers", s.protect(s.handleHandlers, auth.ScopeRead)).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry", s.protect(s.handleTelemetry, auth.ScopeTelemetry)).Methods(http.MethodGet)

	v1.HandleFunc("/permissions", s.protect(s.handleListPermissions, auth.ScopeRead)).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/{name}", s.protect(s.handleGetPermission, auth.ScopeRead)).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/{name}", s.protect(s.handleGrantPermission, auth.ScopeControl)).Methods(http.MethodPut)
	v1.HandleFunc("/permissions/{name}", s.protect(s.handleRevokePermission, auth.ScopeControl)).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "Resource not found", nil)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not allowed", r.Method), nil)
	})
}

// protect wraps h with authentication and the given scope requirement.
func (s *Server) protect(h http.HandlerFunc, scopes ...string) http.HandlerFunc {
	return s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(scopes...)(h))
}

// handleCommand handles POST /commands
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Dispatcher not available", nil)
		return
	}

	var request CommandRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest,
			"Invalid JSON in request body", nil)
		return
	}

	name := request.Command
	if name == "" {
		WriteError(w, http.StatusBadRequest, CodeBadRequest,
			"command is required", nil)
		return
	}
	// Names are matched exactly and never rewritten
	if strings.TrimSpace(name) != name {
		WriteError(w, http.StatusBadRequest, CodeBadRequest,
			"command must not have leading or trailing whitespace", nil)
		return
	}

	cmd := command.New(name, command.WithIssuer(auth.Subject(r)))

	// A client disconnect must not abort a device operation halfway
	ctx := context.WithoutCancel(r.Context())
	if !s.dispatcher.Dispatch(ctx, cmd) {
		WriteError(w, http.StatusNotFound, command.ErrUnrecognizedCommand.Error(),
			fmt.Sprintf("No handler recognizes command %s", name), cmd.Snapshot())
		return
	}

	WriteSuccess(w, cmd.Snapshot())
}

// handleHandlers handles GET /handlers
func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Dispatcher not available", nil)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"handlers": s.dispatcher.Handlers(),
	})
}

// handleTelemetry handles GET /telemetry (SSE)
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Telemetry service not available", nil)
		return
	}

	// The stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Failed to subscribe to telemetry stream", nil)
	}
}

// handleListPermissions handles GET /permissions
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	if !s.requireGrants(w) {
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"granted": s.grants.List(),
	})
}

// handleGetPermission handles GET /permissions/{name}
func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	name, ok := s.permissionName(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, permissionState(name, s.grants.Granted(name)))
}

// handleGrantPermission handles PUT /permissions/{name}
func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	name, ok := s.permissionName(w, r)
	if !ok {
		return
	}
	changed := s.grants.Grant(name)
	data := permissionState(name, true)
	data["changed"] = changed
	WriteSuccess(w, data)
}

// handleRevokePermission handles DELETE /permissions/{name}
func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	name, ok := s.permissionName(w, r)
	if !ok {
		return
	}
	changed := s.grants.Revoke(name)
	data := permissionState(name, false)
	data["changed"] = changed
	WriteSuccess(w, data)
}

func (s *Server) requireGrants(w http.ResponseWriter) bool {
	if s.grants == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"Permission store not available", nil)
		return false
	}
	return true
}

// permissionName extracts and validates the {name} path variable.
func (s *Server) permissionName(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.requireGrants(w) {
		return "", false
	}
	name := mux.Vars(r)["name"]
	if err := validatePermissionName(name); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return "", false
	}
	return name, true
}

// validatePermissionName accepts UPPER_SNAKE identifiers.
func validatePermissionName(name string) error {
	if name == "" {
		return errors.New("permission name is required")
	}
	for _, r := range name {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("invalid permission name %q", name)
		}
	}
	return nil
}

func permissionState(name string, granted bool) map[string]interface{} {
	return map[string]interface{}{
		"permission": name,
		"granted":    granted,
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	subsystems := map[string]bool{
		"dispatcher":  s.dispatcher != nil,
		"telemetry":   s.telemetryHub != nil,
		"permissions": s.grants != nil,
		"auth":        s.authMiddleware.Enabled(),
	}

	handlerCount := 0
	if s.dispatcher != nil {
		handlerCount = len(s.dispatcher.Handlers())
	}

	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"handlers":   handlerCount,
		"subsystems": subsystems,
	}

	if s.dispatcher == nil || handlerCount == 0 {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"No command handlers registered", health)
		return
	}
	WriteSuccess(w, health)
}
