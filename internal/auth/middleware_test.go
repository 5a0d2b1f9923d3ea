package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func newTestMiddleware(t *testing.T) *Middleware {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	return NewMiddleware(verifier)
}

func viewerToken(t *testing.T) string {
	return signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
		validClaims("user-123", RoleViewer, ScopeRead, ScopeTelemetry))
}

func controllerToken(t *testing.T) string {
	return signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
		validClaims("admin-456", RoleController, ScopeRead, ScopeControl, ScopeTelemetry))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if GetClaimsFromRequest(r) == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		expected   string
		wantErr    bool
	}{
		{"valid bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"missing header", "", "", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", true},
		{"empty token", "Bearer ", "", true},
		{"blank token", "Bearer    ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			token, err := extractBearerToken(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractBearerToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if token != tt.expected {
				t.Errorf("Expected token %q, got %q", tt.expected, token)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	middleware := newTestMiddleware(t)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid viewer token", "Bearer " + viewerToken(t), http.StatusOK},
		{"valid controller token", "Bearer " + controllerToken(t), http.StatusOK},
		{"missing auth header", "", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			middleware.RequireAuth(okHandler)(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestRequireAuthDisabled(t *testing.T) {
	middleware := NewMiddleware(nil)
	if middleware.Enabled() {
		t.Fatal("Expected middleware without verifier to be disabled")
	}

	var subject string
	handler := middleware.RequireAuth(middleware.RequireScope(ScopeControl)(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", w.Code)
	}
	if subject != AnonymousSubject {
		t.Errorf("Expected subject %q, got %q", AnonymousSubject, subject)
	}
}

func TestRequireScope(t *testing.T) {
	middleware := newTestMiddleware(t)

	tests := []struct {
		name           string
		token          string
		scopes         []string
		expectedStatus int
	}{
		{"viewer can read", viewerToken(t), []string{ScopeRead}, http.StatusOK},
		{"viewer cannot control", viewerToken(t), []string{ScopeControl}, http.StatusForbidden},
		{"controller can control", controllerToken(t), []string{ScopeControl}, http.StatusOK},
		{"all scopes required", viewerToken(t), []string{ScopeRead, ScopeControl}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			middleware.RequireAuth(middleware.RequireScope(tt.scopes...)(okHandler))(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}

	// Without RequireAuth there are no claims
	w := httptest.NewRecorder()
	middleware.RequireScope(ScopeRead)(okHandler)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without claims, got %d", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	middleware := newTestMiddleware(t)

	tests := []struct {
		name           string
		token          string
		roles          []string
		expectedStatus int
	}{
		{"controller role", controllerToken(t), []string{RoleController}, http.StatusOK},
		{"viewer lacks controller", viewerToken(t), []string{RoleController}, http.StatusForbidden},
		{"any of roles", viewerToken(t), []string{RoleController, RoleViewer}, http.StatusOK},
		{"no roles required", viewerToken(t), nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/permissions/RADIO_CONTROL", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()

			middleware.RequireAuth(middleware.RequireRole(tt.roles...)(okHandler))(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestErrorResponseFormat(t *testing.T) {
	middleware := newTestMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil)
	w := httptest.NewRecorder()
	middleware.RequireAuth(okHandler)(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["result"] != "error" || body["code"] != "UNAUTHORIZED" {
		t.Errorf("Unexpected envelope: %v", body)
	}
	if id, _ := body["correlationId"].(string); len(id) != 36 {
		t.Errorf("Expected uuid correlation id, got %v", body["correlationId"])
	}
}

func TestSubject(t *testing.T) {
	middleware := newTestMiddleware(t)

	var subject string
	req := httptest.NewRequest(http.MethodGet, "/api/v1/handlers", nil)
	req.Header.Set("Authorization", "Bearer "+controllerToken(t))
	middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r)
	})(httptest.NewRecorder(), req)

	if subject != "admin-456" {
		t.Errorf("Expected subject admin-456, got %q", subject)
	}
	if s := Subject(httptest.NewRequest(http.MethodGet, "/", nil)); s != "" {
		t.Errorf("Expected empty subject without claims, got %q", s)
	}
}
