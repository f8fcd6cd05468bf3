package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/securevault/internal/config"
	"github.com/iliyamo/securevault/internal/handler"
	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/model"
	"github.com/iliyamo/securevault/internal/repository"
	"github.com/iliyamo/securevault/internal/utils"
)

const secret = "router-secret"

type users map[string]*model.User

func (u users) GetByID(_ context.Context, id string) (*model.User, error) {
	if x, ok := u[id]; ok {
		return x, nil
	}
	return nil, repository.ErrUserNotFound
}

type docs map[string]*model.Document

func (d docs) GetByID(_ context.Context, id string) (*model.Document, error) {
	if x, ok := d[id]; ok {
		return x, nil
	}
	return nil, repository.ErrDocumentNotFound
}

func newTestRouter(t *testing.T, limit int) *echo.Echo {
	t.Helper()
	cfg := config.Defaults()
	cfg.JWTSecret = secret
	cfg.RateLimit.Max = limit

	return New(Deps{
		Config: cfg,
		Users: users{
			"alice": {ID: "alice", Role: model.RoleUser, IsActive: true},
			"bob":   {ID: "bob", Role: model.RoleUser, IsActive: true},
			"root":  {ID: "root", Role: model.RoleAdmin, IsActive: true},
		},
		Docs: docs{
			"d1": {ID: "d1", UserID: "alice", Title: "Lease", Tags: []string{}},
		},
		Metrics:   metrics.New(),
		Auth:      handler.NewAuthHandler(cfg, nil),
		Documents: handler.NewDocumentHandler(true, nil),
		UserPages: handler.NewUserHandler(true, nil, nil),
	})
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	tok, err := utils.IssueToken(secret, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func call(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestRouter(t, 100)

	rec := call(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = call(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "securevault_http_requests_total"))
}

func TestUnknownRoute(t *testing.T) {
	e := newTestRouter(t, 100)
	rec := call(e, http.MethodGet, "/api/nothing-here", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", body(t, rec)["error"])
}

func TestDocumentRoutesNeedToken(t *testing.T) {
	e := newTestRouter(t, 100)
	for _, path := range []string{"/api/documents", "/api/documents/d1", "/api/users/dashboard", "/api/auth/profile"} {
		rec := call(e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestOwnershipGate(t *testing.T) {
	e := newTestRouter(t, 100)

	rec := call(e, http.MethodGet, "/api/documents/d1", bearer(t, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := body(t, rec)["document"].(map[string]any)
	assert.Equal(t, "d1", doc["id"])

	rec = call(e, http.MethodGet, "/api/documents/d1", bearer(t, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(e, http.MethodGet, "/api/documents/missing", bearer(t, "alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestRouter(t, 100)

	rec := call(e, http.MethodGet, "/api/admin/documents/d1", bearer(t, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Admin privileges required.", body(t, rec)["error"])

	rec = call(e, http.MethodGet, "/api/admin/documents/d1", bearer(t, "root"))
	require.Equal(t, http.StatusOK, rec.Code)

	// The admin path does not widen the owner routes.
	rec = call(e, http.MethodGet, "/api/documents/d1", bearer(t, "root"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileOnBothPrefixes(t *testing.T) {
	e := newTestRouter(t, 100)
	for _, path := range []string{"/api/auth/profile", "/api/users/profile"} {
		rec := call(e, http.MethodGet, path, bearer(t, "alice"))
		require.Equal(t, http.StatusOK, rec.Code, path)
		u := body(t, rec)["user"].(map[string]any)
		assert.Equal(t, "alice", u["id"])
	}
}

func TestGlobalRateLimit(t *testing.T) {
	e := newTestRouter(t, 2)

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/health", "").Code)

	rec := call(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUploadBodyLimit(t *testing.T) {
	e := newTestRouter(t, 100)
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", strings.NewReader("x"))
	req.Header.Set(echo.HeaderAuthorization, bearer(t, "alice"))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=xyz")
	req.ContentLength = 60 << 20
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large. Maximum size is 50MB.", body(t, rec)["error"])
}
