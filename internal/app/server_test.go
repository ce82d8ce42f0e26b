package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/config"
	"github.com/meddy-health/meddy/internal/models"
	"github.com/meddy-health/meddy/internal/services"
	"github.com/meddy-health/meddy/internal/testutil"
)

func testRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	web := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "index.html"), []byte("<h1>Meddy</h1>"), 0o644))

	cfg := &config.Config{
		JWTSecret:      "router-secret",
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		WebDir:         web,
		MaxSteps:       2,
	}
	db := testutil.NewMemDB()
	db.Chats["c1"] = &models.Chat{ID: "c1", UserID: "u1", CreatedAt: time.Now()}
	fake := &testutil.FakeLLM{}
	tb := &services.Toolbox{DB: db, LLM: fake, Doctors: services.NewDoctorService(db, nil)}

	return NewRouter(cfg, Services{
		Users:       services.NewUserService(db),
		Chats:       services.NewChatService(db, fake, tb, cfg.MaxSteps),
		Documents:   services.NewDocumentService(db),
		Attachments: services.NewAttachmentService(db, nil, "", nil),
	}), cfg
}

func bearer(t *testing.T, secret, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestRouterAuthBoundary(t *testing.T) {
	h, cfg := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/api/history", "/api/chat/c1", "/api/files", "/api/user/u1"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", bearer(t, cfg.JWTSecret, "u1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"c1"`)

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", bearer(t, cfg.JWTSecret, "u1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterStaticAndCORS(t *testing.T) {
	h, _ := testRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Meddy")

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
