package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func TestJWT(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": "u1", "email": "ada@example.com", "exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u1"})
	noUser := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"email": "ada@example.com"})
	hs512 := sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"user_id": "u1"})

	cases := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
		wantBody string
	}{
		{"bearer", "Bearer " + valid, "", http.StatusOK, "u1"},
		{"cookie", "", valid, http.StatusOK, "u1"},
		{"missing", "", "", http.StatusUnauthorized, "missing or invalid token\n"},
		{"not bearer", "Basic abc", "", http.StatusUnauthorized, "missing or invalid token\n"},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, "invalid token\n"},
		{"wrong key", "Bearer " + wrongKey, "", http.StatusUnauthorized, "invalid token\n"},
		{"other alg", "Bearer " + hs512, "", http.StatusUnauthorized, "invalid token\n"},
		{"no user claim", "Bearer " + noUser, "", http.StatusUnauthorized, "invalid token claims\n"},
	}

	h := JWT(testSecret)(echoUser())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserIDFromContext(req.Context())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(req.Context(), "u9"))
	assert.True(t, ok)
	assert.Equal(t, "u9", id)
}
