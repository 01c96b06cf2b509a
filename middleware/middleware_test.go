package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorgate/auth"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour)
	adminToken, err := m.GenerateToken("admin", auth.RoleAdmin)
	require.NoError(t, err)
	otherToken, err := m.GenerateToken("guard", auth.Role("SUPERVISOR"))
	require.NoError(t, err)

	h := AuthMiddleware(m)(RequireRole(auth.RoleAdmin)(ok))

	cases := map[string]struct {
		header string
		want   int
	}{
		"missing":    {"", http.StatusUnauthorized},
		"malformed":  {"Token abc", http.StatusUnauthorized},
		"bad token":  {"Bearer nope", http.StatusUnauthorized},
		"wrong role": {"Bearer " + otherToken, http.StatusForbidden},
		"admin":      {"Bearer " + adminToken, http.StatusOK},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/locations", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, name)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(ok)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))

	rl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 2, rl.Prune(time.Hour))
}

func TestClientIP_ForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"https://kiosk.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/kiosk/checkin", nil)
	req.Header.Set("Origin", "https://kiosk.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://kiosk.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/kiosk/counts", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
