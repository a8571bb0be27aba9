package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deliblab/deliblab/internal/logger"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := ExperimenterIDFromContext(r.Context())
		_, _ = w.Write([]byte(uid))
	})
}

func TestAuthRoundTrip(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.SignToken("x1", "amy@example.org", time.Hour)
	require.NoError(t, err)

	h := a.WithAuth(RequireAuth(whoami()))
	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x1", rec.Body.String())
}

func TestAuthRejects(t *testing.T) {
	a := NewAuthenticator("s3cret")
	other, _ := NewAuthenticator("different").SignToken("x1", "e", time.Hour)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := a.SignToken("x1", "e", time.Hour)
	a.now = time.Now

	h := a.WithAuth(RequireAuth(whoami()))
	for name, header := range map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + other,
		"expired":      "Bearer " + expired,
		"not bearer":   "Basic abc",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://lab.example.org/"})(whoami())

	req := httptest.NewRequest(http.MethodOptions, "/api/join", nil)
	req.Header.Set("Origin", "https://lab.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://lab.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/join", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	CORS(nil)(whoami()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoStoreOnlyForAPI(t *testing.T) {
	h := Chain(whoami(), NoStore, SecureHeaders)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/experiments", nil))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestLocaleMiddleware(t *testing.T) {
	var got string
	h := LocaleMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "zh", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health?lang=en", nil))
	assert.Equal(t, "en", got)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := AccessLog(logger.FromZap(zap.New(core)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	details := entries[1].ContextMap()["details"].(map[string]any)
	assert.Equal(t, 500, details["status"])
}
