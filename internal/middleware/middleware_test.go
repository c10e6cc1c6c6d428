package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tienda-be/internal/metrics"
	"tienda-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func TestCors(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS("http://localhost:3000")(nextHandler)

	t.Run("OPTIONS request", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Cart-Session")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuth(t *testing.T) {
	t.Run("Missing Token", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok, "Context should not contain user ID")
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()

		Auth(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Invalid Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		Auth(testSecret)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
	})

	t.Run("Valid Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"user_id": 1,
			"email":   "ana@example.com",
			"role":    "user",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, int64(1), userID)
			assert.Equal(t, "ana@example.com", utils.GetUserEmailFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		})

		Auth(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Cookie Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{"user_id": 5, "exp": time.Now().Add(time.Hour).Unix()})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: tokenString})
		w := httptest.NewRecorder()

		var got int64
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = utils.GetUserIDFromContext(r.Context())
		})

		Auth(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, int64(5), got)
	})

	t.Run("Expired Token", func(t *testing.T) {
		tokenString := signToken(t, jwt.MapClaims{
			"user_id": 1,
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		Auth(testSecret)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "token expired")
	})

	t.Run("Wrong Signing Method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1, "role": "admin"})
		tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		w := httptest.NewRecorder()

		Auth(testSecret)(http.NotFoundHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic user:pass")
		w := httptest.NewRecorder()

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := utils.GetUserIDFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		})

		Auth(testSecret)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireRole(utils.RoleAdmin)(ok)

	tests := []struct {
		name string
		ctx  func(*http.Request) *http.Request
		want int
	}{
		{"Anonymous", func(r *http.Request) *http.Request { return r }, http.StatusUnauthorized},
		{"Customer", func(r *http.Request) *http.Request {
			return r.WithContext(utils.SetUserContext(r.Context(), 42, "ana@example.com", "user"))
		}, http.StatusForbidden},
		{"Admin", func(r *http.Request) *http.Request {
			return r.WithContext(utils.SetUserContext(r.Context(), 1, "ops@example.com", utils.RoleAdmin))
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.ctx(httptest.NewRequest(http.MethodPost, "/payments/123/refund", nil))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/7", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLimiter(t *testing.T) {
	l := NewLimiter()
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path, ip string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < burstStrict; i++ {
		assert.Equal(t, http.StatusOK, send("/payments/card/process", "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("/payments/card/process", "10.0.0.1"))

	// Other tiers and other callers keep their own quota.
	assert.Equal(t, http.StatusOK, send("/cart", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("/payments/card/process", "10.0.0.2"))

	l.cleanup(time.Now().Add(time.Hour))
	assert.Empty(t, l.visitors)
}

func TestIdentity(t *testing.T) {
	anon := func(session string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/payments/card/process", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		req.Header.Set("X-Cart-Session", session)
		return req
	}

	assert.Equal(t, "ip:10.0.0.9", identity(anon("a")))
	assert.Equal(t, identity(anon("a")), identity(anon("b")))

	req := anon("a")
	req = req.WithContext(utils.SetUserContext(req.Context(), 42, "a@b.co", "user"))
	assert.Equal(t, "user:42", identity(req))
}

func TestLimiter_RotatingCartSessionSharesQuota(t *testing.T) {
	l := NewLimiter()
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	last := 0
	for i := 0; i <= burstStrict; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payments/card/process", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		req.Header.Set("X-Cart-Session", fmt.Sprintf("guest-%d", i))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestResolveRateTier(t *testing.T) {
	for path, want := range map[string]string{
		"/payments/webhook":         "webhook",
		"/payments/webhook/wompi":   "webhook",
		"/payments/card/token":      "strict",
		"/payments/card/process":    "strict",
		"/payments/123":             "general",
		"/payments/payment-methods": "general",
	} {
		_, _, tier := resolveRateTier(httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, want, tier, path)
	}
}

func TestMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/orders/{id}", "403"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/7", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/orders/{id}", "403")))
}
