package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/fleethub/internal/auth"
	"github.com/geocoder89/fleethub/internal/config"
	"github.com/geocoder89/fleethub/internal/loginguard"
	"github.com/geocoder89/fleethub/internal/observability"
	"github.com/geocoder89/fleethub/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager("router-test-secret")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()

	return NewRouter(Deps{
		Config:   cfg,
		Log:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Users:    memory.NewUsersRepo(),
		Tokens:   tokens,
		Guard:    loginguard.NewMemory(loginguard.Options{}),
		Prom:     observability.NewProm(reg),
		Gatherer: reg,
	})
}

func defaultTestConfig() config.Config {
	return config.Config{
		Env:             "test",
		RateLimitRPS:    100,
		RateLimitBurst:  100,
		MaxBodyBytes:    1 << 20,
		OTELServiceName: "fleethub-test",
	}
}

func send(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEndToEnd_SignupLoginProfile(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	w := send(r, http.MethodPost, "/auth/signup", `{"name":"Ann","email":"ann@x.com","password":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = send(r, http.MethodPost, "/auth/login", `{"email":"ann@x.com","password":"secret1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	w = send(r, http.MethodGet, "/profile", "", map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, w.Code)

	var profile map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.NotEmpty(t, profile["id"])
	assert.Equal(t, "Ann", profile["name"])
	assert.Equal(t, "ann@x.com", profile["email"])
	assert.Equal(t, "user", profile["role"])
	assert.Len(t, profile, 4)

	w = send(r, http.MethodPost, "/auth/login", `{"email":"ann@x.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var failed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, "Invalid credentials", failed["error"])

	w = send(r, http.MethodGet, "/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_TokenFromAnotherSecretIsForbidden(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	other, err := auth.NewManager("some-other-secret")
	require.NoError(t, err)
	token, err := other.Issue(auth.Identity{ID: "u-1", Email: "ann@x.com", Name: "Ann", Role: "admin"})
	require.NoError(t, err)

	w := send(r, http.MethodGet, "/profile", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = send(r, http.MethodGet, "/admin/users/u-1", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_AuthRoutesAreRateLimited(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2
	r := newTestRouter(t, cfg)

	body := `{"email":"ann@x.com","password":"whatever"}`
	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodPost, "/auth/login", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodPost, "/auth/login", body, nil).Code)

	w := send(r, http.MethodPost, "/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// profile is not behind the auth limiter
	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/profile", "", nil).Code)
}

func TestRouter_ProtectedRoutesCheckTokenBeforeBody(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	put := func(headers map[string]string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// no Content-Type either: the missing token wins
	w := put(nil, `{"name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	w = put(map[string]string{"Authorization": "Bearer garbage"}, `{"name":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	big := `{"name":"` + strings.Repeat("a", 2<<20) + `"}`
	w = put(map[string]string{"Content-Type": "application/json"}, big)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// once authenticated, the body rules still apply
	token := signupAndLogin(t, r, "ann@x.com")
	w = put(map[string]string{"Authorization": "Bearer " + token, "Content-Type": "text/plain"}, `{"name":"x"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_ProtectedRoutesAreRateLimitedPerUser(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.UserRateLimitRPS = 0.001
	cfg.UserRateLimitBurst = 2
	r := newTestRouter(t, cfg)

	ann := map[string]string{"Authorization": "Bearer " + signupAndLogin(t, r, "ann@x.com")}
	bob := map[string]string{"Authorization": "Bearer " + signupAndLogin(t, r, "bob@x.com")}

	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/profile", "", ann).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodPut, "/profile", `{"name":"Annie"}`, ann).Code)

	w := send(r, http.MethodGet, "/profile", "", ann)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// same client IP, different account
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/profile", "", bob).Code)
}

func signupAndLogin(t *testing.T, r http.Handler, email string) string {
	t.Helper()

	w := send(r, http.MethodPost, "/auth/signup", `{"name":"User","email":"`+email+`","password":"secret1"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = send(r, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"secret1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestRouter_RequiresJSONBodies(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	w := send(r, http.MethodPost, "/auth/signup", "", map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, defaultTestConfig())

	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/readyz", "", nil).Code)

	send(r, http.MethodPost, "/auth/login", `{"email":"ann@x.com","password":"nope"}`, nil)

	w := send(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "fleethub_http_requests_total"))
	assert.True(t, strings.Contains(w.Body.String(), `fleethub_auth_results_total{op="login",result="invalid_credentials"} 1`))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
