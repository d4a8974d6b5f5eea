package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/credentials"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *httptest.Server
	engine *authgate.Engine
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authgate.DefaultConfig()
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(credentials.NewMemoryStore()).
		Build()
	require.NoError(t, err)

	handler := NewServer(engine, Options{
		Mount: func(mux *http.ServeMux) {
			mux.HandleFunc("GET /api/moderator/queue", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			mux.HandleFunc("GET /api/admin/users", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
	})
	srv := httptest.NewServer(handler)

	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &fixture{srv: srv, engine: engine, mr: mr}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) register(t *testing.T, login, role string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/session/register", map[string]string{
		"login":                 login,
		"email":                 login + "@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
		"role":                  role,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func (f *fixture) login(t *testing.T, login string) authgate.TokenPair {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/session/login", map[string]string{
		"login":    login,
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var pair authgate.TokenPair
	require.NoError(t, json.Unmarshal(body, &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func message(t *testing.T, body []byte) string {
	t.Helper()
	var m struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return m.Message
}

func TestRegisterAndMe(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/session/register", map[string]string{
		"login":                 "alice",
		"email":                 "alice@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
		"role":                  "user",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "alice", created["login"])
	assert.Equal(t, "USER", created["role"])
	assert.NotContains(t, string(body), "password")

	pair := f.login(t, "alice")

	resp, body = f.do(t, http.MethodGet, "/session/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"email":"alice@example.com"`)

	resp, body = f.do(t, http.MethodGet, "/session/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication required", message(t, body))
}

func TestRegisterValidationBody(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/session/register", map[string]string{
		"login":    "x",
		"email":    "nope",
		"password": "1",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var v struct {
		Status  int      `json:"status"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, 400, v.Status)
	assert.Equal(t, "Validation error", v.Message)
	assert.Len(t, v.Errors, 5)

	resp, body = f.do(t, http.MethodPost, "/session/register", map[string]string{
		"login":                 "bob",
		"email":                 "bob@example.com",
		"password":              "password123",
		"password_confirmation": "password124",
		"role":                  "USER",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Passwords not matches", message(t, body))
}

func TestRegisterConflict(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "USER")

	resp, body := f.do(t, http.MethodPost, "/session/register", map[string]string{
		"login":                 "ALICE",
		"email":                 "other@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
		"role":                  "USER",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Login or email are used", message(t, body))
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "USER")

	resp, body := f.do(t, http.MethodPost, "/session/login", map[string]string{"login": "ghost", "password": "password123"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", message(t, body))

	resp, body = f.do(t, http.MethodPost, "/session/login", map[string]string{"login": "alice", "password": "password999"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Password is invalid", message(t, body))

	resp, _ = f.do(t, http.MethodPost, "/session/login", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginWithBlankAuthorization(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "USER")

	for _, v := range []string{"", "   "} {
		resp, body := f.do(t, http.MethodPost, "/session/login", map[string]string{
			"login":    "alice",
			"password": "password123",
		}, map[string]string{"Authorization": v})
		assert.Equal(t, http.StatusOK, resp.StatusCode, "Authorization=%q: %s", v, body)
	}

	resp, body := f.do(t, http.MethodGet, "/session/me", nil, map[string]string{"Authorization": "  "})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication required", message(t, body))
}

func TestRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "USER")
	pair := f.login(t, "alice")

	resp, body := f.do(t, http.MethodPost, "/session/refresh-token", nil, map[string]string{RefreshHeader: pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var next authgate.TokenPair
	require.NoError(t, json.Unmarshal(body, &next))
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	resp, body = f.do(t, http.MethodPost, "/session/refresh-token", nil, map[string]string{RefreshHeader: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bad refresh token", message(t, body))

	resp, _ = f.do(t, http.MethodPost, "/session/logout", nil, map[string]string{RefreshHeader: next.RefreshToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/session/logout", nil, map[string]string{RefreshHeader: next.RefreshToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/session/refresh-token", nil, map[string]string{RefreshHeader: next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/session/refresh-token", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoleRoutes(t *testing.T) {
	f := newFixture(t)
	f.register(t, "usr", "USER")
	f.register(t, "mod", "MODERATOR")
	f.register(t, "adm", "ADMIN")

	tokens := map[string]string{
		"usr": f.login(t, "usr").AccessToken,
		"mod": f.login(t, "mod").AccessToken,
		"adm": f.login(t, "adm").AccessToken,
	}

	cases := []struct {
		path  string
		who   string
		codes int
	}{
		{"/api/moderator/queue", "usr", http.StatusForbidden},
		{"/api/moderator/queue", "mod", http.StatusOK},
		{"/api/moderator/queue", "adm", http.StatusOK},
		{"/api/admin/users", "usr", http.StatusForbidden},
		{"/api/admin/users", "mod", http.StatusForbidden},
		{"/api/admin/users", "adm", http.StatusOK},
	}
	for _, c := range cases {
		resp, _ := f.do(t, http.MethodGet, c.path, nil, map[string]string{"Authorization": "Bearer " + tokens[c.who]})
		assert.Equal(t, c.codes, resp.StatusCode, "%s as %s", c.path, c.who)
	}

	resp, _ := f.do(t, http.MethodGet, "/api/admin/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTamperedAccessToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "USER")
	pair := f.login(t, "alice")

	resp, body := f.do(t, http.MethodGet, "/session/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken + "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token is invalid", message(t, body))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"status":"ok"`))

	f.mr.Close()
	resp, _ = f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORSPreflightThroughServer(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodOptions, "/session/login", nil, map[string]string{
		"Origin":                        "https://app.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization, Authorization-Refresh", resp.Header.Get("Access-Control-Expose-Headers"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(authgate.ErrLoginRateLimited))
	assert.Equal(t, http.StatusForbidden, StatusFor(authgate.ErrRoleForbidden))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(authgate.ErrRefreshExpired))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}
