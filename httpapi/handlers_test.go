package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/stretchr/testify/assert"
)

// refreshFailing answers every refresh with a fixed error.
type refreshFailing struct {
	authgate.User
	err error
}

func (s refreshFailing) Register(context.Context, authgate.RegisterRequest) (authgate.User, error) {
	return s.User, nil
}
func (s refreshFailing) Login(context.Context, string, string) (authgate.TokenPair, error) {
	return authgate.TokenPair{}, nil
}
func (s refreshFailing) Refresh(context.Context, string) (authgate.TokenPair, error) {
	return authgate.TokenPair{}, s.err
}
func (s refreshFailing) Logout(context.Context, string) error { return nil }
func (s refreshFailing) CurrentUser(context.Context) (authgate.User, error) {
	return s.User, nil
}
func (s refreshFailing) Ping(context.Context) (time.Duration, error) { return 0, nil }

func TestRefreshFailuresLookTheSame(t *testing.T) {
	for _, err := range []error{authgate.ErrRefreshExpired, authgate.ErrRefreshInvalid} {
		mux := http.NewServeMux()
		NewHandler(refreshFailing{err: err}, nil).Register(mux)

		req := httptest.NewRequest(http.MethodPost, "/session/refresh-token", nil)
		req.Header.Set(RefreshHeader, "some-token")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Bad refresh token"}`, rec.Body.String())
	}
}
